package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts verification sessions issued from the chat button.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alterra_verification_sessions_created_total",
			Help: "Total number of verification sessions created",
		},
	)

	// ActiveSessions tracks sessions held by the registry.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alterra_verification_active_sessions",
			Help: "Number of verification sessions currently held in memory",
		},
	)

	// StepReports counts callback step reports by step (step1|step2) and result (pass|not_found|unauthorized).
	StepReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alterra_verification_step_reports_total",
			Help: "Total number of verification step callbacks",
		},
		[]string{"step", "result"},
	)

	// Notifications counts final-confirmation deliveries by channel (direct|fallback|failed).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alterra_verification_notifications_total",
			Help: "Total number of final confirmation prompts dispatched",
		},
		[]string{"channel"},
	)

	// RoleGrants counts final confirmation button presses by result (granted|denied|error).
	RoleGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alterra_verification_role_grants_total",
			Help: "Total number of verified role grant attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alterra_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
