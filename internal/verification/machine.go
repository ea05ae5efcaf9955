package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/alterra/pkg/logger"
)

// DeliveryChannel records which path carried the final confirmation prompt.
type DeliveryChannel string

const (
	DeliveryDirect   DeliveryChannel = "direct"
	DeliveryFallback DeliveryChannel = "fallback"
	DeliveryFailed   DeliveryChannel = "failed"
)

// DeliveryResult is the outcome of one notification dispatch.
type DeliveryResult struct {
	Channel DeliveryChannel
	Err     error
}

// Delivered reports whether either the direct or the fallback path succeeded.
func (r DeliveryResult) Delivered() bool {
	return r.Channel == DeliveryDirect || r.Channel == DeliveryFallback
}

// Notifier delivers the final confirmation prompt once both steps pass.
type Notifier interface {
	NotifyVerificationComplete(ctx context.Context, userID string) DeliveryResult
}

// CompletionTrigger decides which step reports may fire the notification.
type CompletionTrigger string

const (
	// TriggerAnyStep fires on whichever step completes the pair.
	TriggerAnyStep CompletionTrigger = "any_step"
	// TriggerStep2Only only evaluates completion on step 2 reports, so a
	// step 1 arriving after step 2 never notifies.
	TriggerStep2Only CompletionTrigger = "step2_only"
)

// ParseCompletionTrigger validates a configured trigger name.
func ParseCompletionTrigger(value string) (CompletionTrigger, error) {
	switch CompletionTrigger(strings.ToLower(strings.TrimSpace(value))) {
	case "", TriggerAnyStep:
		return TriggerAnyStep, nil
	case TriggerStep2Only:
		return TriggerStep2Only, nil
	default:
		return "", fmt.Errorf("verification: unknown completion trigger %q", value)
	}
}

// Report describes the outcome of a step callback.
type Report struct {
	UserID  string
	Step    Step
	Session Session
	// Delivery is set only on the call that fired the notification.
	Delivery *DeliveryResult
}

// Notified reports whether this call fired the final notification.
func (r Report) Notified() bool {
	return r.Delivery != nil
}

// MachineOption customises a Machine.
type MachineOption func(*Machine)

// WithCompletionTrigger selects the completion trigger policy.
func WithCompletionTrigger(trigger CompletionTrigger) MachineOption {
	return func(m *Machine) {
		if trigger != "" {
			m.trigger = trigger
		}
	}
}

// Machine drives sessions held by a Registry through the step transitions and
// dispatches the final notification exactly once per session.
type Machine struct {
	registry *Registry
	notifier Notifier
	trigger  CompletionTrigger
	log      *zap.Logger
}

// NewMachine wires a state machine to its registry and notifier.
func NewMachine(registry *Registry, notifier Notifier, opts ...MachineOption) (*Machine, error) {
	if registry == nil {
		return nil, errors.New("verification machine: registry is required")
	}
	if notifier == nil {
		return nil, errors.New("verification machine: notifier is required")
	}

	m := &Machine{
		registry: registry,
		notifier: notifier,
		trigger:  TriggerAnyStep,
		log:      logger.WithModule("verification"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Registry exposes the registry the machine mutates.
func (m *Machine) Registry() *Registry {
	return m.registry
}

// ReportStep1 marks step 1 as passed. Re-reporting is a no-op.
func (m *Machine) ReportStep1(ctx context.Context, token string) (Report, error) {
	return m.report(ctx, token, Step1)
}

// ReportStep2 marks step 2 as passed and fires the notification if this
// completes the session. Re-reporting is a no-op.
func (m *Machine) ReportStep2(ctx context.Context, token string) (Report, error) {
	return m.report(ctx, token, Step2)
}

func (m *Machine) report(ctx context.Context, token string, step Step) (Report, error) {
	evaluate := step == Step2 || m.trigger == TriggerAnyStep

	fire := false
	session, err := m.registry.update(token, func(s *Session) {
		s.mark(step)
		if evaluate && s.Complete() && !s.Notified {
			s.Notified = true
			fire = true
		}
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{
		UserID:  session.UserID,
		Step:    step,
		Session: session,
	}

	if !fire {
		return report, nil
	}

	// The callback's lifetime must not cut the delivery short; the notifier
	// applies its own timeout.
	result := m.notifier.NotifyVerificationComplete(context.WithoutCancel(ctx), session.UserID)
	report.Delivery = &result

	fields := []zap.Field{
		zap.String("user_id", session.UserID),
		zap.String("step", string(step)),
		zap.String("channel", string(result.Channel)),
	}
	if result.Delivered() {
		m.log.Info("final confirmation dispatched", fields...)
	} else {
		m.log.Error("final confirmation delivery failed", append(fields, zap.Error(result.Err))...)
	}

	return report, nil
}
