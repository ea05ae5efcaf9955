package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	apperrors "github.com/charlesng35/alterra/pkg/errors"
	"github.com/charlesng35/alterra/pkg/metrics"
	"github.com/charlesng35/alterra/pkg/response"
	"github.com/charlesng35/alterra/web"
)

// StepReporter advances verification sessions on behalf of the callback
// endpoints.
type StepReporter interface {
	ReportStep1(ctx context.Context, token string) (verification.Report, error)
	ReportStep2(ctx context.Context, token string) (verification.Report, error)
}

// SessionLookup resolves state tokens without mutating them.
type SessionLookup interface {
	FindByToken(token string) (verification.Session, error)
}

// StepResult is the callback response body expected by the verification
// backend.
type StepResult struct {
	Result string `json:"result"`
	UserID string `json:"user_id"`
}

// StartPage is the JSON form of the landing page.
type StartPage struct {
	Valid bool               `json:"valid"`
	State verification.State `json:"state"`
}

type VerificationHandler struct {
	steps    StepReporter
	sessions SessionLookup
	auditor  services.Auditor
}

// NewVerificationHandler wires the callback endpoints. auditor may be nil.
func NewVerificationHandler(steps StepReporter, sessions SessionLookup, auditor services.Auditor) (*VerificationHandler, error) {
	if steps == nil {
		return nil, errors.New("verification handler: step reporter is required")
	}
	if sessions == nil {
		return nil, errors.New("verification handler: session lookup is required")
	}
	return &VerificationHandler{steps: steps, sessions: sessions, auditor: auditor}, nil
}

// GET /start?state=
func (h *VerificationHandler) Start(c *gin.Context) {
	session, err := h.sessions.FindByToken(stateToken(c))
	if err != nil {
		response.Error(c, stateError(err))
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		response.Success(c, http.StatusOK, StartPage{Valid: true, State: session.State()})
		return
	}
	c.HTML(http.StatusOK, web.StartPage, gin.H{"State": session.State()})
}

// POST /step1?state=
func (h *VerificationHandler) Step1(c *gin.Context) {
	h.step(c, verification.Step1, h.steps.ReportStep1)
}

// POST /step2?state=
func (h *VerificationHandler) Step2(c *gin.Context) {
	h.step(c, verification.Step2, h.steps.ReportStep2)
}

func (h *VerificationHandler) step(c *gin.Context, step verification.Step, report func(context.Context, string) (verification.Report, error)) {
	ctx := requestContext(c)

	result, err := report(ctx, stateToken(c))
	if err != nil {
		if errors.Is(err, verification.ErrSessionNotFound) {
			metrics.StepReports.WithLabelValues(string(step), "not_found").Inc()
		}
		response.Error(c, stateError(err))
		return
	}
	metrics.StepReports.WithLabelValues(string(step), "pass").Inc()

	h.audit(c, services.AuditEntry{
		UserID:   result.UserID,
		Action:   stepAction(step),
		Result:   services.AuditResultSuccess,
		Metadata: map[string]any{"state": string(result.Session.State())},
	})

	if result.Delivery != nil {
		entry := services.AuditEntry{
			UserID:   result.UserID,
			Action:   services.AuditActionNotify,
			Result:   services.AuditResultSuccess,
			Metadata: map[string]any{"channel": string(result.Delivery.Channel)},
		}
		if !result.Delivery.Delivered() {
			entry.Result = services.AuditResultFailure
			if result.Delivery.Err != nil {
				entry.Metadata["error"] = result.Delivery.Err.Error()
			}
		}
		h.audit(c, entry)
	}

	c.JSON(http.StatusOK, StepResult{Result: step.Result(), UserID: result.UserID})
}

func (h *VerificationHandler) audit(c *gin.Context, entry services.AuditEntry) {
	entry.Source = services.AuditSourceHTTP
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()
	services.RecordAudit(requestContext(c), h.auditor, entry)
}

func stateError(err error) error {
	if errors.Is(err, verification.ErrSessionNotFound) {
		return apperrors.ErrInvalidState
	}
	return apperrors.ErrInternalServer.WithInternal(err)
}

func stepAction(step verification.Step) string {
	if step == verification.Step2 {
		return services.AuditActionStep2
	}
	return services.AuditActionStep1
}
