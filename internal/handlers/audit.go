package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/internal/models"
	"github.com/charlesng35/alterra/internal/services"
	apperrors "github.com/charlesng35/alterra/pkg/errors"
	"github.com/charlesng35/alterra/pkg/response"
)

// AuditLister is the read side of the audit trail.
type AuditLister interface {
	List(ctx context.Context, opts services.AuditListOptions) ([]models.AuditLog, int64, error)
}

type AuditHandler struct {
	svc AuditLister
}

func NewAuditHandler(svc AuditLister) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: lister is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /audit
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page <= 0 {
		page = 1
	}
	if per <= 0 || per > 200 {
		per = 50
	}

	filters := services.AuditFilters{
		UserID: c.Query("user_id"),
		Action: c.Query("action"),
		Result: c.Query("result"),
	}

	var err error
	if filters.Since, err = parseTimeQuery(c, "since"); err != nil {
		response.Error(c, err)
		return
	}
	if filters.Until, err = parseTimeQuery(c, "until"); err != nil {
		response.Error(c, err)
		return
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, per, total))
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, key+" must be an RFC3339 timestamp", http.StatusBadRequest)
	}
	return &t, nil
}
