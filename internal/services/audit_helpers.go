package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/alterra/pkg/logger"
)

// Auditor is the write side of the audit trail.
type Auditor interface {
	Log(ctx context.Context, entry AuditEntry) error
}

// RecordAudit logs the supplied entry while tolerating audit failures. A nil
// auditor disables recording.
func RecordAudit(ctx context.Context, auditor Auditor, entry AuditEntry) {
	if auditor == nil {
		return
	}
	if err := auditor.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("user_id", entry.UserID),
			zap.Error(err),
		)
	}
}
