package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/alterra/internal/database/testutil"
	"github.com/charlesng35/alterra/internal/models"
	"github.com/charlesng35/alterra/pkg/logger"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	svc.now = func() time.Time { return current }

	ctx := context.Background()
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:   "42",
		Action:   AuditActionSessionStart,
		Result:   AuditResultSuccess,
		Source:   AuditSourceDiscord,
		Metadata: map[string]any{"replaced": false},
	}))
	current = base.Add(time.Minute)
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:    "42",
		Action:    AuditActionStep1,
		Result:    AuditResultSuccess,
		Source:    AuditSourceHTTP,
		IPAddress: "203.0.113.7",
	}))
	current = base.Add(2 * time.Minute)
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID: "7",
		Action: AuditActionStep1,
		Result: AuditResultFailure,
		Source: AuditSourceHTTP,
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{Filters: AuditFilters{UserID: "42"}})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, logs, 2)
	require.Equal(t, AuditActionStep1, logs[0].Action)
	require.Equal(t, "203.0.113.7", logs[0].IPAddress)
	require.Equal(t, AuditActionSessionStart, logs[1].Action)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(logs[1].Metadata, &metadata))
	require.Equal(t, false, metadata["replaced"])

	since := base.Add(90 * time.Second)
	logs, total, err = svc.List(ctx, AuditListOptions{Filters: AuditFilters{Since: &since}})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "7", logs[0].UserID)

	logs, _, err = svc.List(ctx, AuditListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestAuditServiceLogValidation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Result: AuditResultSuccess}))
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: AuditActionStep2}))

	_, err = NewAuditService(nil)
	require.Error(t, err)
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "old.action",
		Result:    AuditResultSuccess,
		CreatedAt: now.AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "new.action", Result: AuditResultSuccess}))

	rows, err := svc.CleanupOlderThan(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	_, err = svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}

type failingAuditor struct{}

func (failingAuditor) Log(context.Context, AuditEntry) error { return errors.New("disk full") }

func TestRecordAuditToleratesFailures(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	RecordAudit(context.Background(), nil, AuditEntry{Action: AuditActionStep1})
	require.Zero(t, recorded.Len())

	RecordAudit(context.Background(), failingAuditor{}, AuditEntry{Action: AuditActionStep1, UserID: "42"})
	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "audit write failed", entries[0].Message)
	require.Equal(t, "42", entries[0].ContextMap()["user_id"])
}
