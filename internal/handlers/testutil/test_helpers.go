package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/alterra/internal/api"
	"github.com/charlesng35/alterra/internal/app"
	sharedtestutil "github.com/charlesng35/alterra/internal/database/testutil"
	"github.com/charlesng35/alterra/internal/middleware"
	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/pkg/response"
)

// Secret is the callback secret configured for every test environment.
const Secret = "test-callback-secret"

// RecordingNotifier counts final confirmation dispatches per user.
type RecordingNotifier struct {
	mu     sync.Mutex
	calls  []string
	Result verification.DeliveryResult
}

// NotifyVerificationComplete implements verification.Notifier.
func (n *RecordingNotifier) NotifyVerificationComplete(_ context.Context, userID string) verification.DeliveryResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
	if n.Result.Channel == "" {
		return verification.DeliveryResult{Channel: verification.DeliveryDirect}
	}
	return n.Result
}

// Calls returns the user IDs notified so far.
func (n *RecordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Registry *verification.Registry
	Machine  *verification.Machine
	Notifier *RecordingNotifier
	Audit    *services.AuditService
}

// NewEnv provisions a fresh handler test environment.
func NewEnv(t *testing.T, opts ...verification.MachineOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t)

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	registry := verification.NewRegistry()
	notifier := &RecordingNotifier{}
	machine, err := verification.NewMachine(registry, notifier, opts...)
	require.NoError(t, err)

	cfg := &app.Config{
		Verification: app.VerificationConfig{
			Secret:  Secret,
			BaseURL: "https://verify.example.com",
		},
	}

	router, err := api.NewRouter(cfg, machine, auditSvc)
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Registry: registry,
		Machine:  machine,
		Notifier: notifier,
		Audit:    auditSvc,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router with the given headers.
func (e *Env) Request(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(e.T, err)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Callback posts a step callback carrying the configured secret.
func (e *Env) Callback(step, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Request(http.MethodPost, "/"+step+"?state="+token, map[string]string{
		middleware.SecretHeader: Secret,
	})
}
