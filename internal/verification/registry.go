package verification

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/alterra/pkg/metrics"
)

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithSessionTTL bounds how long a session stays valid. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTokenGenerator replaces the token source. Generated tokens must be unique.
func WithTokenGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newToken = fn
		}
	}
}

// Registry owns every verification session, indexed by token and by user.
// A user has at most one session; a token maps to at most one session.
type Registry struct {
	mu      sync.Mutex
	byToken map[string]*Session
	byUser  map[string]string

	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byToken: make(map[string]*Session),
		byUser:  make(map[string]string),
		now:     time.Now,
		// uuid.New panics when crypto/rand fails, which is fatal by intent.
		newToken: func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CreateSession issues a fresh token for userID, replacing any session the user
// already had. The replaced token stops resolving immediately.
func (r *Registry) CreateSession(userID string) string {
	userID = strings.TrimSpace(userID)
	now := r.now()

	session := &Session{
		UserID:    userID,
		CreatedAt: now,
	}
	if r.ttl > 0 {
		session.ExpiresAt = now.Add(r.ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		session.Token = r.newToken()
		if _, taken := r.byToken[session.Token]; !taken {
			break
		}
	}

	if previous, ok := r.byUser[userID]; ok {
		delete(r.byToken, previous)
	}
	r.byToken[session.Token] = session
	r.byUser[userID] = session.Token

	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Set(float64(len(r.byToken)))

	return session.Token
}

// FindByToken returns a copy of the live session for token.
func (r *Registry) FindByToken(token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.lookupLocked(token)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// FindByUser returns a copy of the user's current live session.
func (r *Registry) FindByUser(userID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byUser[strings.TrimSpace(userID)]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	session, ok := r.lookupLocked(token)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// Count returns the number of sessions held, expired ones included until swept.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

// CleanupExpired drops every expired session and returns how many were removed.
func (r *Registry) CleanupExpired() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, session := range r.byToken {
		if session.expired(now) {
			r.removeLocked(token, session)
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveSessions.Set(float64(len(r.byToken)))
	}
	return removed
}

// update applies fn to the live session for token while holding the registry
// lock, and returns a copy of the result.
func (r *Registry) update(token string, fn func(*Session)) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.lookupLocked(token)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	fn(session)
	return *session, nil
}

func (r *Registry) lookupLocked(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	session, ok := r.byToken[token]
	if !ok {
		return nil, false
	}
	if session.expired(r.now()) {
		return nil, false
	}
	return session, true
}

func (r *Registry) removeLocked(token string, session *Session) {
	delete(r.byToken, token)
	if r.byUser[session.UserID] == token {
		delete(r.byUser, session.UserID)
	}
}
