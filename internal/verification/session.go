package verification

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned for tokens that were never issued, were
// superseded by a newer session for the same user, or have expired.
var ErrSessionNotFound = errors.New("verification: session not found")

// Step identifies one of the two externally reported verification steps.
type Step string

const (
	Step1 Step = "step1"
	Step2 Step = "step2"
)

// Result is the callback result string reported for the step.
func (s Step) Result() string {
	return string(s) + "_pass"
}

// State is the derived progress of a session.
type State string

const (
	StatePending   State = "pending"
	StateStep1Done State = "step1_done"
	StateStep2Done State = "step2_done"
	StateBothDone  State = "both_done"
	StateNotified  State = "notified"
)

// Session is one user's in-progress verification attempt. Values handed out by
// the Registry are copies; mutating them has no effect on the registry.
type Session struct {
	UserID      string    `json:"user_id"`
	Token       string    `json:"-"`
	Step1Passed bool      `json:"step1_passed"`
	Step2Passed bool      `json:"step2_passed"`
	Notified    bool      `json:"notified"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// State derives the state machine position from the step flags.
func (s Session) State() State {
	switch {
	case s.Notified:
		return StateNotified
	case s.Step1Passed && s.Step2Passed:
		return StateBothDone
	case s.Step1Passed:
		return StateStep1Done
	case s.Step2Passed:
		return StateStep2Done
	default:
		return StatePending
	}
}

// Complete reports whether both steps have passed.
func (s Session) Complete() bool {
	return s.Step1Passed && s.Step2Passed
}

func (s Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) mark(step Step) {
	switch step {
	case Step1:
		s.Step1Passed = true
	case Step2:
		s.Step2Passed = true
	}
}
