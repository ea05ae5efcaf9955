package verification

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sequentialTokens() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("token-%d", n)
	}
}

func TestRegistry_CreateAndFind(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(WithClock(func() time.Time { return now }))

	token := reg.CreateSession("42")
	require.NotEmpty(t, token)

	session, err := reg.FindByToken(token)
	require.NoError(t, err)
	require.Equal(t, "42", session.UserID)
	require.Equal(t, token, session.Token)
	require.False(t, session.Step1Passed)
	require.False(t, session.Step2Passed)
	require.False(t, session.Notified)
	require.Equal(t, StatePending, session.State())
	require.Equal(t, now, session.CreatedAt)
	require.True(t, session.ExpiresAt.IsZero())

	byUser, err := reg.FindByUser("42")
	require.NoError(t, err)
	require.Equal(t, token, byUser.Token)
}

func TestRegistry_UnknownTokensAreNotFound(t *testing.T) {
	reg := NewRegistry()
	reg.CreateSession("42")

	for _, token := range []string{"", "unknown-token", "00000000-0000-0000-0000-000000000000"} {
		_, err := reg.FindByToken(token)
		require.ErrorIs(t, err, ErrSessionNotFound, "token %q", token)
	}

	_, err := reg.FindByUser("7")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_NewSessionInvalidatesPreviousToken(t *testing.T) {
	reg := NewRegistry()

	first := reg.CreateSession("42")
	second := reg.CreateSession("42")
	require.NotEqual(t, first, second)

	_, err := reg.FindByToken(first)
	require.ErrorIs(t, err, ErrSessionNotFound)

	session, err := reg.FindByToken(second)
	require.NoError(t, err)
	require.Equal(t, "42", session.UserID)
	require.Equal(t, 1, reg.Count())
}

func TestRegistry_ReplacementResetsProgress(t *testing.T) {
	reg := NewRegistry()
	first := reg.CreateSession("42")
	_, err := reg.update(first, func(s *Session) { s.mark(Step1) })
	require.NoError(t, err)

	second := reg.CreateSession("42")
	session, err := reg.FindByToken(second)
	require.NoError(t, err)
	require.False(t, session.Step1Passed)
}

func TestRegistry_SkipsCollidingTokens(t *testing.T) {
	tokens := []string{"dup", "dup", "fresh"}
	i := 0
	reg := NewRegistry(WithTokenGenerator(func() string {
		token := tokens[i]
		i++
		return token
	}))

	require.Equal(t, "dup", reg.CreateSession("1"))
	require.Equal(t, "fresh", reg.CreateSession("2"))

	one, err := reg.FindByToken("dup")
	require.NoError(t, err)
	require.Equal(t, "1", one.UserID)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg := NewRegistry()
	token := reg.CreateSession("42")

	session, err := reg.FindByToken(token)
	require.NoError(t, err)
	session.Step1Passed = true
	session.Notified = true

	again, err := reg.FindByToken(token)
	require.NoError(t, err)
	require.False(t, again.Step1Passed)
	require.False(t, again.Notified)
}

func TestRegistry_ExpiryAndCleanup(t *testing.T) {
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(
		WithSessionTTL(10*time.Minute),
		WithClock(func() time.Time { return current }),
	)

	old := reg.CreateSession("1")
	current = current.Add(6 * time.Minute)
	fresh := reg.CreateSession("2")

	session, err := reg.FindByToken(fresh)
	require.NoError(t, err)
	require.Equal(t, current.Add(10*time.Minute), session.ExpiresAt)

	current = current.Add(5 * time.Minute)

	_, err = reg.FindByToken(old)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = reg.FindByUser("1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = reg.update(old, func(*Session) { t.Fatal("expired session must not be mutated") })
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.Equal(t, 2, reg.Count())
	require.Equal(t, 1, reg.CleanupExpired())
	require.Equal(t, 1, reg.Count())

	_, err = reg.FindByToken(fresh)
	require.NoError(t, err)
}

func TestRegistry_ConcurrentCreateKeepsOneSessionPerUser(t *testing.T) {
	reg := NewRegistry(WithTokenGenerator(sequentialTokens()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.CreateSession(fmt.Sprintf("user-%d", i%5))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, reg.Count())
	for i := 0; i < 5; i++ {
		session, err := reg.FindByUser(fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		byToken, err := reg.FindByToken(session.Token)
		require.NoError(t, err)
		require.Equal(t, session.UserID, byToken.UserID)
	}
}
