package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/alterra/internal/verification"
)

type fakeMessenger struct {
	mu          sync.Mutex
	directErr   error
	channelErr  error
	block       chan struct{}
	directs     []Prompt
	channelMsgs map[string][]Prompt
}

func (m *fakeMessenger) SendDirect(ctx context.Context, userID string, prompt Prompt) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.directErr != nil {
		return m.directErr
	}
	m.directs = append(m.directs, prompt)
	return nil
}

func (m *fakeMessenger) SendChannel(ctx context.Context, channelID string, prompt Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelErr != nil {
		return m.channelErr
	}
	if m.channelMsgs == nil {
		m.channelMsgs = make(map[string][]Prompt)
	}
	m.channelMsgs[channelID] = append(m.channelMsgs[channelID], prompt)
	return nil
}

func TestNewDispatcherRequiresMessenger(t *testing.T) {
	_, err := NewDispatcher(nil)
	require.Error(t, err)
}

func TestDispatcherPrefersDirectMessage(t *testing.T) {
	messenger := &fakeMessenger{}
	d, err := NewDispatcher(messenger, WithFallbackChannel("setup"))
	require.NoError(t, err)

	result := d.NotifyVerificationComplete(context.Background(), "42")
	require.Equal(t, verification.DeliveryDirect, result.Channel)
	require.NoError(t, result.Err)
	require.True(t, result.Delivered())

	require.Len(t, messenger.directs, 1)
	require.Equal(t, "42", messenger.directs[0].UserID)
	require.Empty(t, messenger.channelMsgs)
}

func TestDispatcherFallsBackToChannelMention(t *testing.T) {
	messenger := &fakeMessenger{directErr: errors.New("cannot send messages to this user")}
	d, err := NewDispatcher(messenger, WithFallbackChannel("setup"))
	require.NoError(t, err)

	result := d.NotifyVerificationComplete(context.Background(), "42")
	require.Equal(t, verification.DeliveryFallback, result.Channel)
	require.NoError(t, result.Err)

	posts := messenger.channelMsgs["setup"]
	require.Len(t, posts, 1)
	require.Equal(t, "42", posts[0].UserID)
	require.True(t, strings.HasPrefix(posts[0].Content, "<@42>"))
}

func TestDispatcherReportsFailureWhenBothPathsFail(t *testing.T) {
	messenger := &fakeMessenger{
		directErr:  errors.New("dm closed"),
		channelErr: errors.New("missing access"),
	}
	d, err := NewDispatcher(messenger, WithFallbackChannel("setup"))
	require.NoError(t, err)

	result := d.NotifyVerificationComplete(context.Background(), "42")
	require.Equal(t, verification.DeliveryFailed, result.Channel)
	require.False(t, result.Delivered())
	require.ErrorIs(t, result.Err, ErrDeliveryFailed)
	require.Contains(t, result.Err.Error(), "dm closed")
	require.Contains(t, result.Err.Error(), "missing access")
}

func TestDispatcherWithoutFallbackChannel(t *testing.T) {
	messenger := &fakeMessenger{directErr: errors.New("dm closed")}
	d, err := NewDispatcher(messenger)
	require.NoError(t, err)

	result := d.NotifyVerificationComplete(context.Background(), "42")
	require.Equal(t, verification.DeliveryFailed, result.Channel)
	require.ErrorIs(t, result.Err, ErrDeliveryFailed)
}

func TestDispatcherTimeoutTriggersFallback(t *testing.T) {
	messenger := &fakeMessenger{block: make(chan struct{})}
	t.Cleanup(func() { close(messenger.block) })

	d, err := NewDispatcher(messenger,
		WithFallbackChannel("setup"),
		WithTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	start := time.Now()
	result := d.NotifyVerificationComplete(context.Background(), "42")
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, verification.DeliveryFallback, result.Channel)

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	require.Len(t, messenger.channelMsgs["setup"], 1)
}
