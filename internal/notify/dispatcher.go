package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/pkg/logger"
	"github.com/charlesng35/alterra/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

// ErrDeliveryFailed is reported when neither the direct message nor the
// fallback channel post went through.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Prompt is the final confirmation message. The messenger attaches the
// confirm control scoped to UserID.
type Prompt struct {
	UserID  string
	Content string
}

// Messenger is the chat transport used by the Dispatcher.
type Messenger interface {
	SendDirect(ctx context.Context, userID string, prompt Prompt) error
	SendChannel(ctx context.Context, channelID string, prompt Prompt) error
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each delivery attempt.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithFallbackChannel sets the channel used when direct delivery fails.
func WithFallbackChannel(channelID string) Option {
	return func(disp *Dispatcher) {
		disp.fallbackChannelID = strings.TrimSpace(channelID)
	}
}

// Dispatcher sends the final confirmation prompt by direct message and falls
// back to a mention in a shared channel. It never retries beyond that.
type Dispatcher struct {
	messenger         Messenger
	fallbackChannelID string
	timeout           time.Duration
	log               *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(messenger Messenger, opts ...Option) (*Dispatcher, error) {
	if messenger == nil {
		return nil, errors.New("notify: messenger is required")
	}

	d := &Dispatcher{
		messenger: messenger,
		timeout:   defaultTimeout,
		log:       logger.WithModule("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NotifyVerificationComplete implements verification.Notifier.
func (d *Dispatcher) NotifyVerificationComplete(ctx context.Context, userID string) verification.DeliveryResult {
	directErr := d.attempt(ctx, func(ctx context.Context) error {
		return d.messenger.SendDirect(ctx, userID, Prompt{
			UserID:  userID,
			Content: "Final step: press the button below to confirm your verification.",
		})
	})
	if directErr == nil {
		return d.result(verification.DeliveryDirect, nil)
	}

	d.log.Warn("direct message refused, using fallback channel",
		zap.String("user_id", userID),
		zap.Error(directErr),
	)

	if d.fallbackChannelID == "" {
		return d.result(verification.DeliveryFailed,
			fmt.Errorf("%w: %w (no fallback channel)", ErrDeliveryFailed, directErr))
	}

	fallbackErr := d.attempt(ctx, func(ctx context.Context) error {
		return d.messenger.SendChannel(ctx, d.fallbackChannelID, Prompt{
			UserID:  userID,
			Content: fmt.Sprintf("<@%s> final step: press the button below to confirm your verification.", userID),
		})
	})
	if fallbackErr == nil {
		return d.result(verification.DeliveryFallback, nil)
	}

	return d.result(verification.DeliveryFailed,
		fmt.Errorf("%w: %w", ErrDeliveryFailed, multierr.Combine(directErr, fallbackErr)))
}

// attempt runs send under the per-attempt timeout. It returns on timeout even
// if send ignores its context.
func (d *Dispatcher) attempt(parent context.Context, send func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notify: attempt aborted: %w", ctx.Err())
	}
}

func (d *Dispatcher) result(channel verification.DeliveryChannel, err error) verification.DeliveryResult {
	metrics.Notifications.WithLabelValues(string(channel)).Inc()
	return verification.DeliveryResult{Channel: channel, Err: err}
}
