package notifier

import (
	"context"
	"errors"
	"time"

	kit "burgerbot/internal/transport"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")

	// ErrRecipientGone is the transport sentinel, re-exported for callers
	// that only import the notifier.
	ErrRecipientGone = kit.ErrRecipientGone
)

// Sender is the outbound half of a chat adapter.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Config controls the delivery pipeline. Zero values take defaults.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	// RetryMax is the number of extra attempts for transient errors.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration

	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// Stats counts send outcomes since New.
type Stats struct {
	Queued      uint64 `json:"queued"`
	Sent        uint64 `json:"sent"`
	Gone        uint64 `json:"gone"`
	Failed      uint64 `json:"failed"`
	Dropped     uint64 `json:"dropped"`
	BreakerOpen uint64 `json:"breaker_open"`
	Breaker     string `json:"breaker"`
}
