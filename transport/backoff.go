package transport

import (
	"context"
	"time"
)

// Backoff is an exponential retry policy: the delay starts at Initial and
// doubles after every failed attempt, capped at Max.
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// DefaultBackoff is used when a transport is not given a policy.
var DefaultBackoff = Backoff{MaxRetries: 5, Initial: 500 * time.Millisecond, Max: 30 * time.Second}

// Delay returns the wait before retry number attempt (starting at 1).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// retries are used up. It returns the last error.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !Retryable(err) || attempt >= b.MaxRetries {
			return err
		}
		t := time.NewTimer(b.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
