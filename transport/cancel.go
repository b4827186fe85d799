package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// PollInterval is how often a cancellation predicate is checked.
var PollInterval = 50 * time.Millisecond

// WithCancelPredicate returns a context that is canceled once canceled
// reports true. The returned fired func reports whether that happened, which
// lets callers tell a caller-side cancellation from other context errors.
// A nil predicate only wraps ctx.
func WithCancelPredicate(ctx context.Context, canceled func() bool) (_ context.Context, fired func() bool, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	var hit atomic.Bool
	if canceled != nil {
		go func() {
			t := time.NewTicker(PollInterval)
			defer t.Stop()
			for {
				if canceled() {
					hit.Store(true)
					cancel()
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
		}()
	}
	return ctx, hit.Load, cancel
}
