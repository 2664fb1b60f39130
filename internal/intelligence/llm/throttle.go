package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Throttled spaces calls to the wrapped Completer at least delay apart,
// across all goroutines sharing it.
type Throttled struct {
	next    Completer
	limiter *rate.Limiter
}

// NewThrottled wraps next.  A non-positive delay disables spacing.
func NewThrottled(next Completer, delay time.Duration) *Throttled {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, 1)}
}

// Complete waits for the next slot, then calls the wrapped Completer.
func (t *Throttled) Complete(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTimeout, "waiting for LLM call slot")
	}
	return t.next.Complete(ctx, req)
}
