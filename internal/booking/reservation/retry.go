package reservation

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

// RetryPolicy bounds the optimistic-retry facade. Zero values fall back to
// the defaults below.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	JitterFrac  float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = 25 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 400 * time.Millisecond
	}
	if p.JitterFrac <= 0 {
		p.JitterFrac = 0.20
	}
	return p
}

func computeBackoff(p RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.MinBackoff) * math.Pow(2, float64(attempt-1)))
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	delta := float64(d) * p.JitterFrac
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

// Retrier wraps the entire reservation transaction in a bounded retry loop
// keyed on the store's version-conflict signal. Classification is the
// explicit booking.Retryable predicate: a business rejection is re-raised on
// first occurrence since retrying it cannot change the outcome. Only after
// the budget is exhausted does the facade convert the transient conflict into
// CodeConcurrency.
type Retrier struct {
	policy  RetryPolicy
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(op string, attempt int)
}

func NewRetrier(policy RetryPolicy, baseLog *logger.Logger) *Retrier {
	return &Retrier{
		policy: policy.withDefaults(),
		log:    baseLog.With("component", "retrier"),
		sleep:  sleepCtx,
	}
}

func (r *Retrier) Do(ctx context.Context, op string, seq uint64, fn func(attempt int) error) error {
	p := r.policy
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !booking.Retryable(err) {
			return err
		}
		lastErr = err
		if r.onRetry != nil {
			r.onRetry(op, attempt)
		}
		r.log.Warn("version conflict",
			"op", op,
			"seq", seq,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
		)
		if attempt == p.MaxAttempts {
			break
		}
		if serr := r.sleep(ctx, computeBackoff(p, attempt)); serr != nil {
			return booking.Wrap(booking.CodeInternal, op, serr)
		}
	}
	return booking.NewError(booking.CodeConcurrency, op, "retry exceeded", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
