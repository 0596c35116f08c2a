package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"invofox/internal/domain"
)

// RetryPolicy bounds how often a settlement is re-run after a storage
// conflict or a lost race. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent int
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     25 * time.Millisecond,
	MaxDelay:      500 * time.Millisecond,
	JitterPercent: 20,
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(uint64(p.JitterPercent), b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts are used up. A context deadline hit between attempts surfaces
// as domain.ErrTimeout.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if domain.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return timeoutError(err)
}

func timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return errors.Join(domain.ErrTimeout, err)
	}
	return err
}
