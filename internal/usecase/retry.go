package usecase

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a collaborator call is attempted
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration // Pause between attempts, not before the first
}

// Default policies per collaborator
var (
	DefaultExtractPolicy = RetryPolicy{MaxAttempts: 3}
	DefaultRefinePolicy  = RetryPolicy{MaxAttempts: 3}
	DefaultSelectPolicy  = RetryPolicy{MaxAttempts: 3, Delay: time.Second}
)

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) orDefault(fallback RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		return fallback
	}
	return p
}

// retry calls fn until it succeeds, attempts run out or ctx is done.
// It returns the last value and error along with the number of attempts made.
// onFailure, if set, is called after every failed attempt.
func retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn func(ctx context.Context) (T, error),
	onFailure func(attempt int, err error),
) (T, int, error) {
	var (
		value T
		err   error
	)

	max := policy.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		value, err = fn(ctx)
		if err == nil {
			return value, attempt, nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt == max {
			return value, attempt, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return value, attempt, ctxErr
		}
		if policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return value, attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return value, max, err
}
