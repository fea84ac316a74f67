package gitlab

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry defaults. The initial interval matches the fixed pause the cleaner
// has always used after a 429 or 500.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 10 * time.Second
	DefaultMaxInterval     = 2 * time.Minute
)

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first; values < 1 mean 1
	InitialInterval time.Duration // Wait before the first retry
	MaxInterval     time.Duration // Cap on a single wait
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// newBackOff returns a fresh exponential schedule for one request.
// BackOff implementations are stateful and must not be shared.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	// Attempts, not elapsed time, bound the schedule.
	bo.MaxElapsedTime = 0
	bo.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}
