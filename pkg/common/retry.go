package common

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy bounds how long and how eagerly an operation is retried.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// RetryWithBackoff runs op with exponential backoff until it succeeds, returns
// a permanent error (see backoff.Permanent), the policy's elapsed time runs
// out, or ctx is done. A policy without a positive MaxElapsedTime runs op
// once. The last error from op is returned.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, op func() error) error {
	if policy.MaxElapsedTime <= 0 {
		return backoff.Retry(op, backoff.WithContext(&backoff.StopBackOff{}, ctx))
	}

	expBackoff := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expBackoff.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		expBackoff.MaxInterval = policy.MaxInterval
	}
	expBackoff.MaxElapsedTime = policy.MaxElapsedTime

	return backoff.Retry(op, backoff.WithContext(expBackoff, ctx))
}
