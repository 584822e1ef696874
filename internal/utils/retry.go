package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryResult reports how a Retry call ended.
type RetryResult struct {
	Attempts int
	Err      error
}

// NeverTried reports that fn was not called at all.
func (r RetryResult) NeverTried() bool { return r.Attempts == 0 }

// Exhausted reports that fn ran and never succeeded.
func (r RetryResult) Exhausted() bool { return r.Attempts > 0 && r.Err != nil }

func (r RetryResult) OK() bool { return r.Attempts > 0 && r.Err == nil }

// Retry calls fn up to attempts times with a constant pause between calls.
// Errors wrapped with backoff.Permanent stop the loop early.
func Retry(ctx context.Context, attempts int, pause time.Duration, fn func() error) RetryResult {
	if attempts < 1 {
		return RetryResult{}
	}
	if err := ctx.Err(); err != nil {
		return RetryResult{Err: err}
	}

	var res RetryResult
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pause), uint64(attempts-1)),
		ctx,
	)
	res.Err = backoff.Retry(func() error {
		res.Attempts++
		return fn()
	}, policy)
	return res
}
