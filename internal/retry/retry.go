// Package retry re-runs an operation while its result is classified as
// retriable, up to a fixed number of extra attempts.
package retry

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/rhino/internal/simerr"
)

// Policy decides which results are retried and how often.
type Policy[T any] struct {
	// Retriable reports whether result should be retried.
	Retriable func(result T) bool
	// Retries is the number of attempts allowed after the first one.
	Retries int
	// Cause describes a retriable result for RetryExhaustedError. Optional.
	Cause func(result T) error
}

// Op is one attempt. attempt starts at 1.
type Op[T any] func(ctx context.Context, attempt int) (T, error)

type options struct {
	onRetry func(attempt int, cause error)
}

// Option configures Do.
type Option func(*options)

// OnRetry is called before every retry with the number of the attempt that
// is about to run.
func OnRetry(fn func(attempt int, cause error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do runs op and retries immediately while the result is retriable.
//
// An error returned by op ends the loop at once and is returned unchanged;
// only results are subject to the policy. When all 1+Retries attempts
// produced retriable results, Do returns the last result together with a
// *simerr.RetryExhaustedError. Cancelling ctx is observed between attempts.
func Do[T any](ctx context.Context, p Policy[T], op Op[T], opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attempts := 1 + max(p.Retries, 0)

	var last T
	var cause error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return last, err
			}
			if o.onRetry != nil {
				o.onRetry(attempt, cause)
			}
		}

		result, err := op(ctx, attempt)
		if err != nil {
			return result, err
		}
		last = result

		if p.Retriable == nil || !p.Retriable(result) {
			return result, nil
		}

		cause = describe(p, result)
	}

	return last, &simerr.RetryExhaustedError{Attempts: attempts, Cause: cause}
}

func describe[T any](p Policy[T], result T) error {
	if p.Cause != nil {
		if err := p.Cause(result); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: retriable result", simerr.ErrUnexpectedStatus)
}
