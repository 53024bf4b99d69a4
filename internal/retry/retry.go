// Package retry runs remote calls with a bounded attempt count and a
// per-attempt timeout. All remote fetches share it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds a retried call.
type Policy struct {
	Attempts int           // total attempts, at least 1
	Timeout  time.Duration // per attempt; zero means no per-attempt limit
	Backoff  time.Duration // first delay between attempts, doubled each time
	// MaxBackoff caps the delay between attempts; zero means uncapped.
	MaxBackoff time.Duration
}

// DefaultPolicy is used by call sites that do not configure their own.
var DefaultPolicy = Policy{Attempts: 3, Timeout: 10 * time.Second, Backoff: 200 * time.Millisecond}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx ends. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	var b goretry.Backoff = goretry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = goretry.WithCappedDuration(p.MaxBackoff, b)
	}
	b = goretry.WithMaxRetries(uint64(p.Attempts-1), b)

	attempt := 0
	err := goretry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return goretry.RetryableError(err)
	})
	if err != nil && attempt > 1 {
		return fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return err
}
