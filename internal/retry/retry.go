// Package retry wraps idempotent calls to remote model providers in a
// bounded exponential backoff. Embedding and generation requests have no side
// effects, so repeating them after a rate-limit or transient server error is
// safe; nothing else in the service retries.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first (default: 3).
	Attempts int

	// InitialInterval is the wait before the second attempt (default: 2s).
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts (default: 20s).
	MaxInterval time.Duration
}

// DefaultPolicy matches the provider guidance of three attempts starting at
// a two second wait.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 20 * time.Second}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return p
}

// Do calls op until it succeeds, returns an error that retryable rejects, the
// attempt budget is spent, or ctx is done. notify, if non-nil, is called
// before each wait with the failed attempt's error and the upcoming delay.
// The last error from op is returned unchanged.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error, notify func(err error, wait time.Duration)) error {
	p = p.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(p.Attempts-1)) //nolint:gosec // Attempts >= 1 after defaults
	b = backoff.WithContext(b, ctx)

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(wrapped, b, notify)
}
