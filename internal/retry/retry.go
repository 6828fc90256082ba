// Package retry wraps transient content-store and ledger calls in
// bounded exponential backoff. Deterministic logic (hash comparison,
// consent checks) must never go through here.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy keeps operations inside the no-indefinite-block
// contract: a few quick attempts, then give up.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxElapsedTime:  3 * time.Second,
	}
}

// Permanent marks err as non-retryable; Do returns it immediately.
// Use it for deterministic failures such as not-found lookups.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op with exponential backoff until it succeeds, returns a
// permanent error, the policy's elapsed budget runs out, or ctx is
// cancelled.
func Do(ctx context.Context, p Policy, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsedTime

	return backoff.Retry(op, backoff.WithContext(eb, ctx))
}
