// Package retry runs store operations under the vote retry policy:
// conflicts are retried a fixed number of times, transient store errors
// with exponential backoff, everything else fails immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
)

type Policy struct {
	// MaxAttempts bounds the total number of calls, conflicts included.
	MaxAttempts     int
	ConflictRetries int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry is called before each retry with the reason ("conflict" or "transient").
	OnRetry func(reason string, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		ConflictRetries: 1,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do calls fn until it succeeds, fails permanently or the policy is exhausted.
// The returned error is fn's last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts, conflicts := 0, 0
	op := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			conflicts++
			if conflicts > p.ConflictRetries || attempts >= p.MaxAttempts {
				return backoff.Permanent(err)
			}
			p.notify("conflict", err)
			return err
		case errors.Is(err, apperrors.ErrTransientStore):
			if attempts >= p.MaxAttempts {
				return backoff.Permanent(err)
			}
			p.notify("transient", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (p Policy) notify(reason string, err error) {
	if p.OnRetry != nil {
		p.OnRetry(reason, err)
	}
}
