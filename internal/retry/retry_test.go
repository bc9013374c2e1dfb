package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		ConflictRetries: 1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDoSucceedsFirstTime(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesConflictOnce(t *testing.T) {
	var reasons []string
	p := fastPolicy(5)
	p.OnRetry = func(reason string, _ error) { reasons = append(reasons, reason) }

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return apperrors.Conflict("vote changed underneath")
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"conflict"}, reasons)
}

func TestDoConflictThenSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.Conflict("lost race")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoRetriesTransientUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return apperrors.Transient(errors.New("connection refused"))
	})
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)
	assert.Equal(t, 4, calls)
}

func TestDoPermanentErrors(t *testing.T) {
	for _, perm := range []error{apperrors.ErrNotFound, apperrors.ErrUnauthorized, errors.New("boom")} {
		calls := 0
		err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
			calls++
			return perm
		})
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, calls)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(10), func(context.Context) error {
		calls++
		cancel()
		return apperrors.Transient(errors.New("timeout"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
