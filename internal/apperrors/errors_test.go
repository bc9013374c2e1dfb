package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsistencyWarningMatchesSentinel(t *testing.T) {
	var err error = &ConsistencyWarning{Target: "post:1", Column: "upvotes", Reason: "would go negative"}
	assert.ErrorIs(t, err, ErrConsistency)
	assert.True(t, IsWarning(fmt.Errorf("apply: %w", err)))
	assert.False(t, IsWarning(ErrNotFound))
	assert.False(t, IsWarning(nil))

	var w *ConsistencyWarning
	assert.True(t, errors.As(err, &w))
	assert.Contains(t, err.Error(), "post:1.upvotes")
}

func TestHelpersWrapSentinels(t *testing.T) {
	assert.ErrorIs(t, NotFound("post", 42), ErrNotFound)
	assert.ErrorIs(t, Conflict("vote %s changed", "x"), ErrConflict)

	base := errors.New("connection reset")
	err := Transient(base)
	assert.ErrorIs(t, err, ErrTransientStore)
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Transient(err))
	assert.NoError(t, Transient(nil))
}
