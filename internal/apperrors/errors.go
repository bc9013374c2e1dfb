// Package apperrors defines the error taxonomy shared by the vote ledger,
// the counter projection and the karma aggregator.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller identity is missing or unknown. Not retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means a post, comment or profile does not exist. Not retried.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent modification was detected. Retried once.
	ErrConflict = errors.New("conflict")
	// ErrTransientStore means the store was unavailable. Retried with backoff.
	ErrTransientStore = errors.New("transient store error")
	// ErrConsistency marks a non-fatal ledger/projection divergence.
	ErrConsistency = errors.New("consistency warning")
)

// ConsistencyWarning reports a counter that would have gone negative or a
// reconciliation that found drift. The operation that returned it completed.
type ConsistencyWarning struct {
	Target string
	Column string
	Reason string
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("consistency warning on %s.%s: %s", w.Target, w.Column, w.Reason)
}

func (w *ConsistencyWarning) Is(target error) bool {
	return target == ErrConsistency
}

// IsWarning reports whether err is only a consistency warning.
func IsWarning(err error) bool {
	return err != nil && errors.Is(err, ErrConsistency)
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
}

// Conflict wraps ErrConflict with context.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Transient wraps err as ErrTransientStore, keeping both in the chain.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}
