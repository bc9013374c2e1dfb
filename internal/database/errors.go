package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/apperrors"
)

// Classify maps a driver or gorm error onto the apperrors taxonomy. Errors
// that already carry a taxonomy sentinel, and context cancellation, are
// returned unchanged. Anything unrecognised is returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrTransientStore),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return wrap(err, apperrors.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return wrap(err, apperrors.ErrConflict)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.Transient(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel := classifySQLState(pgErr.Code); sentinel != nil {
			return wrap(err, sentinel)
		}
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if sentinel := classifySQLState(string(pqErr.Code)); sentinel != nil {
			return wrap(err, sentinel)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Transient(err)
	}

	// SQLite surfaces its result codes only through the message text
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return wrap(err, apperrors.ErrConflict)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return apperrors.Transient(err)
	}
	return err
}

func classifySQLState(code string) error {
	switch {
	case code == "23505", // unique_violation
		code == "40001", // serialization_failure
		code == "40P01": // deadlock_detected
		return apperrors.ErrConflict
	case code == "P0002": // no_data_found, raised by calculate_user_karma
		return apperrors.ErrNotFound
	case strings.HasPrefix(code, "08"), // connection exception
		code == "53300", // too_many_connections
		code == "57P01", // admin_shutdown
		code == "57P03": // cannot_connect_now
		return apperrors.ErrTransientStore
	}
	return nil
}

func wrap(err, sentinel error) error {
	if sentinel == apperrors.ErrTransientStore {
		return apperrors.Transient(err)
	}
	return &classified{err: err, sentinel: sentinel}
}

type classified struct {
	err      error
	sentinel error
}

func (c *classified) Error() string { return c.err.Error() }

func (c *classified) Unwrap() []error { return []error{c.sentinel, c.err} }
