package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// MapError classifies a storage error once, at the repository boundary.
// Connection-class failures become shared.ErrUnavailable so business logic
// never branches on transport details; everything else passes through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.Wrap(shared.ErrUnavailable, "storage timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return shared.Wrap(shared.ErrUnavailable, "storage unreachable", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Repeatable-read transactions abort with 40001 when a concurrent
		// writer commits first, and 40P01 on deadlock. Both mean the same
		// thing to callers as a lost version check: re-read and retry.
		switch pgErr.Code {
		case "40001", "40P01":
			return shared.Wrap(shared.ErrConcurrencyConflict, "transaction aborted by concurrent writer, re-read and retry", err)
		}
		// Class 08 covers connection exceptions, 57 operator intervention
		// (shutdown), 53 insufficient resources.
		switch pgErr.Code[:2] {
		case "08", "57", "53":
			return shared.Wrap(shared.ErrUnavailable, "storage rejected connection", err)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally on a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
