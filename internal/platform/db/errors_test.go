package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

func TestMapErrorClassifiesSerializationFailures(t *testing.T) {
	cases := []struct {
		name string
		code string
	}{
		{"serialization failure", "40001"},
		{"deadlock detected", "40P01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapError(&pgconn.PgError{Code: tc.code})
			require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		})
	}
}

func TestMapErrorClassifiesConnectionFailures(t *testing.T) {
	for _, code := range []string{"08006", "57P01", "53300"} {
		err := MapError(&pgconn.PgError{Code: code})
		require.ErrorIs(t, err, shared.ErrUnavailable, "code %s", code)
	}

	require.ErrorIs(t, MapError(context.DeadlineExceeded), shared.ErrUnavailable)
}

func TestMapErrorPassesThroughConstraintViolations(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_challan_order_owner"}
	mapped := MapError(unique)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, mapped, &pgErr)
	require.Equal(t, "23505", pgErr.Code)
	require.True(t, IsUniqueViolation(mapped, "uq_challan_order_owner"))
	require.False(t, IsUniqueViolation(mapped, "other_constraint"))
}

func TestMapErrorNil(t *testing.T) {
	require.NoError(t, MapError(nil))
	plain := errors.New("boom")
	require.Equal(t, plain, MapError(plain))
}
