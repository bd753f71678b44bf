// Package repositories reads and writes the system store.
package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// Querier is the subset of pgxpool.Pool the repositories use.
// *database.DB and pgx.Tx both satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

// mapError translates driver errors into apperrors sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.ErrConflict
	}
	return err
}

// optionalID maps uuid.Nil to SQL NULL so "($n::uuid IS NULL OR col = $n)"
// filters match every row.
func optionalID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
