package postgres

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapErr translates driver errors into domain kinds. Anything unrecognized is returned as is
// and treated as unavailability by callers.
func mapErr(err, notFound, conflict error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return conflict
		case foreignKeyViolation:
			return notFound
		}
	}
	return err
}
