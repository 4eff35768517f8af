package shortener

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	shortCodeUniqueIndex = "links_short_code_lower_unique"
)

func pgErrorCode(err error) (code, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", "", false
	}
	return pgErr.Code, pgErr.ConstraintName, true
}

func isShortCodeUniqueViolation(err error) bool {
	code, constraint, ok := pgErrorCode(err)
	return ok && code == pgUniqueViolation && constraint == shortCodeUniqueIndex
}

func isOwnerForeignKeyViolation(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == pgForeignKeyViolation
}

func isCheckViolation(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == pgCheckViolation
}
