package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique violation. With no
// constraint names it matches any unique violation; with names it matches only
// violations of one of those constraints, so callers can tell a partial-index
// conflict apart from an order-code collision.
func IsUniqueViolation(err error, constraints ...string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolationCode {
			return false
		}
		if len(constraints) == 0 {
			return true
		}
		for _, name := range constraints {
			if pgErr.ConstraintName == name {
				return true
			}
		}
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, name := range constraints {
		if strings.Contains(msg, name) {
			return true
		}
	}
	return false
}
