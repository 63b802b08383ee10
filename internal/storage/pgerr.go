package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// containsPgErrCode reports whether err is (or wraps) a *pgconn.PgError with
// the given SQLSTATE code.
func containsPgErrCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
