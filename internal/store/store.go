// Package store holds the tenant-scoped SQL queries. Every function takes
// the database handle explicitly so it can run against *sqlx.DB or inside
// a *sqlx.Tx owned by the caller.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer = sqlx.ExtContext

// now is the clock used for created_at/updated_at. Tests may replace it.
var now = func() time.Time { return time.Now().UTC() }

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure from either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// get runs a single-row query written with ? placeholders.
func get(ctx context.Context, db Queryer, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db, dest, db.Rebind(query), args...)
}

// sel runs a multi-row query written with ? placeholders.
func sel(ctx context.Context, db Queryer, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db, dest, db.Rebind(query), args...)
}

// exec runs a statement and returns the number of affected rows.
func exec(ctx context.Context, db Queryer, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
