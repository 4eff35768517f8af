// Package sqlite opens database/sql handles for local SQLite files and
// hosted libsql databases, and classifies their constraint errors.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

// DriverFor picks the database/sql driver for url: libsql for hosted
// databases, the embedded modernc driver otherwise.
func DriverFor(url string) string {
	if strings.HasPrefix(url, "libsql://") || strings.HasPrefix(url, "wss://") {
		return DriverLibSQL
	}
	return DriverSQLite
}

// Open opens and pings url. Local files get foreign keys enabled and a busy
// timeout so concurrent writers wait instead of failing.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	driver := DriverFor(url)
	dsn := url
	if driver == DriverSQLite {
		dsn = withPragmas(url)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func withPragmas(url string) string {
	var add []string
	if !strings.Contains(url, "foreign_keys") {
		add = append(add, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(url, "busy_timeout") {
		add = append(add, "_pragma=busy_timeout(5000)")
	}
	if len(add) == 0 {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strings.Join(add, "&")
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
// A non-empty index restricts the match to that index or column.
func IsUniqueViolation(err error, index string) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return false
		}
		return index == "" || strings.Contains(se.Error(), index)
	}
	// libsql reports errors as text from the remote server.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		(index == "" || strings.Contains(msg, index))
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}
