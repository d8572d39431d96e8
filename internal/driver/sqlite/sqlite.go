// Package sqlite opens SQLite database handles for the shared SQL adapter.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/driver"
	"github.com/akron-db/akron/internal/sqlc"
)

// Open creates or opens a SQLite database at the given path (":memory:"
// for a throwaway database). The handle is configured with WAL mode, a
// busy timeout, and foreign-key enforcement, and limited to a single
// connection since SQLite allows one writer at a time.
func Open(path string) (*driver.SQLConn, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConnection, "open sqlite database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.CodeConnection, "connect to sqlite database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return driver.NewSQLConn(db, sqlc.SQLite, translate), nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errs.Wrap(errs.CodeConnection, fmt.Sprintf("apply %q", pragma), err)
		}
	}
	return nil
}

// translate maps engine errors onto the shared taxonomy. The original
// engine error stays on the chain for errors.Unwrap.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch {
		case serr.Code == sqlite3.ErrConstraint:
			return errs.Wrap(errs.CodeConstraintViolation, "sqlite constraint violated", err)
		case serr.Code == sqlite3.ErrError && strings.Contains(serr.Error(), "no such table"):
			return errs.Wrap(errs.CodeTableNotFound, "table does not exist", err)
		}
	}
	return errs.Wrap(errs.CodeInternal, "sqlite operation failed", err)
}
