// Package mysql opens MySQL database handles for the shared SQL adapter.
package mysql

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/driver"
	"github.com/akron-db/akron/internal/sqlc"
)

// Engine error numbers worth distinguishing; everything else maps to the
// internal code.
const (
	errDuplicateEntry   = 1062
	errNoSuchTable      = 1146
	errForeignKeyFails  = 1452
	errForeignKeyParent = 1451
)

// Open connects to a MySQL database. dsn is a go-sql-driver DSN, e.g.
// "user:pass@tcp(localhost:3306)/dbname?parseTime=true".
func Open(dsn string) (*driver.SQLConn, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConnection, "open mysql database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.CodeConnection, "connect to mysql database", err)
	}
	return driver.NewSQLConn(db, sqlc.MySQL, translate), nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		switch merr.Number {
		case errDuplicateEntry, errForeignKeyFails, errForeignKeyParent:
			return errs.Wrap(errs.CodeConstraintViolation, "mysql constraint violated", err)
		case errNoSuchTable:
			return errs.Wrap(errs.CodeTableNotFound, "table does not exist", err)
		}
	}
	return errs.Wrap(errs.CodeInternal, "mysql operation failed", err)
}
