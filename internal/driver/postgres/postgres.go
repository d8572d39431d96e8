// Package postgres adapts a pgx connection pool to the driver interface.
package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/driver"
	"github.com/akron-db/akron/internal/queryir"
	"github.com/akron-db/akron/internal/schema"
	"github.com/akron-db/akron/internal/sqlc"
)

// querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// operation runs against the open transaction when one is active.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn adapts a PostgreSQL connection pool. Not safe for concurrent use:
// the open transaction is adapter state.
type Conn struct {
	pool     *pgxpool.Pool
	tx       pgx.Tx
	compiler *sqlc.Compiler
}

// Open connects to a PostgreSQL database using a pgx connection URL.
func Open(ctx context.Context, url string) (*Conn, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConnection, "open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.CodeConnection, "connect to postgres database", err)
	}
	return &Conn{pool: pool, compiler: sqlc.New(sqlc.Postgres)}, nil
}

func (c *Conn) Name() string { return "postgres" }

// Capabilities: real transactions and a single-statement batched insert
// through multi-row INSERT .. RETURNING. Upserts keyed by arbitrary lookup
// filters still take the two-step path.
func (c *Conn) Capabilities() driver.Capabilities {
	return driver.Capabilities{MultiStatementTx: true, BatchInsert: true}
}

func (c *Conn) exec() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.pool
}

func (c *Conn) Query(ctx context.Context, spec queryir.Spec) ([]driver.Record, error) {
	stmt, err := c.compiler.CompileSelect(spec)
	if err != nil {
		return nil, err
	}
	return c.queryRecords(ctx, stmt)
}

func (c *Conn) Count(ctx context.Context, spec queryir.Spec) (int64, error) {
	stmt, err := c.compiler.CompileCount(spec)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.exec().QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (c *Conn) Exists(ctx context.Context, spec queryir.Spec) (bool, error) {
	stmt, err := c.compiler.CompileExists(spec)
	if err != nil {
		return false, err
	}
	var found bool
	if err := c.exec().QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&found); err != nil {
		return false, translate(err)
	}
	return found, nil
}

func (c *Conn) Aggregate(ctx context.Context, spec queryir.Spec) ([]driver.Record, error) {
	stmt, err := c.compiler.CompileAggregate(spec)
	if err != nil {
		return nil, err
	}
	return c.queryRecords(ctx, stmt)
}

// Insert reads the generated id back through RETURNING.
func (c *Conn) Insert(ctx context.Context, table string, values map[string]any) (any, error) {
	stmt, err := c.compiler.CompileInsert(table, values)
	if err != nil {
		return nil, err
	}
	var id any
	if err := c.exec().QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&id); err != nil {
		return nil, translate(err)
	}
	return driver.NormalizeValue(id), nil
}

// InsertMany is one multi-row INSERT; RETURNING yields the generated ids
// in input order.
func (c *Conn) InsertMany(ctx context.Context, table string, rows []map[string]any) ([]any, error) {
	stmt, err := c.compiler.CompileInsertMany(table, rows)
	if err != nil {
		return nil, err
	}
	res, err := c.exec().Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, translate(err)
	}
	defer res.Close()

	ids := make([]any, 0, len(rows))
	for res.Next() {
		var id any
		if err := res.Scan(&id); err != nil {
			return nil, translate(err)
		}
		ids = append(ids, driver.NormalizeValue(id))
	}
	if err := res.Err(); err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (c *Conn) Update(ctx context.Context, table string, conds []queryir.Condition, values map[string]any) (int64, error) {
	stmt, err := c.compiler.CompileUpdate(table, conds, values)
	if err != nil {
		return 0, err
	}
	tag, err := c.exec().Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (c *Conn) Delete(ctx context.Context, table string, conds []queryir.Condition) (int64, error) {
	stmt, err := c.compiler.CompileDelete(table, conds)
	if err != nil {
		return 0, err
	}
	tag, err := c.exec().Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (c *Conn) Upsert(ctx context.Context, table string, lookup, values map[string]any) (driver.Record, error) {
	return driver.TwoStepUpsert(ctx, c, table, lookup, values)
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errs.New(errs.CodeTransactionState, "transaction already active")
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return translate(err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errs.New(errs.CodeTransactionState, "no active transaction")
	}
	err := c.tx.Commit(ctx)
	c.tx = nil
	if err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errs.New(errs.CodeTransactionState, "no active transaction")
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return translate(err)
	}
	return nil
}

func (c *Conn) CreateTable(ctx context.Context, table string, columns map[string]string) error {
	ddl, err := schema.CreateTableSQL(c.compiler.Dialect(), table, columns)
	if err != nil {
		return err
	}
	if _, err := c.exec().Exec(ctx, ddl); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) DropTable(ctx context.Context, table string) error {
	if _, err := c.exec().Exec(ctx, schema.DropTableSQL(c.compiler.Dialect(), table)); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) CreateIndex(ctx context.Context, table string, fields []string, unique bool) error {
	ddl, err := schema.CreateIndexSQL(c.compiler.Dialect(), table, fields, unique)
	if err != nil {
		return err
	}
	if _, err := c.exec().Exec(ctx, ddl); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	if c.tx != nil {
		_ = c.tx.Rollback(ctx)
		c.tx = nil
	}
	c.pool.Close()
	return nil
}

func (c *Conn) queryRecords(ctx context.Context, stmt sqlc.Statement) ([]driver.Record, error) {
	rows, err := c.exec().Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var records []driver.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, translate(err)
		}
		rec := make(driver.Record, len(fields))
		for i, fd := range fields {
			rec[string(fd.Name)] = driver.NormalizeValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return records, nil
}

// translate maps engine errors onto the shared taxonomy. SQLSTATE class 23
// covers the integrity-constraint violations; 42P01 is undefined_table.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var perr *pgconn.PgError
	if errors.As(err, &perr) {
		switch {
		case strings.HasPrefix(perr.Code, "23"):
			return errs.Wrap(errs.CodeConstraintViolation, "postgres constraint violated", err)
		case perr.Code == "42P01":
			return errs.Wrap(errs.CodeTableNotFound, "table does not exist", err)
		}
	}
	return errs.Wrap(errs.CodeInternal, "postgres operation failed", err)
}

var _ driver.Adapter = (*Conn)(nil)
