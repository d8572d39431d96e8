package driver

import (
	"context"
	"database/sql"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
	"github.com/akron-db/akron/internal/schema"
	"github.com/akron-db/akron/internal/sqlc"
)

// sqlExecutor is the slice of database/sql shared by *sql.DB and *sql.Tx,
// so every operation runs against the open transaction when one is active.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLConn adapts a database/sql handle to the Adapter interface. The SQLite
// and MySQL backends are both built on it; only the dialect and the engine
// error translation differ.
type SQLConn struct {
	db        *sql.DB
	tx        *sql.Tx
	compiler  *sqlc.Compiler
	translate func(error) error
}

// NewSQLConn wraps an open database/sql handle. translate maps engine-native
// errors onto the shared taxonomy; it must pass nil through.
func NewSQLConn(db *sql.DB, dialect sqlc.Dialect, translate func(error) error) *SQLConn {
	return &SQLConn{db: db, compiler: sqlc.New(dialect), translate: translate}
}

func (s *SQLConn) Name() string { return s.compiler.Dialect().Name() }

// Capabilities: real transactions, no native single-round-trip upsert keyed
// by an arbitrary lookup filter, no batched multi-row insert path here
// (MySQL and SQLite report ids through LastInsertId, one statement per row).
func (s *SQLConn) Capabilities() Capabilities {
	return Capabilities{MultiStatementTx: true}
}

func (s *SQLConn) exec() sqlExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *SQLConn) Query(ctx context.Context, spec queryir.Spec) ([]Record, error) {
	stmt, err := s.compiler.CompileSelect(spec)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, stmt)
}

func (s *SQLConn) Count(ctx context.Context, spec queryir.Spec) (int64, error) {
	stmt, err := s.compiler.CompileCount(spec)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.exec().QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, s.translate(err)
	}
	return n, nil
}

func (s *SQLConn) Exists(ctx context.Context, spec queryir.Spec) (bool, error) {
	stmt, err := s.compiler.CompileExists(spec)
	if err != nil {
		return false, err
	}
	// SQLite and MySQL surface EXISTS as an integer column.
	var n int64
	if err := s.exec().QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return false, s.translate(err)
	}
	return n != 0, nil
}

func (s *SQLConn) Aggregate(ctx context.Context, spec queryir.Spec) ([]Record, error) {
	stmt, err := s.compiler.CompileAggregate(spec)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, stmt)
}

func (s *SQLConn) Insert(ctx context.Context, table string, values map[string]any) (any, error) {
	stmt, err := s.compiler.CompileInsert(table, values)
	if err != nil {
		return nil, err
	}
	res, err := s.exec().ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, s.translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "read generated id", err)
	}
	return id, nil
}

// InsertMany loops single-row inserts. When no transaction is open it wraps
// the loop in one, so a failing row never leaves a partial batch behind.
func (s *SQLConn) InsertMany(ctx context.Context, table string, rows []map[string]any) ([]any, error) {
	if len(rows) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "bulk insert needs at least one row")
	}

	scoped := s.tx == nil
	if scoped {
		if err := s.Begin(ctx); err != nil {
			return nil, err
		}
	}

	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		id, err := s.Insert(ctx, table, row)
		if err != nil {
			if scoped {
				_ = s.Rollback(ctx)
			}
			return nil, err
		}
		ids = append(ids, id)
	}

	if scoped {
		if err := s.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *SQLConn) Update(ctx context.Context, table string, conds []queryir.Condition, values map[string]any) (int64, error) {
	stmt, err := s.compiler.CompileUpdate(table, conds, values)
	if err != nil {
		return 0, err
	}
	res, err := s.exec().ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, s.translate(err)
	}
	return s.rowsAffected(res)
}

func (s *SQLConn) Delete(ctx context.Context, table string, conds []queryir.Condition) (int64, error) {
	stmt, err := s.compiler.CompileDelete(table, conds)
	if err != nil {
		return 0, err
	}
	res, err := s.exec().ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, s.translate(err)
	}
	return s.rowsAffected(res)
}

func (s *SQLConn) Upsert(ctx context.Context, table string, lookup, values map[string]any) (Record, error) {
	return TwoStepUpsert(ctx, s, table, lookup, values)
}

func (s *SQLConn) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errs.New(errs.CodeTransactionState, "transaction already active")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.translate(err)
	}
	s.tx = tx
	return nil
}

func (s *SQLConn) Commit(context.Context) error {
	if s.tx == nil {
		return errs.New(errs.CodeTransactionState, "no active transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *SQLConn) Rollback(context.Context) error {
	if s.tx == nil {
		return errs.New(errs.CodeTransactionState, "no active transaction")
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *SQLConn) CreateTable(ctx context.Context, table string, columns map[string]string) error {
	ddl, err := schema.CreateTableSQL(s.compiler.Dialect(), table, columns)
	if err != nil {
		return err
	}
	if _, err := s.exec().ExecContext(ctx, ddl); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *SQLConn) DropTable(ctx context.Context, table string) error {
	if _, err := s.exec().ExecContext(ctx, schema.DropTableSQL(s.compiler.Dialect(), table)); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *SQLConn) CreateIndex(ctx context.Context, table string, fields []string, unique bool) error {
	ddl, err := schema.CreateIndexSQL(s.compiler.Dialect(), table, fields, unique)
	if err != nil {
		return err
	}
	if _, err := s.exec().ExecContext(ctx, ddl); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *SQLConn) Close(context.Context) error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

func (s *SQLConn) queryRecords(ctx context.Context, stmt sqlc.Statement) ([]Record, error) {
	rows, err := s.exec().QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, s.translate(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLConn) rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.CodeInternal, "read affected row count", err)
	}
	return n, nil
}

// scanRecords materializes rows as normalized records.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "read result columns", err)
	}

	var records []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "scan result row", err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = NormalizeValue(vals[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "iterate result rows", err)
	}
	return records, nil
}

var _ Adapter = (*SQLConn)(nil)
