package sqlc

import (
	"fmt"
	"strings"
)

// Dialect isolates the per-engine quirks of SQL rendering. The compiler is
// otherwise engine-agnostic; a dialect is selected once at connection
// construction and held for the instance's lifetime.
type Dialect interface {
	// Name is the engine family name ("sqlite", "mysql", "postgres").
	Name() string

	// Placeholder renders the bind marker for the n-th parameter (1-based).
	Placeholder(n int) string

	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string

	// SupportsReturning reports whether INSERT ... RETURNING is available,
	// in which case generated ids come back as a result row instead of
	// through last-insert-id.
	SupportsReturning() bool

	// UpsertClause renders the conflict-resolution suffix of an upsert
	// statement. conflictCols identify the uniqueness target, updateCols
	// the columns rewritten on conflict. Both are pre-sorted.
	UpsertClause(conflictCols, updateCols []string) string

	// AllRowsLimit is the LIMIT token emitted when only an offset is set.
	// SQL engines disagree on whether OFFSET may appear without LIMIT.
	AllRowsLimit() string
}

// SQLite is the dialect for mattn/go-sqlite3.
var SQLite Dialect = sqliteDialect{}

// MySQL is the dialect for go-sql-driver/mysql.
var MySQL Dialect = mysqlDialect{}

// Postgres is the dialect for jackc/pgx.
var Postgres Dialect = postgresDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) Placeholder(int) string     { return "?" }
func (sqliteDialect) QuoteIdent(n string) string { return quoteDouble(n) }
func (sqliteDialect) SupportsReturning() bool    { return false }
func (sqliteDialect) AllRowsLimit() string       { return "-1" }

func (d sqliteDialect) UpsertClause(conflictCols, updateCols []string) string {
	return onConflictClause(d, conflictCols, updateCols)
}

type postgresDialect struct{}

func (postgresDialect) Name() string               { return "postgres" }
func (postgresDialect) Placeholder(n int) string   { return fmt.Sprintf("$%d", n) }
func (postgresDialect) QuoteIdent(n string) string { return quoteDouble(n) }
func (postgresDialect) SupportsReturning() bool    { return true }
func (postgresDialect) AllRowsLimit() string       { return "ALL" }

func (d postgresDialect) UpsertClause(conflictCols, updateCols []string) string {
	return onConflictClause(d, conflictCols, updateCols)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string            { return "mysql" }
func (mysqlDialect) Placeholder(int) string  { return "?" }
func (mysqlDialect) SupportsReturning() bool { return false }
func (mysqlDialect) AllRowsLimit() string    { return "18446744073709551615" }

func (mysqlDialect) QuoteIdent(n string) string {
	return "`" + strings.ReplaceAll(n, "`", "``") + "`"
}

// MySQL has no ON CONFLICT target list; uniqueness resolution is implicit
// in whatever unique keys the table declares.
func (d mysqlDialect) UpsertClause(_, updateCols []string) string {
	var b strings.Builder
	b.WriteString("ON DUPLICATE KEY UPDATE ")
	for i, col := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		q := d.QuoteIdent(col)
		b.WriteString(q)
		b.WriteString(" = VALUES(")
		b.WriteString(q)
		b.WriteString(")")
	}
	return b.String()
}

// onConflictClause renders the SQLite/PostgreSQL upsert suffix. Both engines
// share the ON CONFLICT ... DO UPDATE SET ... excluded.* form.
func onConflictClause(d Dialect, conflictCols, updateCols []string) string {
	var b strings.Builder
	b.WriteString("ON CONFLICT (")
	for i, col := range conflictCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(col))
	}
	b.WriteString(") DO UPDATE SET ")
	for i, col := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		q := d.QuoteIdent(col)
		b.WriteString(q)
		b.WriteString(" = excluded.")
		b.WriteString(q)
	}
	return b.String()
}

func quoteDouble(n string) string {
	return `"` + strings.ReplaceAll(n, `"`, `""`) + `"`
}
