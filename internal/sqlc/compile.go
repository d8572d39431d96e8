// Package sqlc compiles query specifications to parameterized SQL for the
// relational backends.
//
// Every value travels as a bound parameter; nothing caller-supplied is ever
// interpolated into the statement text except identifiers, which are quoted
// through the dialect. Identifier lists derived from maps are sorted so the
// same input always renders the same statement.
package sqlc

import (
	"sort"
	"strings"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

// Statement is a compiled relational query: SQL text plus positional
// parameters in placeholder order.
type Statement struct {
	SQL  string
	Args []any
}

// aggregateFns maps the abstract aggregate function names to SQL.
var aggregateFns = map[string]string{
	"sum":   "SUM",
	"count": "COUNT",
	"avg":   "AVG",
	"min":   "MIN",
	"max":   "MAX",
}

// Compiler renders query specifications for one SQL dialect.
type Compiler struct {
	dialect Dialect
}

// New creates a Compiler bound to the given dialect.
func New(dialect Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// stmt accumulates SQL text and bound parameters, tracking placeholder
// ordinals for dialects with numbered markers.
type stmt struct {
	dialect Dialect
	sql     strings.Builder
	args    []any
}

func (s *stmt) write(text string) { s.sql.WriteString(text) }
func (s *stmt) ident(name string) { s.sql.WriteString(s.dialect.QuoteIdent(name)) }

// bind appends a parameter and writes its placeholder.
func (s *stmt) bind(v any) {
	s.args = append(s.args, v)
	s.sql.WriteString(s.dialect.Placeholder(len(s.args)))
}

func (s *stmt) statement() Statement {
	return Statement{SQL: s.sql.String(), Args: s.args}
}

// CompileSelect renders a row-selection query.
func (c *Compiler) CompileSelect(spec queryir.Spec) (Statement, error) {
	s := &stmt{dialect: c.dialect}

	s.write("SELECT ")
	if len(spec.Projection) == 0 {
		s.write("*")
	} else {
		for i, field := range spec.Projection {
			if i > 0 {
				s.write(", ")
			}
			s.ident(field)
		}
	}
	s.write(" FROM ")
	s.ident(spec.Table)

	c.writeJoins(s, spec.Joins)

	if err := c.writeWhere(s, spec.Where); err != nil {
		return Statement{}, err
	}
	c.writeOrderBy(s, spec.Sort)
	c.writeBounds(s, spec.Limit, spec.Offset)

	return s.statement(), nil
}

// CompileCount renders a COUNT(*) query over the same filter and joins,
// bypassing row materialization.
func (c *Compiler) CompileCount(spec queryir.Spec) (Statement, error) {
	s := &stmt{dialect: c.dialect}

	s.write("SELECT COUNT(*) FROM ")
	s.ident(spec.Table)
	c.writeJoins(s, spec.Joins)
	if err := c.writeWhere(s, spec.Where); err != nil {
		return Statement{}, err
	}

	return s.statement(), nil
}

// CompileExists renders a single-row existence probe. The inner LIMIT 1
// stops the scan at the first match; the full result set is never
// materialized.
func (c *Compiler) CompileExists(spec queryir.Spec) (Statement, error) {
	s := &stmt{dialect: c.dialect}

	s.write("SELECT EXISTS(SELECT 1 FROM ")
	s.ident(spec.Table)
	if err := c.writeWhere(s, spec.Where); err != nil {
		return Statement{}, err
	}
	s.write(" LIMIT 1)")

	return s.statement(), nil
}

// CompileAggregate renders a grouped aggregate query. Aggregate function
// names map 1:1 to SQL; an unknown name is an unsupported operation.
func (c *Compiler) CompileAggregate(spec queryir.Spec) (Statement, error) {
	if len(spec.Aggregates) == 0 {
		return Statement{}, errs.New(errs.CodeInvalidArgument, "aggregate query needs at least one aggregate function")
	}

	s := &stmt{dialect: c.dialect}
	s.write("SELECT ")

	for i, field := range spec.GroupBy {
		if i > 0 {
			s.write(", ")
		}
		s.ident(field)
	}
	for i, agg := range spec.Aggregates {
		fn, ok := aggregateFns[agg.Fn]
		if !ok {
			return Statement{}, errs.Newf(errs.CodeUnsupportedOperation, "unknown aggregate function %q", agg.Fn)
		}
		if i > 0 || len(spec.GroupBy) > 0 {
			s.write(", ")
		}
		s.write(fn)
		s.write("(")
		if agg.Field == "*" {
			s.write("*")
		} else {
			s.ident(agg.Field)
		}
		s.write(") AS ")
		s.ident(agg.As)
	}

	s.write(" FROM ")
	s.ident(spec.Table)
	c.writeJoins(s, spec.Joins)
	if err := c.writeWhere(s, spec.Where); err != nil {
		return Statement{}, err
	}

	if len(spec.GroupBy) > 0 {
		s.write(" GROUP BY ")
		for i, field := range spec.GroupBy {
			if i > 0 {
				s.write(", ")
			}
			s.ident(field)
		}
	}

	c.writeOrderBy(s, spec.Sort)
	c.writeBounds(s, spec.Limit, spec.Offset)

	return s.statement(), nil
}

// CompileInsert renders a single-row insert. When the dialect supports
// RETURNING, the generated id comes back as a result row.
func (c *Compiler) CompileInsert(table string, values map[string]any) (Statement, error) {
	cols, err := sortedColumns(values)
	if err != nil {
		return Statement{}, err
	}

	s := &stmt{dialect: c.dialect}
	c.writeInsertHead(s, table, cols)
	s.write(" VALUES ")
	c.writeValueGroup(s, cols, values)

	if c.dialect.SupportsReturning() {
		s.write(" RETURNING ")
		s.ident("id")
	}

	return s.statement(), nil
}

// CompileInsertMany renders a multi-row insert in a single statement.
// All rows must share one column set; the batched form cannot express
// ragged rows.
func (c *Compiler) CompileInsertMany(table string, rows []map[string]any) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, errs.New(errs.CodeInvalidArgument, "bulk insert needs at least one row")
	}
	cols, err := sortedColumns(rows[0])
	if err != nil {
		return Statement{}, err
	}
	for _, row := range rows[1:] {
		if len(row) != len(cols) {
			return Statement{}, errs.New(errs.CodeInvalidArgument, "bulk insert rows must share one column set")
		}
		for _, col := range cols {
			if _, ok := row[col]; !ok {
				return Statement{}, errs.Newf(errs.CodeInvalidArgument, "bulk insert row missing column %q", col)
			}
		}
	}

	s := &stmt{dialect: c.dialect}
	c.writeInsertHead(s, table, cols)
	s.write(" VALUES ")
	for i, row := range rows {
		if i > 0 {
			s.write(", ")
		}
		c.writeValueGroup(s, cols, row)
	}

	if c.dialect.SupportsReturning() {
		s.write(" RETURNING ")
		s.ident("id")
	}

	return s.statement(), nil
}

// CompileUpdate renders a filtered update. An empty condition list updates
// every row; callers decide whether to permit that.
func (c *Compiler) CompileUpdate(table string, conds []queryir.Condition, values map[string]any) (Statement, error) {
	cols, err := sortedColumns(values)
	if err != nil {
		return Statement{}, err
	}

	s := &stmt{dialect: c.dialect}
	s.write("UPDATE ")
	s.ident(table)
	s.write(" SET ")
	for i, col := range cols {
		if i > 0 {
			s.write(", ")
		}
		s.ident(col)
		s.write(" = ")
		s.bind(values[col])
	}
	if err := c.writeWhere(s, conds); err != nil {
		return Statement{}, err
	}

	return s.statement(), nil
}

// CompileDelete renders a filtered delete.
func (c *Compiler) CompileDelete(table string, conds []queryir.Condition) (Statement, error) {
	s := &stmt{dialect: c.dialect}
	s.write("DELETE FROM ")
	s.ident(table)
	if err := c.writeWhere(s, conds); err != nil {
		return Statement{}, err
	}
	return s.statement(), nil
}

// CompileUpsert renders the engine's native conditional insert. The lookup
// columns form the conflict target and must be covered by a unique
// constraint for the statement to resolve conflicts; without one the engines
// report a constraint error instead of updating.
func (c *Compiler) CompileUpsert(table string, lookup, values map[string]any) (Statement, error) {
	if len(lookup) == 0 {
		return Statement{}, errs.New(errs.CodeInvalidArgument, "upsert needs a lookup filter")
	}
	if len(values) == 0 {
		return Statement{}, errs.New(errs.CodeInvalidArgument, "upsert needs values")
	}

	merged := make(map[string]any, len(lookup)+len(values))
	for k, v := range lookup {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}

	cols, err := sortedColumns(merged)
	if err != nil {
		return Statement{}, err
	}
	conflictCols := sortedKeys(lookup)
	updateCols := sortedKeys(values)

	s := &stmt{dialect: c.dialect}
	c.writeInsertHead(s, table, cols)
	s.write(" VALUES ")
	c.writeValueGroup(s, cols, merged)
	s.write(" ")
	s.write(c.dialect.UpsertClause(conflictCols, updateCols))

	return s.statement(), nil
}

func (c *Compiler) writeInsertHead(s *stmt, table string, cols []string) {
	s.write("INSERT INTO ")
	s.ident(table)
	s.write(" (")
	for i, col := range cols {
		if i > 0 {
			s.write(", ")
		}
		s.ident(col)
	}
	s.write(")")
}

func (c *Compiler) writeValueGroup(s *stmt, cols []string, row map[string]any) {
	s.write("(")
	for i, col := range cols {
		if i > 0 {
			s.write(", ")
		}
		s.bind(row[col])
	}
	s.write(")")
}

func (c *Compiler) writeJoins(s *stmt, joins []queryir.Join) {
	for _, j := range joins {
		s.write(" INNER JOIN ")
		s.ident(j.Table)
		s.write(" ON ")
		// The join condition is a caller-supplied predicate over already
		// trusted identifiers; it carries no caller data values.
		s.write(j.Condition)
	}
}

// writeWhere renders the AND-combined condition list. No clause is emitted
// for an empty list.
func (c *Compiler) writeWhere(s *stmt, conds []queryir.Condition) error {
	if len(conds) == 0 {
		return nil
	}
	s.write(" WHERE ")
	for i, cond := range conds {
		if i > 0 {
			s.write(" AND ")
		}
		if err := c.writeCondition(s, cond); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) writeCondition(s *stmt, cond queryir.Condition) error {
	switch cond.Op {
	case queryir.OpEqual:
		s.ident(cond.Field)
		s.write(" = ")
		s.bind(cond.Value)
	case queryir.OpNotEqual:
		s.ident(cond.Field)
		s.write(" <> ")
		s.bind(cond.Value)
	case queryir.OpGreaterThan:
		s.ident(cond.Field)
		s.write(" > ")
		s.bind(cond.Value)
	case queryir.OpGreaterOrEqual:
		s.ident(cond.Field)
		s.write(" >= ")
		s.bind(cond.Value)
	case queryir.OpLessThan:
		s.ident(cond.Field)
		s.write(" < ")
		s.bind(cond.Value)
	case queryir.OpLessOrEqual:
		s.ident(cond.Field)
		s.write(" <= ")
		s.bind(cond.Value)
	case queryir.OpIn:
		return c.writeIn(s, cond)
	case queryir.OpLike:
		s.ident(cond.Field)
		s.write(" LIKE ")
		s.bind(cond.Value)
	case queryir.OpIsNull:
		s.ident(cond.Field)
		if cond.Value == true {
			s.write(" IS NULL")
		} else {
			s.write(" IS NOT NULL")
		}
	default:
		return errs.Newf(errs.CodeUnsupportedOperation, "operator %q has no SQL rendering", cond.Op)
	}
	return nil
}

// writeIn renders set membership with one placeholder per element.
// An empty set compiles to a clause matching zero rows, never to
// syntactically invalid SQL.
func (c *Compiler) writeIn(s *stmt, cond queryir.Condition) error {
	values, ok := cond.Value.([]any)
	if !ok {
		return errs.Newf(errs.CodeInvalidOperator, "field %q: in requires a normalized value list", cond.Field)
	}
	if len(values) == 0 {
		s.write("1 = 0")
		return nil
	}
	s.ident(cond.Field)
	s.write(" IN (")
	for i, v := range values {
		if i > 0 {
			s.write(", ")
		}
		s.bind(v)
	}
	s.write(")")
	return nil
}

func (c *Compiler) writeOrderBy(s *stmt, keys []queryir.SortKey) {
	if len(keys) == 0 {
		return
	}
	s.write(" ORDER BY ")
	for i, key := range keys {
		if i > 0 {
			s.write(", ")
		}
		s.ident(key.Field)
		if key.Desc {
			s.write(" DESC")
		} else {
			s.write(" ASC")
		}
	}
}

// writeBounds renders LIMIT/OFFSET. Bounds are bound parameters; the only
// inline token is the dialect's all-rows limit, needed because not every
// engine accepts OFFSET without LIMIT.
func (c *Compiler) writeBounds(s *stmt, limit, offset int) {
	switch {
	case limit != queryir.Unbounded:
		s.write(" LIMIT ")
		s.bind(limit)
	case offset != queryir.Unbounded:
		s.write(" LIMIT ")
		s.write(c.dialect.AllRowsLimit())
	}
	if offset != queryir.Unbounded {
		s.write(" OFFSET ")
		s.bind(offset)
	}
}

func sortedColumns(values map[string]any) ([]string, error) {
	if len(values) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "empty value map")
	}
	return sortedKeys(values), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
