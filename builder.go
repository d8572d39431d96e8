package akron

import (
	"context"
	"strings"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/filter"
	"github.com/akron-db/akron/internal/queryir"
)

// Query is a fluent builder. Chain methods accumulate into an immutable
// specification; nothing touches the database until a terminal method
// (All, First, Count) runs. Validation failures stick to the builder and
// surface on the terminal call, so chains never need mid-chain error
// checks.
type Query struct {
	db       *DB
	spec     queryir.Spec
	err      error
	executed bool
}

// Query starts a builder over the named table or collection.
func (db *DB) Query(table string) *Query {
	q := &Query{db: db, spec: queryir.NewSpec(table)}
	if table == "" {
		q.err = errs.New(errs.CodeInvalidArgument, "query needs a table name")
	}
	return q
}

// Where adds filter constraints. Keys follow the field__operator grammar;
// a bare field name means equality. Repeated calls AND together.
func (q *Query) Where(filters map[string]any) *Query {
	if q.err != nil {
		return q
	}
	conds, err := filter.Parse(filters)
	if err != nil {
		q.err = err
		return q
	}
	q.spec.Where = append(q.spec.Where, conds...)
	return q
}

// OrderBy adds sort keys. A leading "-" sorts descending: OrderBy("-age",
// "name") is age descending, then name ascending.
func (q *Query) OrderBy(fields ...string) *Query {
	if q.err != nil {
		return q
	}
	for _, field := range fields {
		name, desc := strings.CutPrefix(field, "-")
		if name == "" {
			q.err = errs.Newf(errs.CodeInvalidArgument, "order_by field %q has no name", field)
			return q
		}
		q.spec.Sort = append(q.spec.Sort, queryir.SortKey{Field: name, Desc: desc})
	}
	return q
}

// Limit caps the result set. Zero is legal and matches nothing.
func (q *Query) Limit(n int) *Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		q.err = errs.Newf(errs.CodeInvalidArgument, "limit must not be negative, got %d", n)
		return q
	}
	q.spec.Limit = n
	return q
}

// Offset skips the first n results.
func (q *Query) Offset(n int) *Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		q.err = errs.Newf(errs.CodeInvalidArgument, "offset must not be negative, got %d", n)
		return q
	}
	q.spec.Offset = n
	return q
}

// Paginate sets limit and offset from a 1-indexed page number:
// page 2 with 10 per page reads rows 10..19.
func (q *Query) Paginate(page, perPage int) *Query {
	if q.err != nil {
		return q
	}
	if page < 1 || perPage < 1 {
		q.err = errs.Newf(errs.CodeInvalidArgument,
			"paginate needs page >= 1 and per_page >= 1, got page=%d per_page=%d", page, perPage)
		return q
	}
	q.spec.Limit = perPage
	q.spec.Offset = (page - 1) * perPage
	return q
}

// Join adds an inner join. The condition is a raw predicate over
// identifiers ("users.id = posts.user_id"); the document backend rejects
// joins at compile time.
func (q *Query) Join(table, condition string) *Query {
	if q.err != nil {
		return q
	}
	if table == "" || condition == "" {
		q.err = errs.New(errs.CodeInvalidArgument, "join needs a table and a condition")
		return q
	}
	q.spec.Joins = append(q.spec.Joins, queryir.Join{Table: table, Condition: condition})
	return q
}

// Select narrows the projection to the named fields.
func (q *Query) Select(fields ...string) *Query {
	if q.err != nil {
		return q
	}
	q.spec.Projection = append(q.spec.Projection, fields...)
	return q
}

// freeze validates and hands out the spec exactly once. The second
// terminal call on a builder fails instead of silently re-running with
// stale state.
func (q *Query) freeze() (queryir.Spec, error) {
	if q.err != nil {
		return queryir.Spec{}, q.err
	}
	if q.executed {
		return queryir.Spec{}, errs.New(errs.CodeQueryExecuted, "query builder already executed")
	}
	q.executed = true
	return q.spec, nil
}

// All executes the query and returns every matching record in order.
func (q *Query) All(ctx context.Context) ([]Record, error) {
	spec, err := q.freeze()
	if err != nil {
		return nil, err
	}
	q.db.log.Debug().Str("table", spec.Table).Int("conditions", len(spec.Where)).Msg("query all")
	return q.db.adapter.Query(ctx, spec)
}

// First executes with limit forced to 1 and returns the first match, or
// nil when nothing matches.
func (q *Query) First(ctx context.Context) (Record, error) {
	spec, err := q.freeze()
	if err != nil {
		return nil, err
	}
	spec = spec.WithLimit(1)
	q.db.log.Debug().Str("table", spec.Table).Msg("query first")

	recs, err := q.db.adapter.Query(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Count executes a count-shaped query, bypassing row materialization.
func (q *Query) Count(ctx context.Context) (int64, error) {
	spec, err := q.freeze()
	if err != nil {
		return 0, err
	}
	q.db.log.Debug().Str("table", spec.Table).Msg("query count")
	return q.db.adapter.Count(ctx, spec)
}
