package sqlc

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

func TestCompileSelect_OperatorFragments(t *testing.T) {
	c := New(SQLite)

	cases := []struct {
		name     string
		cond     queryir.Condition
		wantSQL  string
		wantArgs []any
	}{
		{"equal", queryir.Condition{Field: "age", Op: queryir.OpEqual, Value: 30},
			`SELECT * FROM "users" WHERE "age" = ?`, []any{30}},
		{"not equal", queryir.Condition{Field: "age", Op: queryir.OpNotEqual, Value: 30},
			`SELECT * FROM "users" WHERE "age" <> ?`, []any{30}},
		{"greater than", queryir.Condition{Field: "age", Op: queryir.OpGreaterThan, Value: 30},
			`SELECT * FROM "users" WHERE "age" > ?`, []any{30}},
		{"greater or equal", queryir.Condition{Field: "age", Op: queryir.OpGreaterOrEqual, Value: 30},
			`SELECT * FROM "users" WHERE "age" >= ?`, []any{30}},
		{"less than", queryir.Condition{Field: "age", Op: queryir.OpLessThan, Value: 30},
			`SELECT * FROM "users" WHERE "age" < ?`, []any{30}},
		{"less or equal", queryir.Condition{Field: "age", Op: queryir.OpLessOrEqual, Value: 30},
			`SELECT * FROM "users" WHERE "age" <= ?`, []any{30}},
		{"in", queryir.Condition{Field: "id", Op: queryir.OpIn, Value: []any{1, 2, 3}},
			`SELECT * FROM "users" WHERE "id" IN (?, ?, ?)`, []any{1, 2, 3}},
		{"like", queryir.Condition{Field: "name", Op: queryir.OpLike, Value: "%jo%"},
			`SELECT * FROM "users" WHERE "name" LIKE ?`, []any{"%jo%"}},
		{"is null", queryir.Condition{Field: "deleted_at", Op: queryir.OpIsNull, Value: true},
			`SELECT * FROM "users" WHERE "deleted_at" IS NULL`, nil},
		{"is not null", queryir.Condition{Field: "deleted_at", Op: queryir.OpIsNull, Value: false},
			`SELECT * FROM "users" WHERE "deleted_at" IS NOT NULL`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := queryir.NewSpec("users")
			spec.Where = []queryir.Condition{tc.cond}

			stmt, err := c.CompileSelect(spec)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, stmt.SQL)
			assert.Equal(t, tc.wantArgs, stmt.Args)
		})
	}
}

func TestCompileSelect_EmptyInMatchesNothing(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Where = []queryir.Condition{{Field: "id", Op: queryir.OpIn, Value: []any{}}}

	stmt, err := c.CompileSelect(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE 1 = 0`, stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestCompileSelect_ValuesNeverInterpolated(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Where = []queryir.Condition{
		{Field: "name", Op: queryir.OpEqual, Value: "Robert'); DROP TABLE users;--"},
		{Field: "bio", Op: queryir.OpLike, Value: "%' OR '1'='1%"},
	}

	stmt, err := c.CompileSelect(spec)
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "DROP TABLE")
	assert.NotContains(t, stmt.SQL, "OR '1'='1")
	assert.Len(t, stmt.Args, 2)
}

func TestCompileSelect_SortLimitOffset(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Sort = []queryir.SortKey{{Field: "age", Desc: true}, {Field: "name"}}
	spec.Limit = 10
	spec.Offset = 20

	stmt, err := c.CompileSelect(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" ORDER BY "age" DESC, "name" ASC LIMIT ? OFFSET ?`, stmt.SQL)
	assert.Equal(t, []any{10, 20}, stmt.Args)
}

func TestCompileSelect_OffsetWithoutLimit(t *testing.T) {
	cases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, `SELECT * FROM "users" LIMIT -1 OFFSET ?`},
		{MySQL, "SELECT * FROM `users` LIMIT 18446744073709551615 OFFSET ?"},
		{Postgres, `SELECT * FROM "users" LIMIT ALL OFFSET $1`},
	}

	for _, tc := range cases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			spec := queryir.NewSpec("users")
			spec.Offset = 5

			stmt, err := New(tc.dialect).CompileSelect(spec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stmt.SQL)
			assert.Equal(t, []any{5}, stmt.Args)
		})
	}
}

func TestCompileSelect_PostgresPlaceholderOrdinals(t *testing.T) {
	c := New(Postgres)
	spec := queryir.NewSpec("users")
	spec.Where = []queryir.Condition{
		{Field: "age", Op: queryir.OpGreaterOrEqual, Value: 18},
		{Field: "status", Op: queryir.OpIn, Value: []any{"a", "b"}},
	}
	spec.Limit = 3

	stmt, err := c.CompileSelect(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "age" >= $1 AND "status" IN ($2, $3) LIMIT $4`, stmt.SQL)
	assert.Equal(t, []any{18, "a", "b", 3}, stmt.Args)
}

func TestCompileSelect_Join(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Joins = []queryir.Join{{Table: "posts", Condition: "users.id = posts.user_id"}}
	spec.Projection = []string{"name"}

	stmt, err := c.CompileSelect(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name" FROM "users" INNER JOIN "posts" ON users.id = posts.user_id`, stmt.SQL)
}

func TestCompileCount(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Where = []queryir.Condition{{Field: "active", Op: queryir.OpEqual, Value: true}}

	stmt, err := c.CompileCount(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE "active" = ?`, stmt.SQL)
	assert.Equal(t, []any{true}, stmt.Args)
}

func TestCompileExists(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("users")
	spec.Where = []queryir.Condition{{Field: "email", Op: queryir.OpEqual, Value: "a@b.c"}}

	stmt, err := c.CompileExists(spec)
	require.NoError(t, err)
	assert.Equal(t, `SELECT EXISTS(SELECT 1 FROM "users" WHERE "email" = ? LIMIT 1)`, stmt.SQL)
}

func TestCompileAggregate(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("orders")
	spec.Where = []queryir.Condition{{Field: "status", Op: queryir.OpEqual, Value: "completed"}}
	spec.GroupBy = []string{"user_id"}
	spec.Aggregates = []queryir.Aggregate{
		{Fn: "sum", Field: "amount", As: "total_amount"},
		{Fn: "count", Field: "*", As: "order_count"},
	}

	stmt, err := c.CompileAggregate(spec)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "user_id", SUM("amount") AS "total_amount", COUNT(*) AS "order_count" FROM "orders" WHERE "status" = ? GROUP BY "user_id"`,
		stmt.SQL)
	assert.Equal(t, []any{"completed"}, stmt.Args)
}

func TestCompileAggregate_UnknownFunction(t *testing.T) {
	c := New(SQLite)
	spec := queryir.NewSpec("orders")
	spec.Aggregates = []queryir.Aggregate{{Fn: "median", Field: "amount", As: "m"}}

	_, err := c.CompileAggregate(spec)
	require.Error(t, err)
	assert.True(t, errs.IsUnsupportedOperation(err))
}

func TestCompileInsert(t *testing.T) {
	c := New(SQLite)
	stmt, err := c.CompileInsert("users", map[string]any{"name": "Ada", "age": 36})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("age", "name") VALUES (?, ?)`, stmt.SQL)
	assert.Equal(t, []any{36, "Ada"}, stmt.Args)
}

func TestCompileInsert_PostgresReturning(t *testing.T) {
	c := New(Postgres)
	stmt, err := c.CompileInsert("users", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"`, stmt.SQL)
}

func TestCompileInsertMany(t *testing.T) {
	c := New(Postgres)
	stmt, err := c.CompileInsertMany("users", []map[string]any{
		{"name": "Ada", "age": 36},
		{"name": "Grace", "age": 45},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "users" ("age", "name") VALUES ($1, $2), ($3, $4) RETURNING "id"`,
		stmt.SQL)
	assert.Equal(t, []any{36, "Ada", 45, "Grace"}, stmt.Args)
}

func TestCompileInsertMany_RaggedRows(t *testing.T) {
	c := New(SQLite)
	_, err := c.CompileInsertMany("users", []map[string]any{
		{"name": "Ada"},
		{"email": "g@x.y"},
	})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestCompileUpdate(t *testing.T) {
	c := New(SQLite)
	stmt, err := c.CompileUpdate("users",
		[]queryir.Condition{{Field: "name", Op: queryir.OpEqual, Value: "Ada"}},
		map[string]any{"age": 37})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "age" = ? WHERE "name" = ?`, stmt.SQL)
	assert.Equal(t, []any{37, "Ada"}, stmt.Args)
}

func TestCompileDelete(t *testing.T) {
	c := New(SQLite)
	stmt, err := c.CompileDelete("users",
		[]queryir.Condition{{Field: "active", Op: queryir.OpEqual, Value: false}})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "users" WHERE "active" = ?`, stmt.SQL)
	assert.Equal(t, []any{false}, stmt.Args)
}

func TestCompileUpsert_Dialects(t *testing.T) {
	lookup := map[string]any{"email": "admin@example.com"}
	values := map[string]any{"name": "System Administrator", "age": 36}

	cases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, `INSERT INTO "users" ("age", "email", "name") VALUES (?, ?, ?) ` +
			`ON CONFLICT ("email") DO UPDATE SET "age" = excluded."age", "name" = excluded."name"`},
		{Postgres, `INSERT INTO "users" ("age", "email", "name") VALUES ($1, $2, $3) ` +
			`ON CONFLICT ("email") DO UPDATE SET "age" = excluded."age", "name" = excluded."name"`},
		{MySQL, "INSERT INTO `users` (`age`, `email`, `name`) VALUES (?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE `age` = VALUES(`age`), `name` = VALUES(`name`)"},
	}

	for _, tc := range cases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			stmt, err := New(tc.dialect).CompileUpsert("users", lookup, values)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stmt.SQL)
			assert.Equal(t, []any{36, "admin@example.com", "System Administrator"}, stmt.Args)
		})
	}
}

// golden renders a Statement in the fixture format used under
// testdata/golden: the SQL text followed by a Go-syntax argument dump.
func golden(stmt Statement) []byte {
	args := stmt.Args
	if args == nil {
		args = []any{}
	}
	return []byte(stmt.SQL + "\n-- args: " + fmt.Sprintf("%#v", args) + "\n")
}

func TestCompile_Golden(t *testing.T) {
	fullSpec := func() queryir.Spec {
		spec := queryir.NewSpec("users")
		spec.Projection = []string{"id", "name"}
		spec.Where = []queryir.Condition{
			{Field: "age", Op: queryir.OpGreaterOrEqual, Value: 18},
			{Field: "name", Op: queryir.OpLike, Value: "%jo%"},
		}
		spec.Sort = []queryir.SortKey{{Field: "age", Desc: true}, {Field: "name"}}
		spec.Limit = 10
		spec.Offset = 20
		return spec
	}

	cases := []struct {
		name    string
		compile func() (Statement, error)
	}{
		{"select_sqlite", func() (Statement, error) { return New(SQLite).CompileSelect(fullSpec()) }},
		{"select_postgres", func() (Statement, error) { return New(Postgres).CompileSelect(fullSpec()) }},
		{"aggregate_sqlite", func() (Statement, error) {
			spec := queryir.NewSpec("orders")
			spec.Where = []queryir.Condition{{Field: "status", Op: queryir.OpEqual, Value: "completed"}}
			spec.GroupBy = []string{"user_id"}
			spec.Aggregates = []queryir.Aggregate{
				{Fn: "sum", Field: "amount", As: "total_amount"},
				{Fn: "count", Field: "*", As: "order_count"},
			}
			return New(SQLite).CompileAggregate(spec)
		}},
		{"upsert_mysql", func() (Statement, error) {
			return New(MySQL).CompileUpsert("users",
				map[string]any{"email": "admin@example.com"},
				map[string]any{"name": "System Administrator"})
		}},
		{"in_empty_sqlite", func() (Statement, error) {
			spec := queryir.NewSpec("users")
			spec.Where = []queryir.Condition{{Field: "id", Op: queryir.OpIn, Value: []any{}}}
			return New(SQLite).CompileSelect(spec)
		}},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stmt, err := tc.compile()
			require.NoError(t, err)
			g.Assert(t, tc.name, golden(stmt))
		})
	}
}
