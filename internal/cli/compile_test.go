package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompile_SelectSQLite(t *testing.T) {
	out, err := runCLI(t, "compile",
		"--dialect", "sqlite",
		"--table", "users",
		"--where", "age__gte=18",
		"--order-by", "-age",
		"--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, `SELECT * FROM "users" WHERE "age" >= ? ORDER BY "age" DESC LIMIT ?`)
	assert.Contains(t, out, "args: [18 10]")
}

func TestCompile_SelectPostgresPlaceholders(t *testing.T) {
	out, err := runCLI(t, "compile",
		"--dialect", "postgres",
		"--table", "users",
		"--where", "status__in=active,pending",
		"--select", "id,name")
	require.NoError(t, err)
	assert.Contains(t, out, `SELECT "id", "name" FROM "users" WHERE "status" IN ($1, $2)`)
}

func TestCompile_UpsertMySQL(t *testing.T) {
	out, err := runCLI(t, "compile",
		"--dialect", "mysql",
		"--op", "upsert",
		"--table", "users",
		"--lookup", "email=a@b.c",
		"--set", "name=Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)")
}

func TestCompile_MongoSelect(t *testing.T) {
	out, err := runCLI(t, "compile",
		"--dialect", "mongodb",
		"--table", "users",
		"--where", "age__gte=18",
		"--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, `"$gte"`)
	assert.Contains(t, out, "limit: 5")
}

func TestCompile_FromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
table: users
where:
  age__gte: 18
order_by: ["-age", "name"]
limit: 10
offset: 20
select: [id, name]
`), 0o644))

	out, err := runCLI(t, "compile", "--dialect", "postgres", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out,
		`SELECT "id", "name" FROM "users" WHERE "age" >= $1 ORDER BY "age" DESC, "name" ASC LIMIT $2 OFFSET $3`)
}

func TestCompile_Errors(t *testing.T) {
	_, err := runCLI(t, "compile", "--dialect", "sqlite", "--table", "users", "--op", "explode")
	assert.ErrorContains(t, err, "unknown op")

	_, err = runCLI(t, "compile", "--dialect", "sqlite", "--table", "users", "--where", "malformed")
	assert.ErrorContains(t, err, "key=value")

	_, err = runCLI(t, "compile", "--dialect", "sqlite", "--where", "age__gte=18")
	assert.ErrorContains(t, err, "table")

	_, err = runCLI(t, "compile", "--dialect", "oracle", "--table", "users")
	assert.ErrorContains(t, err, "unknown dialect")
}

func TestParsePairs_Coercion(t *testing.T) {
	got, err := parsePairs([]string{"age__gte=18", "score=1.5", "active=true", "name=Ada", "id__in=1,2,3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"age__gte": int64(18),
		"score":    1.5,
		"active":   true,
		"name":     "Ada",
		"id__in":   []any{int64(1), int64(2), int64(3)},
	}, got)
}
