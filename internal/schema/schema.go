// Package schema renders DDL from the portable column-type tokens.
//
// A column type is one of int, str, float, bool, datetime, optionally
// carrying a foreign-key marker: "int->users.id" declares an int column
// referencing users(id). The column named "id" with type int becomes the
// backend's autoincrement primary key.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/sqlc"
)

// fkMarker separates the base type from the referenced column.
const fkMarker = "->"

// columnTypes maps portable type tokens to engine column types per dialect.
var columnTypes = map[string]map[string]string{
	"sqlite": {
		"int":      "INTEGER",
		"str":      "TEXT",
		"float":    "REAL",
		"bool":     "BOOLEAN",
		"datetime": "TIMESTAMP",
	},
	"mysql": {
		"int":      "INT",
		"str":      "VARCHAR(255)",
		"float":    "DOUBLE",
		"bool":     "BOOLEAN",
		"datetime": "DATETIME",
	},
	"postgres": {
		"int":      "INTEGER",
		"str":      "TEXT",
		"float":    "DOUBLE PRECISION",
		"bool":     "BOOLEAN",
		"datetime": "TIMESTAMP",
	},
}

// idColumn is the autoincrement primary-key rendering per dialect.
var idColumn = map[string]string{
	"sqlite":   "INTEGER PRIMARY KEY AUTOINCREMENT",
	"mysql":    "INT AUTO_INCREMENT PRIMARY KEY",
	"postgres": "SERIAL PRIMARY KEY",
}

// Column is one parsed column definition.
type Column struct {
	Name     string
	Type     string // portable token: int, str, float, bool, datetime
	RefTable string // foreign-key target, empty when none
	RefCol   string
}

// ParseColumn parses a type token, including the optional foreign-key
// marker.
func ParseColumn(name, token string) (Column, error) {
	col := Column{Name: name, Type: token}
	if idx := strings.Index(token, fkMarker); idx >= 0 {
		col.Type = token[:idx]
		target := token[idx+len(fkMarker):]
		dot := strings.Index(target, ".")
		if dot <= 0 || dot == len(target)-1 {
			return Column{}, errs.Newf(errs.CodeInvalidArgument,
				"column %q: foreign key target %q must be table.column", name, target)
		}
		col.RefTable, col.RefCol = target[:dot], target[dot+1:]
	}
	return col, nil
}

// CreateTableSQL renders a CREATE TABLE statement for the dialect. Columns
// render in deterministic order: id first when present, the rest sorted by
// name.
func CreateTableSQL(d sqlc.Dialect, table string, columns map[string]string) (string, error) {
	if len(columns) == 0 {
		return "", errs.New(errs.CodeInvalidArgument, "create table needs at least one column")
	}
	types, ok := columnTypes[d.Name()]
	if !ok {
		return "", errs.Newf(errs.CodeUnsupportedOperation, "dialect %q has no DDL rendering", d.Name())
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		if name != "id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := columns["id"]; ok {
		names = append([]string{"id"}, names...)
	}

	defs := make([]string, 0, len(names))
	for _, name := range names {
		col, err := ParseColumn(name, columns[name])
		if err != nil {
			return "", err
		}

		if name == "id" && col.Type == "int" && col.RefTable == "" {
			defs = append(defs, d.QuoteIdent("id")+" "+idColumn[d.Name()])
			continue
		}

		engineType, ok := types[col.Type]
		if !ok {
			return "", errs.Newf(errs.CodeInvalidArgument, "column %q: unknown type token %q", name, col.Type)
		}
		def := d.QuoteIdent(name) + " " + engineType
		if col.RefTable != "" {
			def += fmt.Sprintf(" REFERENCES %s(%s)", d.QuoteIdent(col.RefTable), d.QuoteIdent(col.RefCol))
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		d.QuoteIdent(table), strings.Join(defs, ", ")), nil
}

// DropTableSQL renders a DROP TABLE statement.
func DropTableSQL(d sqlc.Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

// CreateIndexSQL renders a CREATE INDEX statement. The index name derives
// from the table and field list so repeat calls stay idempotent where the
// engine supports IF NOT EXISTS; MySQL does not and errors on duplicates.
func CreateIndexSQL(d sqlc.Dialect, table string, fields []string, unique bool) (string, error) {
	if len(fields) == 0 {
		return "", errs.New(errs.CodeInvalidArgument, "create index needs at least one field")
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if d.Name() != "mysql" {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdent(IndexName(table, fields)))
	b.WriteString(" ON ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	for i, field := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(field))
	}
	b.WriteString(")")
	return b.String(), nil
}

// IndexName derives the conventional index name for a field list.
func IndexName(table string, fields []string) string {
	return "idx_" + table + "_" + strings.Join(fields, "_")
}
