package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/akron-db/akron/internal/mongoc"
	"github.com/akron-db/akron/internal/queryir"
	"github.com/akron-db/akron/internal/sqlc"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	File    string

	Op      string
	Table   string
	Where   []string
	OrderBy []string
	Limit   int
	Offset  int
	Select  []string
	Lookup  []string
	Set     []string
}

var dialects = map[string]sqlc.Dialect{
	"sqlite":   sqlc.SQLite,
	"mysql":    sqlc.MySQL,
	"postgres": sqlc.Postgres,
}

// NewCompileCommand creates the compile command: it renders the statement a
// query would execute, without connecting to anything.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a query to its engine-native form",
		Long: `Compile a query to the statement it would execute: parameterized SQL for
the relational dialects, filter documents and pipelines for mongodb.

Queries come from flags or from a YAML file:

  akron compile --dialect postgres --table users --where age__gte=18 \
      --order-by -age --limit 10
  akron compile --dialect mongodb -f query.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite", "target engine (sqlite|mysql|postgres|mongodb)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a YAML file")
	cmd.Flags().StringVar(&opts.Op, "op", "select", "operation to compile (select|count|upsert)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table or collection name")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter as field__op=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.OrderBy, "order-by", nil, "sort field, leading - for descending (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "row limit")
	cmd.Flags().IntVar(&opts.Offset, "offset", -1, "row offset")
	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "projection fields")
	cmd.Flags().StringArrayVar(&opts.Lookup, "lookup", nil, "upsert lookup as field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "upsert values as field=value (repeatable)")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Dialect == "mongodb" {
		return compileMongo(out, opts.Format, req)
	}

	dialect, ok := dialects[opts.Dialect]
	if !ok {
		return fmt.Errorf("unknown dialect %q", opts.Dialect)
	}
	return compileSQL(out, opts.Format, dialect, req)
}

func buildRequest(opts *CompileOptions) (*CompileRequest, error) {
	if opts.File != "" {
		req, err := LoadRequest(opts.File)
		if err != nil {
			return nil, err
		}
		if req.Op == "" {
			req.Op = "select"
		}
		return req, nil
	}

	where, err := parsePairs(opts.Where)
	if err != nil {
		return nil, err
	}
	lookup, err := parsePairs(opts.Lookup)
	if err != nil {
		return nil, err
	}
	values, err := parsePairs(opts.Set)
	if err != nil {
		return nil, err
	}

	req := &CompileRequest{
		Op:      opts.Op,
		Table:   opts.Table,
		Where:   where,
		OrderBy: opts.OrderBy,
		Select:  opts.Select,
		Lookup:  lookup,
		Values:  values,
	}
	if opts.Limit >= 0 {
		req.Limit = &opts.Limit
	}
	if opts.Offset >= 0 {
		req.Offset = &opts.Offset
	}
	return req, nil
}

func compileSQL(out io.Writer, format string, dialect sqlc.Dialect, req *CompileRequest) error {
	compiler := sqlc.New(dialect)

	var stmt sqlc.Statement
	var err error
	switch req.Op {
	case "select":
		var spec queryir.Spec
		if spec, err = req.Spec(); err == nil {
			stmt, err = compiler.CompileSelect(spec)
		}
	case "count":
		var spec queryir.Spec
		if spec, err = req.Spec(); err == nil {
			stmt, err = compiler.CompileCount(spec)
		}
	case "upsert":
		if req.Table == "" {
			return fmt.Errorf("query needs a table")
		}
		stmt, err = compiler.CompileUpsert(req.Table, req.Lookup, req.Values)
	default:
		return fmt.Errorf("unknown op %q: want select, count or upsert", req.Op)
	}
	if err != nil {
		return err
	}

	if format == FormatJSON {
		return writeJSON(out, map[string]any{"sql": stmt.SQL, "args": stmt.Args})
	}
	fmt.Fprintln(out, stmt.SQL)
	fmt.Fprintf(out, "args: %v\n", stmt.Args)
	return nil
}

func compileMongo(out io.Writer, format string, req *CompileRequest) error {
	switch req.Op {
	case "select":
		spec, err := req.Spec()
		if err != nil {
			return err
		}
		find, err := mongoc.CompileFind(spec)
		if err != nil {
			return err
		}
		return writeMongoSelect(out, format, find)
	case "count":
		spec, err := req.Spec()
		if err != nil {
			return err
		}
		filter, err := mongoc.CompileCount(spec)
		if err != nil {
			return err
		}
		return writeMongoDocs(out, format, map[string]bson.D{"filter": filter})
	case "upsert":
		filter, update, err := mongoc.CompileUpsert(req.Lookup, req.Values)
		if err != nil {
			return err
		}
		return writeMongoDocs(out, format, map[string]bson.D{"filter": filter, "update": update})
	default:
		return fmt.Errorf("unknown op %q: want select, count or upsert", req.Op)
	}
}

func writeMongoSelect(out io.Writer, format string, find mongoc.Find) error {
	docs := map[string]bson.D{"filter": find.Filter}
	if len(find.Sort) > 0 {
		docs["sort"] = find.Sort
	}
	if len(find.Projection) > 0 {
		docs["projection"] = find.Projection
	}

	if format == FormatJSON {
		payload := map[string]any{}
		for name, doc := range docs {
			raw, err := extJSON(doc)
			if err != nil {
				return err
			}
			payload[name] = json.RawMessage(raw)
		}
		if find.Limit != queryir.Unbounded {
			payload["limit"] = find.Limit
		}
		if find.Skip != queryir.Unbounded {
			payload["skip"] = find.Skip
		}
		return writeJSON(out, payload)
	}

	if err := writeMongoDocs(out, format, docs); err != nil {
		return err
	}
	if find.Limit != queryir.Unbounded {
		fmt.Fprintf(out, "limit: %d\n", find.Limit)
	}
	if find.Skip != queryir.Unbounded {
		fmt.Fprintf(out, "skip: %d\n", find.Skip)
	}
	return nil
}

func writeMongoDocs(out io.Writer, format string, docs map[string]bson.D) error {
	if format == FormatJSON {
		payload := map[string]any{}
		for name, doc := range docs {
			raw, err := extJSON(doc)
			if err != nil {
				return err
			}
			payload[name] = json.RawMessage(raw)
		}
		return writeJSON(out, payload)
	}

	for _, name := range []string{"filter", "update", "sort", "projection"} {
		doc, ok := docs[name]
		if !ok {
			continue
		}
		raw, err := extJSON(doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", name, raw)
	}
	return nil
}

func extJSON(doc bson.D) ([]byte, error) {
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return raw, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
