package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/akron-db/akron/internal/filter"
	"github.com/akron-db/akron/internal/queryir"
)

// CompileRequest is one query to compile, read from flags or a YAML file.
type CompileRequest struct {
	Op      string         `yaml:"op"` // select | count | upsert
	Table   string         `yaml:"table"`
	Where   map[string]any `yaml:"where"`
	OrderBy []string       `yaml:"order_by"`
	Limit   *int           `yaml:"limit"`
	Offset  *int           `yaml:"offset"`
	Select  []string       `yaml:"select"`

	// Upsert inputs.
	Lookup map[string]any `yaml:"lookup"`
	Values map[string]any `yaml:"values"`
}

// LoadRequest reads a CompileRequest from a YAML file.
func LoadRequest(path string) (*CompileRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	var req CompileRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse query file: %w", err)
	}
	return &req, nil
}

// Spec translates the request into the compiler IR, running the same filter
// grammar the library uses.
func (r *CompileRequest) Spec() (queryir.Spec, error) {
	if r.Table == "" {
		return queryir.Spec{}, fmt.Errorf("query needs a table")
	}

	conds, err := filter.Parse(r.Where)
	if err != nil {
		return queryir.Spec{}, err
	}

	spec := queryir.NewSpec(r.Table)
	spec.Where = conds
	spec.Projection = r.Select
	if r.Limit != nil {
		spec.Limit = *r.Limit
	}
	if r.Offset != nil {
		spec.Offset = *r.Offset
	}
	for _, field := range r.OrderBy {
		name, desc := strings.CutPrefix(field, "-")
		if name == "" {
			return queryir.Spec{}, fmt.Errorf("order_by field %q has no name", field)
		}
		spec.Sort = append(spec.Sort, queryir.SortKey{Field: name, Desc: desc})
	}
	return spec, nil
}

// parsePairs turns repeated key=value flags into a filter map. Values
// coerce to int, float or bool when they parse as one; in-set values split
// on commas.
func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed pair %q: want key=value", pair)
		}
		if strings.HasSuffix(key, "__in") {
			parts := strings.Split(raw, ",")
			values := make([]any, len(parts))
			for i, p := range parts {
				values[i] = coerce(p)
			}
			out[key] = values
			continue
		}
		out[key] = coerce(raw)
	}
	return out, nil
}

func coerce(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
