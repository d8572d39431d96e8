// Package filter parses keyword-style filter maps into backend-agnostic
// conditions.
//
// A filter key is a field name optionally followed by "__" and an operator
// suffix: {"age__gte": 18} means age >= 18, {"name": "Ada"} means
// name = "Ada". The suffix grammar is a fixed table; unknown suffixes are
// rejected at parse time rather than dispatched dynamically.
package filter

import (
	"sort"
	"strings"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

// separator splits the field name from the operator suffix.
const separator = "__"

// Parse transforms a filter map into a sorted condition list.
//
// Conditions are AND-combined by every compiler. The same base field may
// appear under several suffixes ({"age__gte": 18, "age__lt": 30} yields two
// conditions). Output is sorted by field name, then by a fixed operator
// order, so compilation is deterministic regardless of map iteration order.
//
// Parse is a pure transform: it never touches a backend and fails with an
// INVALID_OPERATOR error on unknown suffixes or mismatched value shapes.
func Parse(filters map[string]any) ([]queryir.Condition, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	conds := make([]queryir.Condition, 0, len(filters))
	for key, value := range filters {
		cond, err := parseOne(key, value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}

	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return suffixOrder[conds[i].Op] < suffixOrder[conds[j].Op]
	})

	return conds, nil
}

func parseOne(key string, value any) (queryir.Condition, error) {
	idx := strings.LastIndex(key, separator)
	if idx <= 0 {
		// No suffix: plain equality.
		if err := requireScalar(key, value); err != nil {
			return queryir.Condition{}, err
		}
		return queryir.Condition{Field: key, Op: queryir.OpEqual, Value: value}, nil
	}

	field, suffix := key[:idx], key[idx+len(separator):]
	spec, ok := registry[suffix]
	if !ok {
		return queryir.Condition{}, errs.Newf(errs.CodeInvalidOperator,
			"unknown operator suffix %q in filter key %q", suffix, key)
	}
	if err := spec.validate(field, value); err != nil {
		return queryir.Condition{}, err
	}

	if spec.op == queryir.OpIn {
		value = sequenceValues(value)
	}

	return queryir.Condition{Field: field, Op: spec.op, Value: value}, nil
}
