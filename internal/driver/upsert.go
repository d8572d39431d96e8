package driver

import (
	"context"
	"sort"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

// TwoStepUpsert is update-else-insert for backends without a native upsert
// keyed by an arbitrary lookup filter. The engine's ON CONFLICT form needs
// the lookup columns to be a declared conflict target; the two-step form
// trades one extra round trip for working on any filter. A concurrent
// insert landing between the two steps surfaces as a constraint violation,
// which retries the update once.
func TwoStepUpsert(ctx context.Context, a Adapter, table string, lookup, values map[string]any) (Record, error) {
	if len(lookup) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "upsert needs a lookup filter")
	}
	if len(values) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "upsert needs values")
	}
	conds := EqualityConds(lookup)

	n, err := a.Update(ctx, table, conds, values)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := a.Insert(ctx, table, MergeValues(lookup, values)); err != nil {
			if !errs.IsConstraintViolation(err) {
				return nil, err
			}
			if _, err := a.Update(ctx, table, conds, values); err != nil {
				return nil, err
			}
		}
	}

	spec := queryir.NewSpec(table)
	spec.Where = conds
	spec.Limit = 1
	recs, err := a.Query(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errs.New(errs.CodeInternal, "upsert wrote a row that the lookup filter cannot find")
	}
	return recs[0], nil
}

// EqualityConds renders a lookup map as equality conditions in sorted
// field order.
func EqualityConds(lookup map[string]any) []queryir.Condition {
	conds := make([]queryir.Condition, 0, len(lookup))
	for _, field := range sortedFields(lookup) {
		conds = append(conds, queryir.Condition{Field: field, Op: queryir.OpEqual, Value: lookup[field]})
	}
	return conds
}

func sortedFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// MergeValues overlays values onto lookup without touching either input.
func MergeValues(lookup, values map[string]any) map[string]any {
	merged := make(map[string]any, len(lookup)+len(values))
	for k, v := range lookup {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return merged
}
