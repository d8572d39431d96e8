package filter

import (
	"reflect"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

// operatorSpec binds a suffix token to its operator and the shape its value
// must have. Shape validation runs at expression-build time so malformed
// queries fail before any backend round-trip.
type operatorSpec struct {
	op       queryir.Op
	validate func(field string, value any) error
}

// registry is the closed suffix grammar: the token after "__" in a filter
// key. A bare key (no suffix) means equality.
var registry = map[string]operatorSpec{
	"ne":     {queryir.OpNotEqual, requireScalar},
	"gt":     {queryir.OpGreaterThan, requireScalar},
	"gte":    {queryir.OpGreaterOrEqual, requireScalar},
	"lt":     {queryir.OpLessThan, requireScalar},
	"lte":    {queryir.OpLessOrEqual, requireScalar},
	"in":     {queryir.OpIn, requireSequence},
	"like":   {queryir.OpLike, requirePattern},
	"isnull": {queryir.OpIsNull, requireBool},
}

// suffixOrder fixes a deterministic ordering for conditions that share a
// field, so compiled output never depends on map iteration order.
var suffixOrder = map[queryir.Op]int{
	queryir.OpEqual:          0,
	queryir.OpNotEqual:       1,
	queryir.OpGreaterThan:    2,
	queryir.OpGreaterOrEqual: 3,
	queryir.OpLessThan:       4,
	queryir.OpLessOrEqual:    5,
	queryir.OpIn:             6,
	queryir.OpLike:           7,
	queryir.OpIsNull:         8,
}

func requireScalar(field string, value any) error {
	if value == nil {
		return errs.Newf(errs.CodeInvalidOperator,
			"field %q: comparison operators require a non-nil scalar, use __isnull for null checks", field)
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return errs.Newf(errs.CodeInvalidOperator,
			"field %q: comparison operators require a scalar value, got %T", field, value)
	}
	return nil
}

func requireSequence(field string, value any) error {
	if value == nil {
		return errs.Newf(errs.CodeInvalidOperator, "field %q: in requires a slice or array, got nil", field)
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return nil
	}
	return errs.Newf(errs.CodeInvalidOperator, "field %q: in requires a slice or array, got %T", field, value)
}

func requirePattern(field string, value any) error {
	if _, ok := value.(string); !ok {
		return errs.Newf(errs.CodeInvalidOperator, "field %q: like requires a string pattern, got %T", field, value)
	}
	return nil
}

func requireBool(field string, value any) error {
	if _, ok := value.(bool); !ok {
		return errs.Newf(errs.CodeInvalidOperator, "field %q: isnull requires a bool, got %T", field, value)
	}
	return nil
}

// sequenceValues normalizes the value of an In condition to []any.
// The caller has already validated that v is a slice or array.
func sequenceValues(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
