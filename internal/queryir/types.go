// Package queryir defines the backend-agnostic intermediate representation
// of one query.
//
// A Spec is built incrementally by the public query builder, frozen when a
// terminal method runs, handed to exactly one backend compiler, and then
// discarded. Compilers never mutate a Spec.
package queryir

// Op identifies a comparison operator in a filter condition.
//
// The set is closed: backend compilers switch over it exhaustively and fail
// with an unsupported-operation error on anything else, so adding an
// operator means touching every compiler.
type Op string

const (
	OpEqual          Op = "eq"
	OpNotEqual       Op = "ne"
	OpGreaterThan    Op = "gt"
	OpGreaterOrEqual Op = "gte"
	OpLessThan       Op = "lt"
	OpLessOrEqual    Op = "lte"
	OpIn             Op = "in"
	OpLike           Op = "like"
	OpIsNull         Op = "isnull"
)

// Condition is a single field constraint. Conditions within one Spec are
// AND-combined. The same field may appear in several conditions as long as
// the operators differ (e.g. age >= 18 AND age < 30).
type Condition struct {
	Field string
	Op    Op
	Value any
}

// SortKey is one ORDER BY component. Keys apply in slice order; the first
// key is primary.
type SortKey struct {
	Field string
	Desc  bool
}

// Join records a join against another table. The condition is a raw
// predicate string supplied by the caller (e.g. "users.id = posts.user_id");
// the core never parses it, only forwards it to relational compilers.
// Document-store compilers reject joins.
type Join struct {
	Table     string
	Condition string
}

// Aggregate is one aggregate computation: Fn applied to Field, exposed in
// result records under As. Fn is one of sum, count, avg, min, max;
// compilers reject anything else. For count the Field may be "*".
type Aggregate struct {
	Fn    string
	Field string
	As    string
}

// Unbounded marks Limit/Offset as unset.
const Unbounded = -1

// Spec is the immutable, fully-resolved description of one query.
type Spec struct {
	Table      string
	Where      []Condition
	Sort       []SortKey
	Limit      int
	Offset     int
	Projection []string
	Joins      []Join
	GroupBy    []string
	Aggregates []Aggregate
}

// NewSpec returns a Spec for table with no constraints and unset bounds.
func NewSpec(table string) Spec {
	return Spec{
		Table:  table,
		Limit:  Unbounded,
		Offset: Unbounded,
	}
}

// WithLimit returns a copy of s with the limit replaced. Used by terminal
// methods (first forces limit 1) without mutating the frozen Spec.
func (s Spec) WithLimit(n int) Spec {
	s.Where = append([]Condition(nil), s.Where...)
	s.Limit = n
	return s
}

// HasAggregation reports whether the Spec describes a grouped/aggregate
// query rather than a plain row selection.
func (s Spec) HasAggregation() bool {
	return len(s.Aggregates) > 0 || len(s.GroupBy) > 0
}
