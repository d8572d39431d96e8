// Package driver defines the narrow interface every backend adapter
// implements, plus the normalized record type the adapters return.
//
// Adapters translate engine-native errors into the shared taxonomy at this
// boundary; raw driver errors stay reachable through errors.Unwrap but never
// surface as the primary error.
package driver

import (
	"context"
	"time"

	"github.com/akron-db/akron/internal/queryir"
)

// Record is one result row, normalized so callers see the same value kinds
// regardless of backend: bool, int64, float64, string, time.Time, nil, and
// []any / map[string]any for document nesting.
type Record map[string]any

// Capabilities describes what a backend can guarantee, so the coordinator
// and the high-level operations can pick strategies instead of guessing.
type Capabilities struct {
	// MultiStatementTx is true when Begin/Commit/Rollback provide real
	// multi-statement atomicity.
	MultiStatementTx bool

	// AtomicUpsert is true when the engine resolves upserts in a single
	// round trip with no read-modify-write race.
	AtomicUpsert bool

	// BatchInsert is true when InsertMany is a single engine operation
	// rather than a loop over single-row inserts.
	BatchInsert bool
}

// Adapter is the per-backend execution surface. One adapter serves one
// database handle; adapters are not safe for concurrent use.
type Adapter interface {
	Name() string
	Capabilities() Capabilities

	Query(ctx context.Context, spec queryir.Spec) ([]Record, error)
	Count(ctx context.Context, spec queryir.Spec) (int64, error)
	Exists(ctx context.Context, spec queryir.Spec) (bool, error)
	Aggregate(ctx context.Context, spec queryir.Spec) ([]Record, error)

	// Insert returns the generated id: int64 on relational backends,
	// the document id string on document backends.
	Insert(ctx context.Context, table string, values map[string]any) (any, error)
	InsertMany(ctx context.Context, table string, rows []map[string]any) ([]any, error)
	Update(ctx context.Context, table string, conds []queryir.Condition, values map[string]any) (int64, error)
	Delete(ctx context.Context, table string, conds []queryir.Condition) (int64, error)

	// Upsert updates the row matched by lookup, or inserts lookup merged
	// with values when nothing matches, and returns the resulting record.
	Upsert(ctx context.Context, table string, lookup, values map[string]any) (Record, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	CreateTable(ctx context.Context, table string, columns map[string]string) error
	DropTable(ctx context.Context, table string) error
	CreateIndex(ctx context.Context, table string, fields []string, unique bool) error

	Close(ctx context.Context) error
}

// NormalizeValue maps engine-native scalar values onto the shared kinds.
// Byte slices become strings; sized integers widen to int64; anything
// already in the shared set passes through.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return t
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
