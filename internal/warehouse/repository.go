package warehouse

import (
	"context"
	"fmt"
	"sync"

	"retailwh/internal/report"
)

// Config is the minimal configuration needed to open a warehouse repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
//   - Schema names the warehouse namespace; backends without schemas
//     (sqlite) ignore it.
type Config struct {
	Kind   string
	DSN    string
	Schema string
}

// Repository is the backend-agnostic warehouse interface.
//
// IMPORTANT: the interface is intentionally minimal and focused on what the
// pipeline needs. Each backend implements the semantics in its own idiomatic
// way (Postgres ON CONFLICT, SQLite OR IGNORE, MSSQL NOT EXISTS).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// EnsureSchema creates the namespace and the star-schema tables with
	// create-if-not-exists semantics. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Begin opens one batch transaction. Every staging, dimension and fact
	// write of a batch happens inside it; Rollback leaves no partial state.
	Begin(ctx context.Context) (Batch, error)

	// Catalog reads for the integrity scan: warehouse tables in the
	// namespace (staging tables excluded) and their columns.
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)

	// CountNulls counts NULL values in one column.
	CountNulls(ctx context.Context, table, column string) (int64, error)

	// Reporting reads for the dashboard/ML consumers.
	CustomerAggregates(ctx context.Context) ([]report.CustomerAggregate, error)
	MonthlySales(ctx context.Context) ([]report.MonthlySale, error)
}

// Batch is one open load transaction. Commit or Rollback exactly once;
// Rollback after Commit must be a no-op so callers can defer it.
type Batch interface {
	// ReplaceStaging creates the staging table if needed, empties it, and
	// inserts rows aligned with columns. Returns rows staged.
	ReplaceStaging(ctx context.Context, spec TableSpec, columns []string, rows [][]any) (int64, error)

	// SelectStagingRows reads the named columns back out of a staging table
	// in insertion order.
	SelectStagingRows(ctx context.Context, table string, columns []string) ([][]any, error)

	// UpsertDimensionRows inserts dimension rows idempotently: rows whose
	// conflict columns already exist are left untouched. Returns rows
	// actually inserted.
	UpsertDimensionRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error)

	// SelectKeyValueByKeys maps NormalizeKey(key) -> surrogate id for the
	// given keys.
	SelectKeyValueByKeys(ctx context.Context, table, keyColumn, valueColumn string, keys []any) (map[string]int64, error)

	// InsertFactRows inserts fact rows, idempotent over dedupeColumns.
	// Returns rows actually inserted.
	InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// DropStaging removes the transient staging table before commit.
	DropStaging(ctx context.Context, table string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SchemaError wraps a DDL or connection failure; it is fatal to a run.
type SchemaError struct {
	Kind string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Kind, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering
// the same kind twice panics; failing fast avoids ambiguous backend
// selection.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency: safe against concurrent Register; New takes a read lock
// while selecting the factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported warehouse.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
