// Package backend defines C12: the abstract contract an execution engine
// implements so the orchestrator can materialize models without knowing
// which concrete analytical SQL engine is behind it.
package backend

import "context"

// Dialect tags the SQL dialect a backend speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Materialization is the physical form a model's output takes.
type Materialization string

const (
	MaterializationTable Materialization = "table"
	MaterializationView  Materialization = "view"
)

// Capabilities announces per-backend feature flags so a future rewriter can
// branch on them without a redesign (spec.md §9 "Capability flags over
// dialect branching").
type Capabilities struct {
	SupportsQualify          bool
	SupportsCreateOrReplace  bool
	SupportsTransactionalDDL bool
}

// Row is one record of a query result, columnar values keyed by column name.
type Row map[string]any

// Batch is one record batch: column names in order, plus rows.
type Batch struct {
	Columns []string
	Rows    []Row
}

// Partition names a column and the set of partition key values to delete
// for incremental materialization.
type Partition struct {
	Column string
	Values []string
}

// Result is what execute_model / execute_model_incremental report back to
// the orchestrator.
type Result struct {
	RowCount int64
	Preview  *Batch // first N rows, only when requested
}

// Target is the resolved connection configuration for one backend instance,
// as loaded from a project manifest's `targets` map (spec.md §6.2).
type Target struct {
	Type       string // "sqlite" | "postgres" | "mysql"
	Database   string // sqlite file path, or database name for postgres/mysql
	Schema     string
	ConnectURL string // DSN override; when set, takes precedence over Database
	Catalog    string
}

// Backend is the abstract contract satisfied by a concrete execution engine.
type Backend interface {
	ExecuteSQL(ctx context.Context, sql string) ([]Batch, error)
	CreateTableAs(ctx context.Context, schema, name, sql string) error
	CreateViewAs(ctx context.Context, schema, name, sql string) error
	DropTableIfExists(ctx context.Context, schema, name string) error
	DropViewIfExists(ctx context.Context, schema, name string) error
	GetRowCount(ctx context.Context, schema, name string) (int64, error)
	GetPreview(ctx context.Context, schema, name string, limit int) (Batch, error)
	TableExists(ctx context.Context, schema, name string) (bool, error)
	EnsureSchema(ctx context.Context, schema string) error
	DeletePartitions(ctx context.Context, schema, name string, p Partition) error
	InsertIntoFromQuery(ctx context.Context, schema, name, sql string) error

	Dialect() Dialect
	Capabilities() Capabilities

	Close() error
}

// ExecuteModel performs the drop-then-create sequence for materialization m,
// and optionally fetches a preview of the first 10 rows.
func ExecuteModel(ctx context.Context, b Backend, schema, name, sql string, m Materialization, wantsPreview bool) (Result, error) {
	switch m {
	case MaterializationView:
		if err := b.DropViewIfExists(ctx, schema, name); err != nil {
			return Result{}, err
		}
		if err := b.CreateViewAs(ctx, schema, name, sql); err != nil {
			return Result{}, err
		}
	default:
		if err := b.DropTableIfExists(ctx, schema, name); err != nil {
			return Result{}, err
		}
		if err := b.CreateTableAs(ctx, schema, name, sql); err != nil {
			return Result{}, err
		}
	}

	count, err := b.GetRowCount(ctx, schema, name)
	if err != nil {
		return Result{}, err
	}
	res := Result{RowCount: count}
	if wantsPreview {
		preview, err := b.GetPreview(ctx, schema, name, 10)
		if err != nil {
			return Result{}, err
		}
		res.Preview = &preview
	}
	return res, nil
}

// ExecuteModelIncremental performs delete-by-partition then insert-from-query,
// falling back to a full refresh (ExecuteModel) for views, which have no
// physical storage to delete from.
func ExecuteModelIncremental(ctx context.Context, b Backend, schema, name, sql string, m Materialization, p Partition, wantsPreview bool) (Result, error) {
	if m == MaterializationView {
		return ExecuteModel(ctx, b, schema, name, sql, m, wantsPreview)
	}

	exists, err := b.TableExists(ctx, schema, name)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return ExecuteModel(ctx, b, schema, name, sql, m, wantsPreview)
	}

	if len(p.Values) > 0 {
		if err := b.DeletePartitions(ctx, schema, name, p); err != nil {
			return Result{}, err
		}
	}
	if err := b.InsertIntoFromQuery(ctx, schema, name, sql); err != nil {
		return Result{}, err
	}

	count, err := b.GetRowCount(ctx, schema, name)
	if err != nil {
		return Result{}, err
	}
	res := Result{RowCount: count}
	if wantsPreview {
		preview, err := b.GetPreview(ctx, schema, name, 10)
		if err != nil {
			return Result{}, err
		}
		res.Preview = &preview
	}
	return res, nil
}
