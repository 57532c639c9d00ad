package types

import "context"

// Filters selects rows. Each value is one of:
//
//	scalar                  field = scalar (nil means IS NULL)
//	[]any{op, v}            field <op> v
//	[]any{op1, v1, op2, v2} field <op1> v1 AND field <op2> v2
//
// Supported operators: = != < > <= >= like "not like" in "not in" includes is.
type Filters map[string]any

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// QueryOptions configures GetAll.
type QueryOptions struct {
	Fields  []string
	Filters Filters
	OrderBy string
	Order   string
	Limit   int
	Offset  int
	GroupBy []string
}

// MigrateConfig carries optional hooks invoked immediately before and after
// DDL execution. Hooks only run when the migration has work to do.
type MigrateConfig struct {
	Pre  func(ctx context.Context) error
	Post func(ctx context.Context) error
}

// BespokeQuery names a read-only reporting query that bypasses the generic
// CRUD path. The set is closed.
type BespokeQuery string

// Bespoke queries.
const (
	BespokeLastInserted BespokeQuery = "lastInserted"
	BespokeCountRows    BespokeQuery = "countRows"
	BespokeSumField     BespokeQuery = "sumField"
	BespokeGroupCount   BespokeQuery = "groupCount"
)

// BespokeArgs are the arguments of a bespoke query. Unused fields are ignored.
type BespokeArgs struct {
	Schema  string
	Field   string
	Filters Filters
}

// Store is the schema-driven persistence surface exposed to the document
// layer and to collaborators (CLI, importers, remote front ends). Every
// method may block on I/O.
type Store interface {
	Exists(ctx context.Context, schemaName, name string) (bool, error)
	Insert(ctx context.Context, schemaName string, values Record) (Record, error)
	Get(ctx context.Context, schemaName, name string, fields ...string) (Record, error)
	GetAll(ctx context.Context, schemaName string, opts QueryOptions) ([]Record, error)
	Update(ctx context.Context, schemaName string, values Record) error
	Delete(ctx context.Context, schemaName, name string) error
	DeleteAll(ctx context.Context, schemaName string, filters Filters) (int64, error)
	Rename(ctx context.Context, schemaName, oldName, newName string) error
	GetSingleValues(ctx context.Context, keys ...SingleValueKey) ([]SingleValue, error)
	Migrate(ctx context.Context, cfg MigrateConfig) error
	Bespoke(ctx context.Context, query BespokeQuery, args BespokeArgs) (any, error)
	SchemaMap() SchemaMap
	RenameBlockers(schemaName string) []string
}
