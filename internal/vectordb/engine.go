// Package vectordb defines the contract VectorGate speaks to a remote
// Milvus-compatible vector database engine, and a REST-based implementation
// of that contract. The engine itself — its storage format, ANN index
// internals, and query planner — is out of scope; VectorGate only issues
// schema, insert, and search requests against it.
package vectordb

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a collection or entity does not exist.
var ErrNotFound = errors.New("vectordb: not found")

// ErrAlreadyExists is returned when a create operation targets an existing
// resource.
var ErrAlreadyExists = errors.New("vectordb: already exists")

// FieldSchema describes a single field in a collection schema.
type FieldSchema struct {
	Name         string
	DataType     string // e.g. "Int64", "VarChar", "FloatVector", "SparseFloatVector"
	IsPrimaryKey bool
	AutoID       bool
	Dimension    int // for vector fields
	MaxLength    int // for VarChar fields
}

// CollectionSchema describes a collection's full field layout.
type CollectionSchema struct {
	Name        string
	Description string
	Fields      []FieldSchema
}

// IndexParams describes an index to build on a vector field.
type IndexParams struct {
	FieldName  string
	IndexType  string // e.g. "IVF_FLAT", "HNSW", "SPARSE_INVERTED_INDEX"
	MetricType string // e.g. "COSINE", "L2", "IP"
	Nlist      int
}

// Row is a single entity to insert, keyed by field name.
type Row map[string]any

// SearchRequest describes a single-vector ANN search. Exactly one of Vector
// or SparseQuery is set, depending on whether AnnsField names a dense or
// sparse field.
type SearchRequest struct {
	Collection     string
	AnnsField      string
	Vector         []float32
	SparseQuery    SparseVector
	TopK           int
	MetricType     string
	Filter         string
	OutputFields   []string
	DropRatioBuild float64 // used for sparse searches
}

// SearchHit is a single result row from a search.
type SearchHit struct {
	ID     any
	Score  float32
	Fields map[string]any
}

// Engine is the contract VectorGate uses against a remote vector database.
// RESTEngine is the only production implementation; tests use an in-memory
// fake satisfying the same interface.
type Engine interface {
	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error

	// CreateDatabase creates a tenant's dedicated database within the
	// engine. Idempotent.
	CreateDatabase(ctx context.Context, name string) error

	// CreateRole creates a role with no privileges attached. Idempotent.
	CreateRole(ctx context.Context, roleName string) error

	// GrantPrivilege attaches a privilege (e.g. "CollectionAdmin") on an
	// object (e.g. a collection or "*" for database-wide) to a role.
	GrantPrivilege(ctx context.Context, roleName, object, privilege, dbName string) error

	// CreateUser creates a login user with the given password. Idempotent:
	// re-creating an existing user updates its password.
	CreateUser(ctx context.Context, username, password string) error

	// GrantRole attaches a role to a user.
	GrantRole(ctx context.Context, username, roleName string) error

	// HasCollection reports whether a collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// DescribeCollection returns the schema of an existing collection.
	DescribeCollection(ctx context.Context, name string) (*CollectionSchema, error)

	// CreateCollection creates a collection with the given schema. In
	// RESTEngine, creating a collection that already exists returns
	// ErrAlreadyExists; the existing schema is not compared with the
	// requested one.
	CreateCollection(ctx context.Context, schema CollectionSchema) error

	// CreateIndex builds an index on a vector field. Idempotent.
	CreateIndex(ctx context.Context, collection string, params IndexParams) error

	// LoadCollection loads a collection into memory for search.
	LoadCollection(ctx context.Context, collection string) error

	// Insert upserts rows into a collection.
	Insert(ctx context.Context, collection string, rows []Row) error

	// Flush forces a collection's buffered segments to be persisted,
	// making recently inserted rows searchable.
	Flush(ctx context.Context, collection string) error

	// Search executes a single ANN search.
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)

	// Close releases any underlying transport resources.
	Close() error
}
