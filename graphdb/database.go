// Package graphdb is the storage boundary of the repository layer. It exposes
// a narrow query interface per stage so that the repositories stay testable
// against fakes while production wires an ArangoDB client behind it.
package graphdb

import (
	"context"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/types"
)

// Database is one stage's view of the store.
type Database interface {
	// GetDocument fetches a document by its "collection/key" id. Absent
	// documents yield (nil, nil).
	GetDocument(ctx context.Context, id string) (types.Document, error)

	// Query runs an AQL query and decodes every row into a document.
	Query(ctx context.Context, query string, bindVars map[string]any) ([]types.Document, error)

	// QueryWithTotal runs a paginated query and additionally reports the
	// total number of matches before the LIMIT was applied.
	QueryWithTotal(ctx context.Context, query string, bindVars map[string]any) ([]types.Document, int64, error)

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// DocumentCollections lists the non-edge collections.
	DocumentCollections(ctx context.Context) ([]string, error)

	// EdgeCollections lists the edge collections.
	EdgeCollections(ctx context.Context) ([]string, error)

	// EnsureCollection creates the referenced collection if it is missing.
	EnsureCollection(ctx context.Context, ref aql.CollectionReference) error

	// UpsertDocument creates or replaces a document under the given key.
	UpsertDocument(ctx context.Context, collection, key string, doc types.Document) error

	// RemoveDocument deletes a document by its "collection/key" id. Absent
	// documents are not an error.
	RemoveDocument(ctx context.Context, id string) error
}

// Databases holds the per-stage databases.
type Databases struct {
	byStage map[types.Stage]Database
}

// NewDatabases wires one database per stage.
func NewDatabases(native, inProgress, released Database) (*Databases, error) {
	if native == nil || inProgress == nil || released == nil {
		return nil, errors.WrapInvalid(nil, "graphdb", "NewDatabases", "all stages are required")
	}
	return &Databases{byStage: map[types.Stage]Database{
		types.StageNative:     native,
		types.StageInProgress: inProgress,
		types.StageReleased:   released,
	}}, nil
}

// ByStage returns the database backing a stage.
func (d *Databases) ByStage(stage types.Stage) (Database, error) {
	db, ok := d.byStage[stage]
	if !ok {
		return nil, errors.WrapInvalid(nil, "graphdb", "ByStage", "unknown stage "+string(stage))
	}
	return db, nil
}
