// Package query declares the graph-query collaborator: the executor of
// user-declared queries, consumed by the scope repository.
package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/c360/kgraph/types"
)

// DeclaredQuery is a stored, user-declared graph query. The scope repository
// only needs its identity, its root type and the space it was declared in;
// the query body is opaque and interpreted by the executor.
type DeclaredQuery struct {
	ID       uuid.UUID
	Space    types.SpaceName
	RootType string
	Body     types.Document
}

// Executor runs declared queries. Implementations wrap the query-language
// compiler, which is a separate system.
type Executor interface {
	// QueriesForType lists the declared queries whose root type matches.
	QueriesForType(ctx context.Context, stage types.Stage, rootType string) ([]DeclaredQuery, error)

	// Execute runs a declared query restricted to a single instance id and
	// returns the matching documents.
	Execute(ctx context.Context, stage types.Stage, q DeclaredQuery, restrictTo uuid.UUID) ([]types.Document, error)
}
