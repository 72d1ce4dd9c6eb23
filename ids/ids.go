// Package ids declares the id-resolution collaborator: the service mapping
// UUIDs and external identifiers onto canonical instance ids.
package ids

import (
	"context"

	"github.com/c360/kgraph/types"
)

// Resolver maps identifiers onto canonical instance ids. Implementations
// wrap the upstream id-resolution service.
type Resolver interface {
	// Resolve maps one UUID with its known alternative identifiers onto the
	// canonical instance id. Absent ids yield (nil, nil). An identifier
	// matching more than one instance is an ambiguity error.
	Resolve(ctx context.Context, id types.IDWithAlternatives, stage types.Stage) (*types.InstanceID, error)

	// ResolveAll is the bulk variant of Resolve. The result holds an entry
	// per resolvable input, keyed by the input UUID.
	ResolveAll(ctx context.Context, ids []types.IDWithAlternatives, stage types.Stage) (map[string]types.InstanceID, error)
}
