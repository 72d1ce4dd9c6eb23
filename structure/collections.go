// Package structure maintains the metadata catalog of the store: the
// reflected and specified shape of spaces, types and properties per stage,
// the caches in front of the reflection queries and the cache eviction logic
// driven by document writes.
package structure

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/types"
)

// Store-owned collections holding specification documents and their links.
const (
	CollectionSpaces         = "spaces"
	CollectionTypes          = "types"
	CollectionProperties     = "properties"
	CollectionTypeInSpace    = "typeInSpace"
	CollectionPropertyInType = "propertyInType"
)

// Store-owned edge collections carrying bookkeeping relations between
// instance documents. They never represent user-declared links.
const (
	EdgeDocumentIDs   = "documentIds"
	EdgeAlternatives  = "alternatives"
	EdgeContributors  = "contributors"
	EdgeInferenceOf   = "inferenceOf"
	EdgeReleaseStatus = "releaseStatus"
	EdgeTypeRelations = "typeRelations"
	EdgeUnresolved    = "unresolved"
)

// edgeBlacklist lists the edge collections that never count as user-declared
// links, and are therefore excluded from traversals over "relevant" edges.
var edgeBlacklist = map[string]bool{
	EdgeDocumentIDs:   true,
	EdgeAlternatives:  true,
	EdgeContributors:  true,
	EdgeInferenceOf:   true,
	EdgeReleaseStatus: true,
	EdgeTypeRelations: true,
	EdgeUnresolved:    true,
}

// IsRelevantEdgeCollection reports whether an edge collection represents
// user-declared links.
func IsRelevantEdgeCollection(name string) bool {
	return !edgeBlacklist[name]
}

// clientCollection prefixes a specification collection for a client space,
// so clients can overlay their own type and property declarations.
func clientCollection(clientSpace types.SpaceName, collection string) string {
	return aql.FromSpace(clientSpace).Name + "_" + collection
}

// Specification documents carry stable, name-derived keys so that updates
// are idempotent.
func spaceSpecKey(space types.SpaceName) string {
	return nameBasedKey(fmt.Sprintf("spaces/%s", space))
}

func typeSpecKey(typeName string) string {
	return nameBasedKey(fmt.Sprintf("types/%s", typeName))
}

func propertySpecKey(property string) string {
	return nameBasedKey(fmt.Sprintf("properties/%s", property))
}

func typeInSpaceKey(space types.SpaceName, typeName string) string {
	return nameBasedKey(fmt.Sprintf("spaces/%s/types/%s", space, typeName))
}

func propertyInTypeKey(typeName, property string) string {
	return nameBasedKey(fmt.Sprintf("types/%s/properties/%s", typeName, property))
}

func nameBasedKey(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
