package aql

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/kgraph/types"
)

// maxCollectionName is the longest name we hand to the store. Longer encoded
// names are truncated and disambiguated with a hash suffix.
const maxCollectionName = 60

// CollectionReference names a collection and records whether it holds edges.
type CollectionReference struct {
	Name string
	Edge bool
}

// FromSpace derives the document collection backing a space.
func FromSpace(space types.SpaceName) CollectionReference {
	return CollectionReference{Name: encodeName(string(space))}
}

// FromProperty derives the edge collection backing a relation property.
func FromProperty(propertyIRI string) CollectionReference {
	return CollectionReference{Name: encodeName(propertyIRI), Edge: true}
}

// InternalCollection references a store-owned collection by its literal name.
func InternalCollection(name string, edge bool) CollectionReference {
	return CollectionReference{Name: name, Edge: edge}
}

// AQL renders the reference for inline use in query text.
func (c CollectionReference) AQL() string {
	return "`" + c.Name + "`"
}

// DocumentReference addresses a single document.
type DocumentReference struct {
	Collection CollectionReference
	Key        string
}

// NewDocumentReference addresses an instance document by space and id.
func NewDocumentReference(space types.SpaceName, id uuid.UUID) DocumentReference {
	return DocumentReference{Collection: FromSpace(space), Key: id.String()}
}

// ID renders the "collection/key" form used by DOCUMENT() and _id values.
func (d DocumentReference) ID() string {
	return d.Collection.Name + "/" + d.Key
}

// encodeName maps an arbitrary identifier onto the store's collection name
// alphabet. The mapping is deterministic; collisions on truncation are
// avoided by a hash suffix.
func encodeName(raw string) string {
	lower := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if name == "" {
		name = "unnamed"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "c" + name
	}
	if len(name) > maxCollectionName {
		h := fnv.New32a()
		h.Write([]byte(raw))
		name = fmt.Sprintf("%s-%08x", name[:maxCollectionName-9], h.Sum32())
	}
	return name
}
