package types

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/kgraph/vocabulary"
)

// Document is the JSON-like property bag of a graph document. Reserved keys
// (identity, internal, meta) are accessed through the typed helpers below;
// everything else is a user-defined property.
type Document map[string]any

// ID returns the document's "@id" value, or "" if absent.
func (d Document) ID() string {
	s, _ := d[vocabulary.KeyID].(string)
	return s
}

// UUID extracts the UUID from the document's "@id".
func (d Document) UUID() (uuid.UUID, bool) {
	return UUIDFromIRI(d.ID())
}

// Types returns the document's type identifiers.
func (d Document) Types() []string {
	return d.StringList(vocabulary.KeyType)
}

// Space returns the document's space meta field.
func (d Document) Space() SpaceName {
	return SpaceName(d.String(vocabulary.MetaSpace))
}

// Label returns the indexed label of the document.
func (d Document) Label() string {
	return d.String(vocabulary.InternalLabel)
}

// Revision returns the store's revision token.
func (d Document) Revision() string {
	return d.String(vocabulary.InternalRevision)
}

// IsEmbedded reports whether the document carries the embedding flag.
func (d Document) IsEmbedded() bool {
	return d.Bool(vocabulary.InternalEmbedded)
}

// IsAlternative reports whether the document carries the alternative flag.
func (d Document) IsAlternative() bool {
	return d.Bool(vocabulary.InternalAlternative)
}

// String returns the value of key if it is a string, "" otherwise.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns the value of key if it is a bool, false otherwise.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// List returns the value of key as a slice. A scalar value is wrapped into a
// single-element slice; an absent value yields nil.
func (d Document) List(key string) []any {
	v, ok := d[key]
	if !ok || v == nil {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

// StringList returns the value of key as a list of strings, skipping
// non-string elements.
func (d Document) StringList(key string) []string {
	var out []string
	for _, v := range d.List(key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Doc returns the value of key as a nested Document.
func (d Document) Doc(key string) (Document, bool) {
	switch v := d[key].(type) {
	case Document:
		return v, true
	case map[string]any:
		return Document(v), true
	}
	return nil, false
}

// DocList returns the value of key as a list of nested Documents, skipping
// elements of other shapes.
func (d Document) DocList(key string) []Document {
	var out []Document
	for _, v := range d.List(key) {
		if sub, ok := AsDocument(v); ok {
			out = append(out, sub)
		}
	}
	return out
}

// Identifiers returns the declared external identifiers of the document.
func (d Document) Identifiers() []string {
	return d.StringList(vocabulary.SchemaIdentifier)
}

// AllIdentifiersIncludingID returns the external identifiers plus the "@id",
// deduplicated.
func (d Document) AllIdentifiersIncludingID() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(d.ID())
	for _, id := range d.Identifiers() {
		add(id)
	}
	return out
}

// Keys returns the document's keys in sorted order. Sorting keeps outputs
// deterministic wherever key order becomes visible.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PropertyKeys returns the sorted keys that are user-defined properties:
// everything that is not internal or a JSON-LD identity key.
func (d Document) PropertyKeys() []string {
	var keys []string
	for k := range d {
		if !vocabulary.IsInternalKey(k) && !vocabulary.IsIdentityKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// KeepProperties removes every key that is not in keep. This is the payload
// reduction applied for minimal-read access.
func (d Document) KeepProperties(keep map[string]bool) {
	for k := range d {
		if !keep[k] {
			delete(d, k)
		}
	}
}

// RemoveInternalProperties strips all database-internal keys.
func (d Document) RemoveInternalProperties() {
	for k := range d {
		if vocabulary.IsInternalKey(k) {
			delete(d, k)
		}
	}
}

// Copy returns a deep copy of the document.
func (d Document) Copy() Document {
	return Document(copyValue(map[string]any(d)).(map[string]any))
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Document:
		return copyValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// AsDocument coerces a decoded JSON value into a Document.
func AsDocument(v any) (Document, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]any:
		return Document(t), true
	}
	return nil, false
}

// ReferenceID returns the target id if v is a reference object: a document
// whose only relevant content is an "@id" pointing at another document.
func ReferenceID(v any) (string, bool) {
	doc, ok := AsDocument(v)
	if !ok {
		return "", false
	}
	ref, ok := doc[vocabulary.KeyID].(string)
	return ref, ok && ref != ""
}

// UUIDFromIRI extracts the trailing UUID of an absolute instance IRI.
func UUIDFromIRI(iri string) (uuid.UUID, bool) {
	if iri == "" {
		return uuid.UUID{}, false
	}
	idx := strings.LastIndex(iri, "/")
	id, err := uuid.Parse(iri[idx+1:])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
