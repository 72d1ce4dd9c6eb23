// Package vocabulary defines the reserved key names used inside graph
// documents. Keys fall into two families: database-internal keys (prefixed
// with "_", written by the store and never exposed to clients) and meta keys
// (namespaced with "kg/", derived or declared metadata that may appear in
// read results).
package vocabulary

import "strings"

// JSON-LD style identity keys. These are part of the public document shape.
const (
	KeyID   = "@id"
	KeyType = "@type"
)

// Database-internal keys. They carry store bookkeeping and must be stripped
// before a document leaves the repository layer.
const (
	InternalKey              = "_key"
	InternalID               = "_id"
	InternalRevision         = "_rev"
	InternalFrom             = "_from"
	InternalTo               = "_to"
	InternalCollection       = "_collection"
	InternalLabel            = "_label"
	InternalEmbedded         = "_embedded"
	InternalAlternative      = "_alternative"
	InternalIdentifiers      = "_identifiers"
	InternalDocumentID       = "_documentId"
	InternalOriginalDocument = "_originalDocument"
	InternalOriginalLabel    = "_originalLabel"
)

// Meta keys carried on read results.
const (
	MetaSpace                  = "kg/space"
	MetaLabel                  = "kg/label"
	MetaRevision               = "kg/revision"
	MetaAlternative            = "kg/alternative"
	MetaUser                   = "kg/user"
	MetaIncomingLinks          = "kg/incomingLinks"
	MetaOccurrences            = "kg/occurrences"
	MetaProperties             = "kg/properties"
	MetaSpaces                 = "kg/spaces"
	MetaLabelProperty          = "kg/labelProperty"
	MetaSearchableProperties   = "kg/searchableProperties"
	MetaIgnoreIncomingLinks    = "kg/ignoreIncomingLinks"
	MetaCanBeExcludedFromScope = "kg/canBeExcludedFromScope"
	MetaNameReverseLink        = "kg/nameForReverseLink"
	MetaPropertyTargetTypes    = "kg/targetTypes"
	MetaAutoRelease            = "kg/autoRelease"
	MetaClientSpace            = "kg/clientSpace"
	MetaDeferCache             = "kg/deferCache"
	MetaScopeRelevant          = "kg/scopeRelevant"
	MetaReleaseStatus          = "kg/releaseStatus"
)

// Schema keys for descriptive attributes of specification documents.
const (
	SchemaName        = "schema/name"
	SchemaIdentifier  = "schema/identifier"
	SchemaDescription = "schema/description"
)

// PrivateSpaceAlias is the name under which a user's private space is
// surfaced to clients, masking the real internal space name.
const PrivateSpaceAlias = "myspace"

// ReviewSpace is the virtual space under which invitation-based instances
// are reported in the metadata catalog.
const ReviewSpace = "review"

// IsInternalKey reports whether a key is database-internal bookkeeping.
func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// IsIdentityKey reports whether a key is one of the JSON-LD identity keys.
func IsIdentityKey(key string) bool {
	return key == KeyID || key == KeyType
}

// IsReservedKey reports whether a key is internal, identity or meta - i.e.
// anything that is not a user-defined property.
func IsReservedKey(key string) bool {
	return IsInternalKey(key) || IsIdentityKey(key) || strings.HasPrefix(key, "kg/")
}
