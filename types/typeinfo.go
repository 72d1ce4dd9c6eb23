package types

import "sort"

// SpaceReference counts occurrences of something within a space.
type SpaceReference struct {
	Space       string `json:"space"`
	Occurrences int64  `json:"occurrences"`
}

// TargetType describes a type reachable through a property, with per-space
// occurrence counts.
type TargetType struct {
	Type        string           `json:"type"`
	Occurrences int64            `json:"occurrences"`
	Spaces      []SpaceReference `json:"spaces,omitempty"`
}

// Property is the reflected and specified shape of a property of a type.
// Specification keys beyond the well-known ones are carried in Extra.
type Property struct {
	Identifier  string         `json:"identifier"`
	Occurrences int64          `json:"occurrences"`
	TargetTypes []TargetType   `json:"targetTypes,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SpaceTypeInformation is the per-space view of a type.
type SpaceTypeInformation struct {
	Space       string     `json:"space"`
	Occurrences int64      `json:"occurrences"`
	Properties  []Property `json:"properties,omitempty"`
}

// TypeInformation is the aggregated, cross-space view of a type.
type TypeInformation struct {
	Identifier    string                 `json:"identifier"`
	Name          string                 `json:"name,omitempty"`
	Description   string                 `json:"description,omitempty"`
	LabelProperty string                 `json:"labelProperty,omitempty"`
	Occurrences   int64                  `json:"occurrences"`
	Spaces        []SpaceTypeInformation `json:"spaces,omitempty"`
	Properties    []Property             `json:"properties,omitempty"`
	IncomingLinks []IncomingLink         `json:"incomingLinks,omitempty"`
	Extra         map[string]any         `json:"extra,omitempty"`
}

// SourceType names a type (and the spaces it appears in) that links into
// another type through some property.
type SourceType struct {
	Type   string           `json:"type"`
	Spaces []SpaceReference `json:"spaces,omitempty"`
}

// IncomingLink is the inversion of a target-type declaration: a property of
// other types that points at this type.
type IncomingLink struct {
	Identifier  string       `json:"identifier"`
	SourceTypes []SourceType `json:"sourceTypes,omitempty"`
}

// SortTypeInformation orders the aggregate deterministically, preferring the
// display name and falling back to the identifier.
func SortTypeInformation(types []TypeInformation) {
	sort.Slice(types, func(i, j int) bool {
		return typeSortKey(types[i]) < typeSortKey(types[j])
	})
}

func typeSortKey(t TypeInformation) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Identifier
}
