package types

import (
	"sort"

	"github.com/google/uuid"
)

// ScopeElement is a node of the dependency tree of an instance. The same
// instance can be reached along several paths; elements on the same level
// with the same id are merged.
type ScopeElement struct {
	ID         uuid.UUID       `json:"id"`
	Types      []string        `json:"types,omitempty"`
	InternalID string          `json:"internalId,omitempty"`
	Space      string          `json:"space,omitempty"`
	Label      string          `json:"label,omitempty"`
	Children   []*ScopeElement `json:"children,omitempty"`
}

// Merge folds other into e: types are unioned and the child lists are
// concatenated. The caller is expected to re-merge the combined children.
func (e *ScopeElement) Merge(other *ScopeElement) {
	if other == nil {
		return
	}
	e.Types = unionStrings(e.Types, other.Types)
	if e.Label == "" {
		e.Label = other.Label
	}
	if e.Space == "" {
		e.Space = other.Space
	}
	if e.InternalID == "" {
		e.InternalID = other.InternalID
	}
	e.Children = append(e.Children, other.Children...)
}

// CollectInstanceIDs walks the tree and returns every node id once.
func (e *ScopeElement) CollectInstanceIDs() []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	var walk func(*ScopeElement)
	walk = func(n *ScopeElement) {
		if n == nil {
			return
		}
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n.ID)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(e)
	return out
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
