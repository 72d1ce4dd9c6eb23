package types

import "github.com/google/uuid"

// CacheEvictionPlan captures what a single document looked like on one side
// of a write: its id, its space and the types and property keys it carried.
// Comparing the before and after plans of a write yields the caches to evict.
type CacheEvictionPlan struct {
	ID         uuid.UUID `json:"id"`
	Space      string    `json:"space"`
	Types      []string  `json:"types,omitempty"`
	Properties []string  `json:"properties,omitempty"`
}

// SameShape reports whether two plans describe the same space, types and
// properties. Order matters: plans are built from normalized documents whose
// lists are stable.
func (p CacheEvictionPlan) SameShape(other CacheEvictionPlan) bool {
	if p.Space != other.Space || len(p.Types) != len(other.Types) || len(p.Properties) != len(other.Properties) {
		return false
	}
	for i := range p.Types {
		if p.Types[i] != other.Types[i] {
			return false
		}
	}
	for i := range p.Properties {
		if p.Properties[i] != other.Properties[i] {
			return false
		}
	}
	return true
}
