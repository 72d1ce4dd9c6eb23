package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestScopeElementMerge(t *testing.T) {
	id := uuid.New()
	childA := &ScopeElement{ID: uuid.New(), Label: "a"}
	childB := &ScopeElement{ID: uuid.New(), Label: "b"}

	left := &ScopeElement{ID: id, Types: []string{"T1"}, Children: []*ScopeElement{childA}}
	right := &ScopeElement{ID: id, Types: []string{"T2", "T1"}, Label: "merged", Children: []*ScopeElement{childB}}

	left.Merge(right)

	assert.Equal(t, []string{"T1", "T2"}, left.Types)
	assert.Equal(t, "merged", left.Label)
	assert.Len(t, left.Children, 2)
}

func TestScopeElementCollectInstanceIDs(t *testing.T) {
	shared := uuid.New()
	root := &ScopeElement{
		ID: uuid.New(),
		Children: []*ScopeElement{
			{ID: shared},
			{ID: uuid.New(), Children: []*ScopeElement{{ID: shared}}},
		},
	}
	assert.Len(t, root.CollectInstanceIDs(), 3)
}
