package instances

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/types"
)

func newNeighbors(t *testing.T, deps Dependencies) *Neighbors {
	t.Helper()
	neighbors, err := NewNeighbors(deps)
	require.NoError(t, err)
	return neighbors
}

func neighborRow(id uuid.UUID, label, space, typeName string) types.Document {
	return types.Document{
		"id":    iriPrefix + id.String(),
		"label": label,
		"space": space,
		"types": []any{typeName},
	}
}

func TestGetNeighborsAmbiguousCenterFails(t *testing.T) {
	db := newFakeDatabase()
	id := uuid.New()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if bindVars["key"] == id.String() {
			return []types.Document{
				neighborRow(id, "One", "common", typeDataset),
				neighborRow(id, "Two", "common", typeDataset),
			}, nil
		}
		return nil, nil
	}
	neighbors := newNeighbors(t, newTestDeps(t, db, globalEngine()))

	_, err := neighbors.GetNeighbors(context.Background(), types.StageInProgress, "common", id)
	require.Error(t, err)
	assert.True(t, errors.IsAmbiguous(err))
}

func TestGetNeighborsAbsentYieldsNil(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	neighbors := newNeighbors(t, newTestDeps(t, db, globalEngine()))

	entity, err := neighbors.GetNeighbors(context.Background(), types.StageInProgress, "common", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestGetNeighborsForbiddenWithoutAccess(t *testing.T) {
	neighbors := newNeighbors(t, newTestDeps(t, newFakeDatabase(), newGrantEngine()))

	_, err := neighbors.GetNeighbors(context.Background(), types.StageInProgress, "common", uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsForbidden(err))
}

func TestGetNeighborsBuildsNestedGraph(t *testing.T) {
	db := newFakeDatabase()
	centerID := uuid.New()
	inboundID := uuid.New()
	firstHopID := uuid.New()
	secondHopID := uuid.New()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.edgeCollections[aql.FromProperty(affiliationProperty).Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		switch {
		case bindVars["key"] == centerID.String():
			return []types.Document{neighborRow(centerID, "Center", "common", typeDataset)}, nil
		case strings.Contains(query, "INBOUND @instanceRef"):
			return []types.Document{neighborRow(inboundID, "Pointer", "common", typeVersion)}, nil
		case strings.Contains(query, "OUTBOUND @instanceRef"):
			first := neighborRow(firstHopID, "Near", "common", typeVersion)
			first["parent"] = iriPrefix + centerID.String()
			second := neighborRow(secondHopID, "Far", "common", typeFile)
			second["parent"] = iriPrefix + firstHopID.String()
			return []types.Document{first, second}, nil
		}
		return nil, nil
	}
	neighbors := newNeighbors(t, newTestDeps(t, db, globalEngine()))

	entity, err := neighbors.GetNeighbors(context.Background(), types.StageInProgress, "common", centerID)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "Center", entity.Name)

	require.Len(t, entity.Inbound, 1)
	assert.Equal(t, "Pointer", entity.Inbound[0].Name)

	// The second hop nests under the first through the traversal path.
	require.Len(t, entity.Outbound, 1)
	near := entity.Outbound[0]
	assert.Equal(t, "Near", near.Name)
	require.Len(t, near.Outbound, 1)
	assert.Equal(t, "Far", near.Outbound[0].Name)
}

func TestGetNeighborsWithoutEdgesReturnsCenterOnly(t *testing.T) {
	db := newFakeDatabase()
	centerID := uuid.New()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if bindVars["key"] == centerID.String() {
			return []types.Document{neighborRow(centerID, "Center", "common", typeDataset)}, nil
		}
		return nil, nil
	}
	neighbors := newNeighbors(t, newTestDeps(t, db, globalEngine()))

	entity, err := neighbors.GetNeighbors(context.Background(), types.StageInProgress, "common", centerID)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Empty(t, entity.Inbound)
	assert.Empty(t, entity.Outbound)
}
