package instances

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/query"
	"github.com/c360/kgraph/structure"
	"github.com/c360/kgraph/types"
)

func newReleaseStatus(t *testing.T, deps Dependencies) *ReleaseStatus {
	t.Helper()
	if deps.Queries == nil {
		deps.Queries = fakeQueries{}
	}
	release, err := NewReleaseStatus(deps)
	require.NoError(t, err)
	return release
}

// scriptStatuses answers the release-marker lookup from a fixed key→status
// map; keys without an entry stay absent like unmarked instances do.
func scriptStatuses(db *fakeDatabase, statuses map[string]string) {
	base := db.queryFn
	db.queryFn = func(q string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(q, "kg/releaseStatus") {
			var rows []types.Document
			keys, _ := bindVars["keys"].([]string)
			for _, key := range keys {
				if status, ok := statuses[key]; ok {
					rows = append(rows, types.Document{"key": key, "status": status})
				}
			}
			return rows, nil
		}
		if base != nil {
			return base(q, bindVars)
		}
		return nil, nil
	}
}

func TestIndividualReleaseStatusDefaultsToUnreleased(t *testing.T) {
	db := newFakeDatabase()
	id := uuid.New()
	db.store("common", id, instanceDoc("common", id, "Thing", typeDataset))
	scriptStatuses(db, nil)
	release := newReleaseStatus(t, newTestDeps(t, db, globalEngine()))

	status, err := release.GetIndividualReleaseStatus(context.Background(), "common", id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnreleased, status)
}

func TestIndividualReleaseStatusReadsMarker(t *testing.T) {
	db := newFakeDatabase()
	id := uuid.New()
	db.store("common", id, instanceDoc("common", id, "Thing", typeDataset))
	scriptStatuses(db, map[string]string{id.String(): "RELEASED"})
	release := newReleaseStatus(t, newTestDeps(t, db, globalEngine()))

	status, err := release.GetIndividualReleaseStatus(context.Background(), "common", id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReleased, status)
}

func TestIndividualReleaseStatusForbidden(t *testing.T) {
	release := newReleaseStatus(t, newTestDeps(t, newFakeDatabase(), newGrantEngine()))

	_, err := release.GetIndividualReleaseStatus(context.Background(), "common", uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsForbidden(err))
}

func TestReleaseStatusTopInstances(t *testing.T) {
	db := newFakeDatabase()
	releasedID := uuid.New()
	changedID := uuid.New()
	unmarkedID := uuid.New()
	db.store("common", releasedID, instanceDoc("common", releasedID, "A", typeDataset))
	scriptStatuses(db, map[string]string{
		releasedID.String(): "RELEASED",
		changedID.String():  "HAS_CHANGED",
	})
	release := newReleaseStatus(t, newTestDeps(t, db, globalEngine()))

	statuses, err := release.GetReleaseStatusByIDs(context.Background(), []types.InstanceID{
		types.NewInstanceID("common", releasedID),
		types.NewInstanceID("common", changedID),
		types.NewInstanceID("common", unmarkedID),
	}, types.TopInstanceOnly)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReleased, statuses[releasedID])
	assert.Equal(t, types.StatusHasChanged, statuses[changedID])
	assert.Equal(t, types.StatusUnreleased, statuses[unmarkedID])
}

func TestReleaseStatusTopInstancesSkipsForbidden(t *testing.T) {
	db := newFakeDatabase()
	allowedID := uuid.New()
	deniedID := uuid.New()
	db.store("open", allowedID, instanceDoc("open", allowedID, "A", typeDataset))
	scriptStatuses(db, map[string]string{allowedID.String(): "RELEASED"})
	engine := newGrantEngine().grantSpace("open", "RELEASE_STATUS")
	release := newReleaseStatus(t, newTestDeps(t, db, engine))

	statuses, err := release.GetReleaseStatusByIDs(context.Background(), []types.InstanceID{
		types.NewInstanceID("open", allowedID),
		types.NewInstanceID("closed", deniedID),
	}, types.TopInstanceOnly)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReleased, statuses[allowedID])
	assert.NotContains(t, statuses, deniedID)
}

// childrenReleaseFixture builds a root whose scope has two children. The
// release markers are scripted afterwards via scriptStatuses.
func childrenReleaseFixture(t *testing.T) (*ReleaseStatus, *fakeDatabase, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	rootID := uuid.New()
	firstID := uuid.New()
	secondID := uuid.New()

	db := newFakeDatabase()
	db.docCollections[structure.CollectionSpaces] = true
	db.store("common", rootID, instanceDoc("common", rootID, "Root", typeDataset))
	db.queryFn = func(q string, bindVars map[string]any) ([]types.Document, error) {
		if bindVars["@collection"] == structure.CollectionSpaces {
			return []types.Document{{"schema/name": "common", "kg/scopeRelevant": true}}, nil
		}
		return nil, nil
	}

	dq := query.DeclaredQuery{ID: uuid.New(), Space: "common", RootType: typeDataset}
	deps := newTestDeps(t, db, globalEngine())
	deps.Queries = fakeQueries{
		declared: map[string][]query.DeclaredQuery{typeDataset: {dq}},
		results: map[uuid.UUID][]types.Document{
			dq.ID: {{
				"@id": iriPrefix + rootID.String(),
				"depends_on": []any{
					dependent("common", firstID, "First", typeVersion),
					dependent("common", secondID, "Second", typeVersion),
				},
			}},
		},
	}
	return newReleaseStatus(t, deps), db, rootID, firstID, secondID
}

func TestReleaseStatusChildrenAggregateWorst(t *testing.T) {
	release, db, rootID, firstID, _ := childrenReleaseFixture(t)
	// One child released, one without any marker.
	scriptStatuses(db, map[string]string{firstID.String(): "RELEASED"})

	statuses, err := release.GetReleaseStatusByIDs(context.Background(), []types.InstanceID{
		types.NewInstanceID("common", rootID),
	}, types.ChildrenOnly)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnreleased, statuses[rootID])
}

func TestReleaseStatusChildrenChangedDominatesReleased(t *testing.T) {
	release, db, rootID, firstID, secondID := childrenReleaseFixture(t)
	scriptStatuses(db, map[string]string{
		firstID.String():  "RELEASED",
		secondID.String(): "HAS_CHANGED",
	})

	statuses, err := release.GetReleaseStatusByIDs(context.Background(), []types.InstanceID{
		types.NewInstanceID("common", rootID),
	}, types.ChildrenOnly)
	require.NoError(t, err)
	assert.Equal(t, types.StatusHasChanged, statuses[rootID])
}

func TestReleaseStatusChildrenAllReleased(t *testing.T) {
	release, db, rootID, firstID, secondID := childrenReleaseFixture(t)
	scriptStatuses(db, map[string]string{
		firstID.String():  "RELEASED",
		secondID.String(): "RELEASED",
	})

	statuses, err := release.GetReleaseStatusByIDs(context.Background(), []types.InstanceID{
		types.NewInstanceID("common", rootID),
	}, types.ChildrenOnly)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReleased, statuses[rootID])
}

func TestReleaseStatusUnknownTreeScopeFails(t *testing.T) {
	release := newReleaseStatus(t, newTestDeps(t, newFakeDatabase(), globalEngine()))

	_, err := release.GetReleaseStatusByIDs(context.Background(), nil, types.ReleaseTreeScope("EVERYTHING"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
