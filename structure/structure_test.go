package structure

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/types"
)

// fakeDatabase is an in-memory graphdb.Database whose query behavior is
// scripted per test via queryFn.
type fakeDatabase struct {
	mu              sync.Mutex
	documents       map[string]types.Document
	docCollections  map[string]bool
	edgeCollections map[string]bool
	queryFn         func(query string, bindVars map[string]any) ([]types.Document, error)
	queryCount      int
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		documents:       map[string]types.Document{},
		docCollections:  map[string]bool{},
		edgeCollections: map[string]bool{},
	}
}

func (f *fakeDatabase) GetDocument(_ context.Context, id string) (types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents[id], nil
}

func (f *fakeDatabase) Query(_ context.Context, query string, bindVars map[string]any) ([]types.Document, error) {
	f.mu.Lock()
	f.queryCount++
	fn := f.queryFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(query, bindVars)
}

func (f *fakeDatabase) QueryWithTotal(ctx context.Context, query string, bindVars map[string]any) ([]types.Document, int64, error) {
	docs, err := f.Query(ctx, query, bindVars)
	return docs, int64(len(docs)), err
}

func (f *fakeDatabase) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docCollections[name] || f.edgeCollections[name], nil
}

func (f *fakeDatabase) DocumentCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.docCollections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeDatabase) EdgeCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.edgeCollections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeDatabase) EnsureCollection(_ context.Context, ref aql.CollectionReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.Edge {
		f.edgeCollections[ref.Name] = true
	} else {
		f.docCollections[ref.Name] = true
	}
	return nil
}

func (f *fakeDatabase) UpsertDocument(_ context.Context, collection, key string, doc types.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[collection+"/"+key] = doc
	return nil
}

func (f *fakeDatabase) RemoveDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, id)
	return nil
}

func (f *fakeDatabase) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCount
}

func newTestRepository(t *testing.T, db *fakeDatabase) *Repository {
	t.Helper()
	databases, err := graphdb.NewDatabases(newFakeDatabase(), db, db)
	require.NoError(t, err)
	repo, err := NewRepository(Dependencies{Databases: databases})
	require.NoError(t, err)
	return repo
}

func TestRepositorySpacesParsesSpecifications(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[CollectionSpaces] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		assert.Equal(t, CollectionSpaces, bindVars["@collection"])
		return []types.Document{
			{"schema/name": "common", "kg/autoRelease": true, "kg/deferCache": true},
			{"schema/name": "curated", "kg/clientSpace": true},
		}, nil
	}
	repo := newTestRepository(t, db)

	spaces, err := repo.Spaces(context.Background())
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, types.SpaceName("common"), spaces[0].Name)
	assert.True(t, spaces[0].AutoRelease)
	assert.True(t, spaces[0].DeferCache)
	assert.True(t, spaces[1].ClientSpace)

	// Second read is served from the cache.
	before := db.queries()
	_, err = repo.Spaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, db.queries())
}

func TestRepositorySpecAbsentCollectionYieldsNothing(t *testing.T) {
	repo := newTestRepository(t, newFakeDatabase())

	doc, err := repo.TypeSpecification(context.Background(), "https://example.org/Person")
	require.NoError(t, err)
	assert.Nil(t, doc)

	names, err := repo.TypesInSpaceBySpecification(context.Background(), "common")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRepositoryTypeSpecificationAmbiguous(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[CollectionTypes] = true
	db.queryFn = func(string, map[string]any) ([]types.Document, error) {
		return []types.Document{{"schema/identifier": "T"}, {"schema/identifier": "T"}}, nil
	}
	repo := newTestRepository(t, db)

	_, err := repo.TypeSpecification(context.Background(), "T")
	require.Error(t, err)
	assert.True(t, errors.IsAmbiguous(err))
}

func TestRepositoryReflectedTypesInSpace(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		require.Contains(t, query, "COLLECT typeName = t WITH COUNT INTO occurrences")
		return []types.Document{
			{"typeName": "https://example.org/Person", "occurrences": float64(3)},
		}, nil
	}
	repo := newTestRepository(t, db)

	counts, err := repo.ReflectedTypesInSpace(context.Background(), types.StageInProgress, "common")
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "https://example.org/Person", counts[0].Name)
	assert.Equal(t, int64(3), counts[0].Occurrences)

	// A space without a backing collection reflects to nothing.
	counts, err = repo.ReflectedTypesInSpace(context.Background(), types.StageInProgress, "ghost")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRepositoryRelevantEdgeCollections(t *testing.T) {
	db := newFakeDatabase()
	db.edgeCollections["https-example-org-affiliation"] = true
	db.edgeCollections[EdgeDocumentIDs] = true
	db.edgeCollections[EdgeReleaseStatus] = true
	repo := newTestRepository(t, db)

	refs, err := repo.RelevantEdgeCollections(context.Background(), types.StageInProgress)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "https-example-org-affiliation", refs[0].Name)
	assert.True(t, refs[0].Edge)
}

func newController(t *testing.T, repo *Repository, config CacheControllerConfig) *CacheController {
	t.Helper()
	controller, err := NewCacheController(repo, config, nil, nil)
	require.NoError(t, err)
	return controller
}

func plan(space string, typeNames ...string) *types.CacheEvictionPlan {
	return &types.CacheEvictionPlan{ID: uuid.New(), Space: space, Types: typeNames}
}

func TestCacheControllerEvictsChangedTypes(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "COLLECT typeName") {
			return []types.Document{{"typeName": "A", "occurrences": float64(1)}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{})

	ctx := context.Background()
	_, err := repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "common")
	require.NoError(t, err)
	primed := db.queries()

	before := plan("common", "A", "B")
	after := plan("common", "B", "C")
	after.ID = before.ID
	err = controller.Evict(ctx, types.StageInProgress, []DocumentChange{{Before: before, After: after}})
	require.NoError(t, err)
	assert.Zero(t, controller.PendingDeferred())

	// The type counts were evicted, so the next read hits the store again.
	_, err = repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "common")
	require.NoError(t, err)
	assert.Greater(t, db.queries(), primed)
}

func TestCacheControllerUnchangedUpdateEvictsNothing(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{})

	ctx := context.Background()
	_, err := repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "common")
	require.NoError(t, err)
	primed := db.queries()

	before := plan("common", "A")
	after := plan("common", "A")
	after.ID = before.ID
	err = controller.Evict(ctx, types.StageInProgress, []DocumentChange{{Before: before, After: after}})
	require.NoError(t, err)

	_, err = repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "common")
	require.NoError(t, err)
	assert.Equal(t, primed, db.queries())
}

func TestCacheControllerUnchangedShapeUpdateEvictsTargetTypes(t *testing.T) {
	const affiliation = "https://example.org/affiliation"
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.edgeCollections[aql.FromProperty(affiliation).Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "COLLECT targetType") {
			return []types.Document{{"targetType": "B", "targetSpace": "common", "occurrences": float64(1)}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{})

	ctx := context.Background()
	_, err := repo.ReflectedTargetTypes(ctx, types.StageInProgress, "common", "A", affiliation)
	require.NoError(t, err)
	primed := db.queries()

	// A link target moved without the type or property lists changing.
	before := plan("common", "A")
	before.Properties = []string{affiliation}
	after := plan("common", "A")
	after.ID = before.ID
	after.Properties = []string{affiliation}
	err = controller.Evict(ctx, types.StageInProgress, []DocumentChange{{Before: before, After: after}})
	require.NoError(t, err)

	// The target reflection was evicted, so the next read recomputes it.
	_, err = repo.ReflectedTargetTypes(ctx, types.StageInProgress, "common", "A", affiliation)
	require.NoError(t, err)
	assert.Greater(t, db.queries(), primed)
}

func TestCacheControllerTargetEvictionSkipsPlainProperties(t *testing.T) {
	const affiliation = "https://example.org/affiliation"
	db := newFakeDatabase()
	db.docCollections[CollectionSpaces] = true
	db.docCollections[aql.FromSpace("bulk").Name] = true
	db.edgeCollections[aql.FromProperty(affiliation).Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "RETURN doc") {
			return []types.Document{{"schema/name": "bulk", "kg/deferCache": true}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{DeferDelay: time.Hour, DeferLimit: 100})

	ctx := context.Background()
	before := plan("bulk", "A")
	before.Properties = []string{affiliation, "https://example.org/name"}
	after := plan("bulk", "A")
	after.ID = before.ID
	after.Properties = []string{affiliation, "https://example.org/name"}
	require.NoError(t, controller.Evict(ctx, types.StageInProgress, []DocumentChange{{Before: before, After: after}}))

	// Only the edge-backed property carries a target-type reflection; the
	// scalar property is filtered out.
	assert.Equal(t, 1, controller.PendingDeferred())
}

func TestCacheControllerCreateInUnknownSpaceEvictsSpaceList(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "RETURN { space: doc.`kg/space` }") {
			return []types.Document{{"space": "common"}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{})

	ctx := context.Background()
	spaces, err := repo.ReflectedSpaces(ctx, types.StageInProgress)
	require.NoError(t, err)
	require.Equal(t, []types.SpaceName{"common"}, spaces)
	primed := db.queries()

	err = controller.Evict(ctx, types.StageInProgress, []DocumentChange{{After: plan("brandnew", "A")}})
	require.NoError(t, err)

	// The space list was evicted, so the next read probes the store again.
	_, err = repo.ReflectedSpaces(ctx, types.StageInProgress)
	require.NoError(t, err)
	assert.Greater(t, db.queries(), primed)
}

func TestCacheControllerDefersAndFlushes(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[CollectionSpaces] = true
	db.docCollections[aql.FromSpace("bulk").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		switch {
		case strings.Contains(query, "RETURN doc"):
			return []types.Document{{"schema/name": "bulk", "kg/deferCache": true}}, nil
		case strings.Contains(query, "COLLECT typeName"):
			return []types.Document{{"typeName": "A", "occurrences": float64(5)}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{DeferDelay: 10 * time.Millisecond, DeferLimit: 100})

	ctx := context.Background()
	_, err := repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "bulk")
	require.NoError(t, err)

	err = controller.Evict(ctx, types.StageInProgress, []DocumentChange{{After: plan("bulk", "A")}})
	require.NoError(t, err)
	assert.Positive(t, controller.PendingDeferred())
	afterEvict := db.queries()

	// While deferred, the cached counts stay warm.
	_, err = repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "bulk")
	require.NoError(t, err)
	assert.Equal(t, afterEvict, db.queries())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, controller.CheckDeferred(ctx))
	assert.Zero(t, controller.PendingDeferred())

	// The flush refreshed the entry, so it is warm again afterwards.
	refreshed := db.queries()
	assert.Greater(t, refreshed, afterEvict)
	_, err = repo.ReflectedTypesInSpace(ctx, types.StageInProgress, "bulk")
	require.NoError(t, err)
	assert.Equal(t, refreshed, db.queries())
}

func TestCacheControllerBacklogLimitFlushesAll(t *testing.T) {
	db := newFakeDatabase()
	db.docCollections[CollectionSpaces] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "RETURN doc") {
			return []types.Document{{"schema/name": "bulk", "kg/deferCache": true}}, nil
		}
		return nil, nil
	}
	repo := newTestRepository(t, db)
	controller := newController(t, repo, CacheControllerConfig{DeferDelay: time.Hour, DeferLimit: 3})

	ctx := context.Background()
	for _, typeName := range []string{"A", "B", "C", "D"} {
		err := controller.Evict(ctx, types.StageInProgress, []DocumentChange{{After: plan("bulk", typeName)}})
		require.NoError(t, err)
	}
	require.Greater(t, controller.PendingDeferred(), 3)

	controller.CheckDeferred(ctx)
	assert.Zero(t, controller.PendingDeferred())
}

// stubEngine grants global read everywhere.
type stubEngine struct{}

func (stubEngine) HasGlobalPermission(permissions.Functionality) bool { return true }
func (stubEngine) HasSpacePermission(permissions.Functionality, types.SpaceName) bool {
	return true
}
func (stubEngine) HasInstancePermission(permissions.Functionality, types.SpaceName, uuid.UUID) bool {
	return true
}
func (stubEngine) SpacesWithPermission(permissions.Functionality) []types.SpaceName { return nil }
func (stubEngine) InstancesWithPermission(permissions.Functionality) []types.InstanceID {
	return nil
}

func newMetaDataController(t *testing.T, repo *Repository) *MetaDataController {
	t.Helper()
	perms, err := permissions.NewController(stubEngine{}, nil)
	require.NoError(t, err)
	controller, err := NewMetaDataController(repo, perms, nil, nil)
	require.NoError(t, err)
	return controller
}

func metadataFakeDatabase() *fakeDatabase {
	db := newFakeDatabase()
	db.docCollections[CollectionSpaces] = true
	db.docCollections[CollectionTypes] = true
	db.docCollections[aql.FromSpace("common").Name] = true
	db.docCollections[aql.FromSpace("extra").Name] = true
	db.edgeCollections["https-example-org-affiliation"] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		switch {
		case strings.Contains(query, "RETURN { space: doc.`kg/space` }"):
			switch bindVars["@collection"] {
			case aql.FromSpace("common").Name:
				return []types.Document{{"space": "common"}}, nil
			case aql.FromSpace("extra").Name:
				return []types.Document{{"space": "extra"}}, nil
			}
			return nil, nil
		case bindVars["@collection"] == CollectionSpaces:
			return []types.Document{{"schema/name": "common"}}, nil
		case bindVars["identifier"] == "https://example.org/Person":
			return []types.Document{{
				"schema/identifier": "https://example.org/Person",
				"schema/name":       "Person",
				"kg/labelProperty":  "https://example.org/name",
			}}, nil
		case strings.Contains(query, "COLLECT typeName"):
			if strings.Contains(query, aql.FromSpace("common").AQL()) {
				return []types.Document{{"typeName": "https://example.org/Person", "occurrences": float64(2)}}, nil
			}
			return []types.Document{{"typeName": "https://example.org/Person", "occurrences": float64(1)}}, nil
		case strings.Contains(query, "COLLECT property"):
			return []types.Document{
				{"property": "https://example.org/name", "occurrences": float64(2)},
				{"property": "https://example.org/affiliation", "occurrences": float64(1)},
				{"property": "@id", "occurrences": float64(2)},
			}, nil
		case strings.Contains(query, "COLLECT targetType"):
			return []types.Document{
				{"targetType": "https://example.org/Organization", "targetSpace": "common", "occurrences": float64(1)},
			}, nil
		}
		return nil, nil
	}
	return db
}

func TestMetaDataControllerAggregatesAcrossSpaces(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	result, err := controller.ReadMetaDataStructure(context.Background(), ReadOptions{
		Stage:          types.StageInProgress,
		WithProperties: true,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)

	person := result[0]
	assert.Equal(t, "https://example.org/Person", person.Identifier)
	assert.Equal(t, "Person", person.Name)
	assert.Equal(t, "https://example.org/name", person.LabelProperty)
	assert.Equal(t, int64(3), person.Occurrences)
	require.Len(t, person.Spaces, 2)

	// Reserved keys are not reported as properties.
	require.Len(t, person.Properties, 2)
	assert.Equal(t, "https://example.org/affiliation", person.Properties[0].Identifier)
	assert.Equal(t, int64(2), person.Properties[0].Occurrences)
	assert.Equal(t, "https://example.org/name", person.Properties[1].Identifier)
	assert.Equal(t, int64(4), person.Properties[1].Occurrences)

	// Link targets aggregate per space.
	targets := person.Properties[0].TargetTypes
	require.Len(t, targets, 1)
	assert.Equal(t, "https://example.org/Organization", targets[0].Type)
	assert.Equal(t, int64(2), targets[0].Occurrences)
}

func TestMetaDataControllerIncomingLinks(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	result, err := controller.ReadMetaDataStructure(context.Background(), ReadOptions{
		Stage:             types.StageInProgress,
		WithIncomingLinks: true,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)

	// Organization is not a readable type here, so incoming links only
	// attach to the types present in the result. Person receives none.
	assert.Empty(t, result[0].IncomingLinks)
	// Without the properties flag the property payload is stripped.
	assert.Nil(t, result[0].Properties)
}

func TestMetaDataControllerSpaceRestriction(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	result, err := controller.ReadMetaDataStructure(context.Background(), ReadOptions{
		Stage:            types.StageInProgress,
		WithProperties:   true,
		SpaceRestriction: "extra",
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0].Occurrences)
	assert.Nil(t, result[0].Spaces)

	result, err = controller.ReadMetaDataStructure(context.Background(), ReadOptions{
		Stage:            types.StageInProgress,
		SpaceRestriction: "unknown",
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestMetaDataControllerPrivateSpaceMasking(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	result, err := controller.ReadMetaDataStructure(context.Background(), ReadOptions{
		Stage:        types.StageInProgress,
		PrivateSpace: "extra",
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	var spaceNames []string
	for _, space := range result[0].Spaces {
		spaceNames = append(spaceNames, space.Space)
	}
	assert.ElementsMatch(t, []string{"common", "myspace"}, spaceNames)
}

func TestMetaDataControllerSpaces(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	spaces, err := controller.Spaces(context.Background(), SpacesOptions{
		Stage:              types.StageInProgress,
		IncludeReviewSpace: true,
	})
	require.NoError(t, err)
	require.Len(t, spaces, 3)
	assert.Equal(t, types.SpaceName("common"), spaces[0].Name)
	assert.True(t, spaces[0].ExistsInDB)
	assert.False(t, spaces[0].Reflected)
	assert.Equal(t, types.SpaceName("extra"), spaces[1].Name)
	assert.True(t, spaces[1].Reflected)
	assert.Equal(t, types.SpaceName("review"), spaces[2].Name)
}

func TestMetaDataControllerSpacesWhitelist(t *testing.T) {
	repo := newTestRepository(t, metadataFakeDatabase())
	controller := newMetaDataController(t, repo)

	spaces, err := controller.Spaces(context.Background(), SpacesOptions{
		Stage:     types.StageInProgress,
		Whitelist: []types.SpaceName{"ex*"},
	})
	require.NoError(t, err)
	require.Len(t, spaces, 1)
	assert.Equal(t, types.SpaceName("extra"), spaces[0].Name)
}
