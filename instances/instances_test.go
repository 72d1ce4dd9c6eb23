package instances

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/query"
	"github.com/c360/kgraph/structure"
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

// store registers an instance document in its space collection.
func (f *fakeDatabase) store(space types.SpaceName, id uuid.UUID, doc types.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCollections[aql.FromSpace(space).Name] = true
	f.documents[aql.NewDocumentReference(space, id).ID()] = doc
}

// grantEngine is a permissions.Engine with explicitly scripted grants.
type grantEngine struct {
	global   map[permissions.Functionality]bool
	space    map[types.SpaceName]map[permissions.Functionality]bool
	instance map[types.InstanceID]map[permissions.Functionality]bool
}

func newGrantEngine() *grantEngine {
	return &grantEngine{
		global:   map[permissions.Functionality]bool{},
		space:    map[types.SpaceName]map[permissions.Functionality]bool{},
		instance: map[types.InstanceID]map[permissions.Functionality]bool{},
	}
}

// globalEngine grants everything everywhere.
func globalEngine() *grantEngine {
	e := newGrantEngine()
	for _, f := range []permissions.Functionality{
		permissions.FuncRead,
		permissions.FuncReadReleased,
		permissions.FuncMinimalRead,
		permissions.FuncReleaseStatus,
		permissions.FuncSuggest,
	} {
		e.global[f] = true
	}
	return e
}

func (e *grantEngine) grantSpace(space types.SpaceName, fs ...permissions.Functionality) *grantEngine {
	if e.space[space] == nil {
		e.space[space] = map[permissions.Functionality]bool{}
	}
	for _, f := range fs {
		e.space[space][f] = true
	}
	return e
}

func (e *grantEngine) grantInstance(id types.InstanceID, fs ...permissions.Functionality) *grantEngine {
	if e.instance[id] == nil {
		e.instance[id] = map[permissions.Functionality]bool{}
	}
	for _, f := range fs {
		e.instance[id][f] = true
	}
	return e
}

func (e *grantEngine) HasGlobalPermission(f permissions.Functionality) bool {
	return e.global[f]
}

func (e *grantEngine) HasSpacePermission(f permissions.Functionality, space types.SpaceName) bool {
	return e.space[space][f]
}

func (e *grantEngine) HasInstancePermission(f permissions.Functionality, space types.SpaceName, id uuid.UUID) bool {
	return e.instance[types.NewInstanceID(space, id)][f]
}

func (e *grantEngine) SpacesWithPermission(f permissions.Functionality) []types.SpaceName {
	var out []types.SpaceName
	for space, fs := range e.space {
		if fs[f] {
			out = append(out, space)
		}
	}
	return out
}

func (e *grantEngine) InstancesWithPermission(f permissions.Functionality) []types.InstanceID {
	var out []types.InstanceID
	for id, fs := range e.instance {
		if fs[f] {
			out = append(out, id)
		}
	}
	return out
}

// fakeUsers serves profiles from a fixed map.
type fakeUsers struct {
	profiles map[uuid.UUID]types.ReducedUserInfo
}

func (f fakeUsers) Profiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]types.ReducedUserInfo, error) {
	out := map[uuid.UUID]types.ReducedUserInfo{}
	for _, id := range ids {
		if profile, ok := f.profiles[id]; ok {
			out[id] = profile
		}
	}
	return out, nil
}

// fakeQueries serves declared queries and their results from fixed maps.
type fakeQueries struct {
	declared map[string][]query.DeclaredQuery
	results  map[uuid.UUID][]types.Document
}

func (f fakeQueries) QueriesForType(_ context.Context, _ types.Stage, rootType string) ([]query.DeclaredQuery, error) {
	return f.declared[rootType], nil
}

func (f fakeQueries) Execute(_ context.Context, _ types.Stage, q query.DeclaredQuery, _ uuid.UUID) ([]types.Document, error) {
	return f.results[q.ID], nil
}

func newTestDeps(t *testing.T, db *fakeDatabase, engine permissions.Engine) Dependencies {
	t.Helper()
	databases, err := graphdb.NewDatabases(db, db, db)
	require.NoError(t, err)
	repo, err := structure.NewRepository(structure.Dependencies{Databases: databases})
	require.NoError(t, err)
	perms, err := permissions.NewController(engine, nil)
	require.NoError(t, err)
	return Dependencies{
		Databases:   databases,
		Structure:   repo,
		Permissions: perms,
	}
}

const iriPrefix = "https://kg.example.org/instances/"

// instanceDoc builds a stored instance document the way the store shapes it.
func instanceDoc(space types.SpaceName, id uuid.UUID, label string, typeNames ...string) types.Document {
	typeList := make([]any, 0, len(typeNames))
	for _, name := range typeNames {
		typeList = append(typeList, name)
	}
	return types.Document{
		"@id":      iriPrefix + id.String(),
		"@type":    typeList,
		"_key":     id.String(),
		"_id":      aql.NewDocumentReference(space, id).ID(),
		"_rev":     "rev-1",
		"_label":   label,
		"kg/space": string(space),
	}
}
