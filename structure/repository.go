package structure

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/metric"
	"github.com/c360/kgraph/pkg/cache"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// TypeWithInstanceCount is a reflected type and how many instances carry it.
type TypeWithInstanceCount struct {
	Name        string `json:"typeName"`
	Occurrences int64  `json:"occurrences"`
}

// PropertyWithInstanceCount is a reflected property and how many instances
// carry it.
type PropertyWithInstanceCount struct {
	Name        string `json:"property"`
	Occurrences int64  `json:"occurrences"`
}

// TargetTypeReflection counts actual links from a (space, type, property)
// triple into a target type per target space.
type TargetTypeReflection struct {
	Type        string          `json:"targetType"`
	Space       types.SpaceName `json:"targetSpace"`
	Occurrences int64           `json:"occurrences"`
}

// CacheConfig bounds the reflection caches. Specification caches are
// unbounded; their cardinality is the size of the curated catalog.
type CacheConfig struct {
	ReflectionCacheSize int `yaml:"reflectionCacheSize"`
}

// DefaultCacheConfig returns the default cache bounds.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{ReflectionCacheSize: 50000}
}

// Dependencies wires a Repository.
type Dependencies struct {
	Databases *graphdb.Databases
	Logger    *slog.Logger
	Metrics   *metric.MetricsRegistry
	Cache     CacheConfig
}

// Repository answers structural questions about the graph: which spaces,
// types and properties exist per stage (reflection) and what the curated
// specification documents declare about them. Every read is memoized; the
// cache controller evicts entries when writes change the answers.
type Repository struct {
	databases *graphdb.Databases
	logger    *slog.Logger
	metrics   *metric.Metrics

	reflectedSpaces    cache.Cache[[]types.SpaceName]
	spaceSpecs         cache.Cache[[]types.Document]
	typesInSpaceSpec   cache.Cache[[]string]
	typeSpec           cache.Cache[types.Document]
	clientTypeSpec     cache.Cache[types.Document]
	propertySpec       cache.Cache[types.Document]
	clientPropertySpec cache.Cache[types.Document]
	propsOfTypeSpec    cache.Cache[[]types.Document]
	clientPropsOfType  cache.Cache[[]types.Document]
	reflectedTypes     cache.Cache[[]TypeWithInstanceCount]
	reflectedProps     cache.Cache[[]PropertyWithInstanceCount]
	reflectedTargets   cache.Cache[[]TargetTypeReflection]
}

// NewRepository builds the repository and its caches.
func NewRepository(deps Dependencies) (*Repository, error) {
	if deps.Databases == nil {
		return nil, errors.WrapInvalid(nil, "structure", "NewRepository", "databases are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache.ReflectionCacheSize <= 0 {
		deps.Cache.ReflectionCacheSize = DefaultCacheConfig().ReflectionCacheSize
	}

	r := &Repository{
		databases: deps.Databases,
		logger:    deps.Logger.With("component", "structure"),
	}
	if deps.Metrics != nil {
		r.metrics = deps.Metrics.CoreMetrics()
	}

	simpleCaches := []struct {
		target any
		name   string
	}{
		{&r.reflectedSpaces, "reflectedSpaces"},
		{&r.spaceSpecs, "spaceSpecifications"},
		{&r.typesInSpaceSpec, "typesInSpaceSpecification"},
		{&r.typeSpec, "typeSpecification"},
		{&r.clientTypeSpec, "clientTypeSpecification"},
		{&r.propertySpec, "propertySpecification"},
		{&r.clientPropertySpec, "clientPropertySpecification"},
		{&r.propsOfTypeSpec, "propertiesOfTypeSpecification"},
		{&r.clientPropsOfType, "clientPropertiesOfTypeSpecification"},
	}
	for _, sc := range simpleCaches {
		if err := assignSimpleCache(sc.target, deps.Metrics, sc.name); err != nil {
			return nil, err
		}
	}

	var err error
	if r.reflectedTypes, err = cache.NewLRU[[]TypeWithInstanceCount](deps.Cache.ReflectionCacheSize,
		cache.WithMetrics[[]TypeWithInstanceCount](deps.Metrics, "reflectedTypes")); err != nil {
		return nil, err
	}
	if r.reflectedProps, err = cache.NewLRU[[]PropertyWithInstanceCount](deps.Cache.ReflectionCacheSize,
		cache.WithMetrics[[]PropertyWithInstanceCount](deps.Metrics, "reflectedProperties")); err != nil {
		return nil, err
	}
	if r.reflectedTargets, err = cache.NewLRU[[]TargetTypeReflection](deps.Cache.ReflectionCacheSize,
		cache.WithMetrics[[]TargetTypeReflection](deps.Metrics, "reflectedTargetTypes")); err != nil {
		return nil, err
	}
	return r, nil
}

func assignSimpleCache(target any, metrics *metric.MetricsRegistry, name string) error {
	switch t := target.(type) {
	case *cache.Cache[[]types.SpaceName]:
		c, err := cache.NewSimple[[]types.SpaceName](cache.WithMetrics[[]types.SpaceName](metrics, name))
		*t = c
		return err
	case *cache.Cache[[]types.Document]:
		c, err := cache.NewSimple[[]types.Document](cache.WithMetrics[[]types.Document](metrics, name))
		*t = c
		return err
	case *cache.Cache[types.Document]:
		c, err := cache.NewSimple[types.Document](cache.WithMetrics[types.Document](metrics, name))
		*t = c
		return err
	case *cache.Cache[[]string]:
		c, err := cache.NewSimple[[]string](cache.WithMetrics[[]string](metrics, name))
		*t = c
		return err
	default:
		return errors.WrapInvalid(nil, "structure", "assignSimpleCache", "unsupported cache type")
	}
}

// specDB returns the database holding the specification collections. The
// curated catalog lives alongside the editable stage.
func (r *Repository) specDB() (graphdb.Database, error) {
	return r.databases.ByStage(types.StageInProgress)
}

// ReflectedSpaces lists the spaces that actually hold documents at a stage.
func (r *Repository) ReflectedSpaces(ctx context.Context, stage types.Stage) ([]types.SpaceName, error) {
	return cache.GetOrLoad(r.reflectedSpaces, string(stage), func() ([]types.SpaceName, error) {
		return r.loadReflectedSpaces(ctx, stage)
	})
}

// EvictReflectedSpaces drops the reflected space list of a stage.
func (r *Repository) EvictReflectedSpaces(stage types.Stage) {
	_, _ = r.reflectedSpaces.Delete(string(stage))
}

// RefreshReflectedSpaces recomputes the reflected space list of a stage.
func (r *Repository) RefreshReflectedSpaces(ctx context.Context, stage types.Stage) error {
	r.EvictReflectedSpaces(stage)
	_, err := r.ReflectedSpaces(ctx, stage)
	r.recordRefresh("reflectedSpaces")
	return err
}

func (r *Repository) loadReflectedSpaces(ctx context.Context, stage types.Stage) ([]types.SpaceName, error) {
	db, err := r.databases.ByStage(stage)
	if err != nil {
		return nil, err
	}
	collections, err := db.DocumentCollections(ctx)
	if err != nil {
		return nil, err
	}
	var spaces []types.SpaceName
	for _, coll := range collections {
		if isSpecCollection(coll) {
			continue
		}
		// The collection name encoding is lossy, so the space name is
		// read back from the documents themselves.
		q := aql.New()
		q.AddLine("FOR doc IN @@collection")
		q.Indent().AddLine("FILTER doc.`kg/space` != null")
		q.AddLine("LIMIT 1")
		q.AddLine("RETURN { space: doc.`kg/space` }")
		q.Bind("@collection", coll)
		docs, err := db.Query(ctx, q.String(), q.BindVars())
		if err != nil {
			return nil, err
		}
		if len(docs) == 1 {
			if name := docs[0].String("space"); name != "" {
				spaces = append(spaces, types.SpaceName(name))
			}
		}
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i] < spaces[j] })
	return spaces, nil
}

func isSpecCollection(name string) bool {
	switch name {
	case CollectionSpaces, CollectionTypes, CollectionProperties,
		CollectionTypeInSpace, CollectionPropertyInType:
		return true
	}
	return strings.HasSuffix(name, "_"+CollectionTypes) ||
		strings.HasSuffix(name, "_"+CollectionProperties) ||
		strings.HasSuffix(name, "_"+CollectionPropertyInType)
}

// SpaceSpecifications returns all space specification documents.
func (r *Repository) SpaceSpecifications(ctx context.Context) ([]types.Document, error) {
	return cache.GetOrLoad(r.spaceSpecs, "all", func() ([]types.Document, error) {
		return r.queryAll(ctx, CollectionSpaces)
	})
}

// EvictSpaceSpecifications drops the cached space specifications.
func (r *Repository) EvictSpaceSpecifications() {
	_, _ = r.spaceSpecs.Delete("all")
}

// RefreshSpaceSpecifications recomputes the cached space specifications.
func (r *Repository) RefreshSpaceSpecifications(ctx context.Context) error {
	r.EvictSpaceSpecifications()
	_, err := r.SpaceSpecifications(ctx)
	r.recordRefresh("spaceSpecifications")
	return err
}

// Spaces returns the declared spaces as typed values.
func (r *Repository) Spaces(ctx context.Context) ([]types.Space, error) {
	docs, err := r.SpaceSpecifications(ctx)
	if err != nil {
		return nil, err
	}
	spaces := make([]types.Space, 0, len(docs))
	for _, doc := range docs {
		spaces = append(spaces, types.Space{
			Name:          types.SpaceName(doc.String(vocabulary.SchemaName)),
			AutoRelease:   doc.Bool(vocabulary.MetaAutoRelease),
			ClientSpace:   doc.Bool(vocabulary.MetaClientSpace),
			DeferCache:    doc.Bool(vocabulary.MetaDeferCache),
			ScopeRelevant: doc.Bool(vocabulary.MetaScopeRelevant),
		})
	}
	return spaces, nil
}

// TypesInSpaceBySpecification lists the type identifiers declared for a
// space.
func (r *Repository) TypesInSpaceBySpecification(ctx context.Context, space types.SpaceName) ([]string, error) {
	return cache.GetOrLoad(r.typesInSpaceSpec, string(space), func() ([]string, error) {
		db, err := r.specDB()
		if err != nil {
			return nil, err
		}
		exists, err := db.CollectionExists(ctx, CollectionTypeInSpace)
		if err != nil || !exists {
			return nil, err
		}
		q := aql.New()
		q.Addf("FOR space IN %s", aql.InternalCollection(CollectionSpaces, false).AQL())
		q.Indent().AddLine("FILTER space.`schema/name` == @space")
		q.Bind("space", string(space))
		q.Addf("FOR type IN 1..1 OUTBOUND space %s", aql.InternalCollection(CollectionTypeInSpace, true).AQL())
		q.Indent().AddLine("RETURN { identifier: type.`schema/identifier` }")
		docs, err := db.Query(ctx, q.String(), q.BindVars())
		if err != nil {
			return nil, err
		}
		var names []string
		for _, doc := range docs {
			if id := doc.String("identifier"); id != "" {
				names = append(names, id)
			}
		}
		return names, nil
	})
}

// EvictTypesInSpaceBySpecification drops the declared type list of a space.
func (r *Repository) EvictTypesInSpaceBySpecification(space types.SpaceName) {
	_, _ = r.typesInSpaceSpec.Delete(string(space))
}

// TypeSpecification returns the curated declaration of a type, or nil.
func (r *Repository) TypeSpecification(ctx context.Context, typeName string) (types.Document, error) {
	return cache.GetOrLoad(r.typeSpec, typeName, func() (types.Document, error) {
		return r.specByIdentifier(ctx, CollectionTypes, typeName)
	})
}

// EvictTypeSpecification drops the cached declaration of a type.
func (r *Repository) EvictTypeSpecification(typeName string) {
	_, _ = r.typeSpec.Delete(typeName)
}

// ClientTypeSpecification returns a client's overlay declaration of a type,
// or nil.
func (r *Repository) ClientTypeSpecification(ctx context.Context, clientSpace types.SpaceName, typeName string) (types.Document, error) {
	key := string(clientSpace) + "|" + typeName
	return cache.GetOrLoad(r.clientTypeSpec, key, func() (types.Document, error) {
		return r.specByIdentifier(ctx, clientCollection(clientSpace, CollectionTypes), typeName)
	})
}

// EvictClientTypeSpecification drops a client's overlay declaration of a
// type.
func (r *Repository) EvictClientTypeSpecification(clientSpace types.SpaceName, typeName string) {
	_, _ = r.clientTypeSpec.Delete(string(clientSpace) + "|" + typeName)
}

// PropertySpecification returns the curated declaration of a property, or
// nil.
func (r *Repository) PropertySpecification(ctx context.Context, property string) (types.Document, error) {
	return cache.GetOrLoad(r.propertySpec, property, func() (types.Document, error) {
		return r.specByIdentifier(ctx, CollectionProperties, property)
	})
}

// EvictPropertySpecification drops the cached declaration of a property.
func (r *Repository) EvictPropertySpecification(property string) {
	_, _ = r.propertySpec.Delete(property)
}

// ClientPropertySpecification returns a client's overlay declaration of a
// property, or nil.
func (r *Repository) ClientPropertySpecification(ctx context.Context, clientSpace types.SpaceName, property string) (types.Document, error) {
	key := string(clientSpace) + "|" + property
	return cache.GetOrLoad(r.clientPropertySpec, key, func() (types.Document, error) {
		return r.specByIdentifier(ctx, clientCollection(clientSpace, CollectionProperties), property)
	})
}

// EvictClientPropertySpecification drops a client's overlay declaration of a
// property.
func (r *Repository) EvictClientPropertySpecification(clientSpace types.SpaceName, property string) {
	_, _ = r.clientPropertySpec.Delete(string(clientSpace) + "|" + property)
}

// PropertiesOfTypeBySpecification returns the declared properties of a type,
// each merged with its in-type overrides.
func (r *Repository) PropertiesOfTypeBySpecification(ctx context.Context, typeName string) ([]types.Document, error) {
	return cache.GetOrLoad(r.propsOfTypeSpec, typeName, func() ([]types.Document, error) {
		return r.propertiesOfType(ctx, CollectionTypes, CollectionPropertyInType, typeName)
	})
}

// EvictPropertiesOfTypeBySpecification drops the declared property list of a
// type.
func (r *Repository) EvictPropertiesOfTypeBySpecification(typeName string) {
	_, _ = r.propsOfTypeSpec.Delete(typeName)
}

// ClientPropertiesOfTypeBySpecification returns a client's overlay property
// declarations of a type.
func (r *Repository) ClientPropertiesOfTypeBySpecification(ctx context.Context, clientSpace types.SpaceName, typeName string) ([]types.Document, error) {
	key := string(clientSpace) + "|" + typeName
	return cache.GetOrLoad(r.clientPropsOfType, key, func() ([]types.Document, error) {
		return r.propertiesOfType(ctx, clientCollection(clientSpace, CollectionTypes), clientCollection(clientSpace, CollectionPropertyInType), typeName)
	})
}

// EvictClientPropertiesOfTypeBySpecification drops a client's overlay
// property list of a type.
func (r *Repository) EvictClientPropertiesOfTypeBySpecification(clientSpace types.SpaceName, typeName string) {
	_, _ = r.clientPropsOfType.Delete(string(clientSpace) + "|" + typeName)
}

// ReflectedTypesInSpace counts the instances per type within a space.
func (r *Repository) ReflectedTypesInSpace(ctx context.Context, stage types.Stage, space types.SpaceName) ([]TypeWithInstanceCount, error) {
	key := string(stage) + "|" + string(space)
	return cache.GetOrLoad(r.reflectedTypes, key, func() ([]TypeWithInstanceCount, error) {
		return r.loadReflectedTypes(ctx, stage, space)
	})
}

// EvictReflectedTypesInSpace drops the reflected type counts of a space.
func (r *Repository) EvictReflectedTypesInSpace(stage types.Stage, space types.SpaceName) {
	_, _ = r.reflectedTypes.Delete(string(stage) + "|" + string(space))
}

// RefreshReflectedTypesInSpace recomputes the reflected type counts of a
// space.
func (r *Repository) RefreshReflectedTypesInSpace(ctx context.Context, stage types.Stage, space types.SpaceName) error {
	r.EvictReflectedTypesInSpace(stage, space)
	_, err := r.ReflectedTypesInSpace(ctx, stage, space)
	r.recordRefresh("reflectedTypes")
	return err
}

func (r *Repository) loadReflectedTypes(ctx context.Context, stage types.Stage, space types.SpaceName) ([]TypeWithInstanceCount, error) {
	db, err := r.databases.ByStage(stage)
	if err != nil {
		return nil, err
	}
	coll := aql.FromSpace(space)
	exists, err := db.CollectionExists(ctx, coll.Name)
	if err != nil || !exists {
		return nil, err
	}
	q := aql.New()
	q.Addf("FOR doc IN %s", coll.AQL())
	q.Indent().AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	q.AddLine("FOR t IN TO_ARRAY(doc.`@type`)")
	q.Indent().AddLine("COLLECT typeName = t WITH COUNT INTO occurrences")
	q.AddLine("RETURN { typeName, occurrences }")
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	if err != nil {
		return nil, err
	}
	counts := make([]TypeWithInstanceCount, 0, len(docs))
	for _, doc := range docs {
		counts = append(counts, TypeWithInstanceCount{
			Name:        doc.String("typeName"),
			Occurrences: asInt64(doc["occurrences"]),
		})
	}
	return counts, nil
}

// ReflectedPropertiesOfTypeInSpace counts the properties carried by
// instances of a type within a space.
func (r *Repository) ReflectedPropertiesOfTypeInSpace(ctx context.Context, stage types.Stage, space types.SpaceName, typeName string) ([]PropertyWithInstanceCount, error) {
	key := fmt.Sprintf("%s|%s|%s", stage, space, typeName)
	return cache.GetOrLoad(r.reflectedProps, key, func() ([]PropertyWithInstanceCount, error) {
		return r.loadReflectedProperties(ctx, stage, space, typeName)
	})
}

// EvictReflectedPropertiesOfTypeInSpace drops the reflected property counts
// of a (space, type) pair.
func (r *Repository) EvictReflectedPropertiesOfTypeInSpace(stage types.Stage, space types.SpaceName, typeName string) {
	_, _ = r.reflectedProps.Delete(fmt.Sprintf("%s|%s|%s", stage, space, typeName))
}

// RefreshReflectedPropertiesOfTypeInSpace recomputes the reflected property
// counts of a (space, type) pair.
func (r *Repository) RefreshReflectedPropertiesOfTypeInSpace(ctx context.Context, stage types.Stage, space types.SpaceName, typeName string) error {
	r.EvictReflectedPropertiesOfTypeInSpace(stage, space, typeName)
	_, err := r.ReflectedPropertiesOfTypeInSpace(ctx, stage, space, typeName)
	r.recordRefresh("reflectedProperties")
	return err
}

func (r *Repository) loadReflectedProperties(ctx context.Context, stage types.Stage, space types.SpaceName, typeName string) ([]PropertyWithInstanceCount, error) {
	db, err := r.databases.ByStage(stage)
	if err != nil {
		return nil, err
	}
	coll := aql.FromSpace(space)
	exists, err := db.CollectionExists(ctx, coll.Name)
	if err != nil || !exists {
		return nil, err
	}
	q := aql.New()
	q.Addf("FOR doc IN %s", coll.AQL())
	q.Indent().AddLine("FILTER @typeName IN TO_ARRAY(doc.`@type`)")
	q.Bind("typeName", typeName)
	q.AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	q.AddLine("FOR att IN ATTRIBUTES(doc, true)")
	q.Indent().AddLine("COLLECT property = att WITH COUNT INTO occurrences")
	q.AddLine("RETURN { property, occurrences }")
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	if err != nil {
		return nil, err
	}
	counts := make([]PropertyWithInstanceCount, 0, len(docs))
	for _, doc := range docs {
		name := doc.String("property")
		if name == "" || vocabulary.IsReservedKey(name) {
			continue
		}
		counts = append(counts, PropertyWithInstanceCount{
			Name:        name,
			Occurrences: asInt64(doc["occurrences"]),
		})
	}
	return counts, nil
}

// ReflectedTargetTypes counts the actual link targets of a (space, type,
// property) triple, grouped by target type and target space.
func (r *Repository) ReflectedTargetTypes(ctx context.Context, stage types.Stage, space types.SpaceName, typeName, property string) ([]TargetTypeReflection, error) {
	key := fmt.Sprintf("%s|%s|%s|%s", stage, space, typeName, property)
	return cache.GetOrLoad(r.reflectedTargets, key, func() ([]TargetTypeReflection, error) {
		return r.loadReflectedTargetTypes(ctx, stage, space, typeName, property)
	})
}

// EvictReflectedTargetTypes drops the reflected target types of a (space,
// type, property) triple.
func (r *Repository) EvictReflectedTargetTypes(stage types.Stage, space types.SpaceName, typeName, property string) {
	_, _ = r.reflectedTargets.Delete(fmt.Sprintf("%s|%s|%s|%s", stage, space, typeName, property))
}

// RefreshReflectedTargetTypes recomputes the reflected target types of a
// (space, type, property) triple.
func (r *Repository) RefreshReflectedTargetTypes(ctx context.Context, stage types.Stage, space types.SpaceName, typeName, property string) error {
	r.EvictReflectedTargetTypes(stage, space, typeName, property)
	_, err := r.ReflectedTargetTypes(ctx, stage, space, typeName, property)
	r.recordRefresh("reflectedTargetTypes")
	return err
}

func (r *Repository) loadReflectedTargetTypes(ctx context.Context, stage types.Stage, space types.SpaceName, typeName, property string) ([]TargetTypeReflection, error) {
	db, err := r.databases.ByStage(stage)
	if err != nil {
		return nil, err
	}
	spaceColl := aql.FromSpace(space)
	edgeColl := aql.FromProperty(property)
	for _, name := range []string{spaceColl.Name, edgeColl.Name} {
		exists, err := db.CollectionExists(ctx, name)
		if err != nil || !exists {
			return nil, err
		}
	}
	q := aql.New()
	q.Addf("FOR doc IN %s", spaceColl.AQL())
	q.Indent().AddLine("FILTER @typeName IN TO_ARRAY(doc.`@type`)")
	q.Bind("typeName", typeName)
	q.Addf("FOR target IN 1..1 OUTBOUND doc %s", edgeColl.AQL())
	q.Indent().AddLine("FILTER target.`_embedded` != true")
	q.AddLine("FOR t IN TO_ARRAY(target.`@type`)")
	q.Indent().AddLine("COLLECT targetType = t, targetSpace = target.`kg/space` WITH COUNT INTO occurrences")
	q.AddLine("RETURN { targetType, targetSpace, occurrences }")
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	if err != nil {
		return nil, err
	}
	targets := make([]TargetTypeReflection, 0, len(docs))
	for _, doc := range docs {
		targets = append(targets, TargetTypeReflection{
			Type:        doc.String("targetType"),
			Space:       types.SpaceName(doc.String("targetSpace")),
			Occurrences: asInt64(doc["occurrences"]),
		})
	}
	return targets, nil
}

// RelevantEdgeCollections lists the edge collections representing
// user-declared links at a stage.
func (r *Repository) RelevantEdgeCollections(ctx context.Context, stage types.Stage) ([]aql.CollectionReference, error) {
	db, err := r.databases.ByStage(stage)
	if err != nil {
		return nil, err
	}
	names, err := db.EdgeCollections(ctx)
	if err != nil {
		return nil, err
	}
	var refs []aql.CollectionReference
	for _, name := range names {
		if IsRelevantEdgeCollection(name) {
			refs = append(refs, aql.InternalCollection(name, true))
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (r *Repository) queryAll(ctx context.Context, collection string) ([]types.Document, error) {
	db, err := r.specDB()
	if err != nil {
		return nil, err
	}
	exists, err := db.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return nil, err
	}
	q := aql.New()
	q.AddLine("FOR doc IN @@collection")
	q.Indent().AddLine("RETURN doc")
	q.Bind("@collection", collection)
	return db.Query(ctx, q.String(), q.BindVars())
}

func (r *Repository) specByIdentifier(ctx context.Context, collection, identifier string) (types.Document, error) {
	db, err := r.specDB()
	if err != nil {
		return nil, err
	}
	exists, err := db.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return nil, err
	}
	q := aql.New()
	q.AddLine("FOR doc IN @@collection")
	q.Indent().AddLine("FILTER doc.`schema/identifier` == @identifier")
	q.AddLine("RETURN doc")
	q.Bind("@collection", collection)
	q.Bind("identifier", identifier)
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	if err != nil {
		return nil, err
	}
	return singleResult(docs, collection+"/"+identifier)
}

func (r *Repository) propertiesOfType(ctx context.Context, typeColl, edgeColl, typeName string) ([]types.Document, error) {
	db, err := r.specDB()
	if err != nil {
		return nil, err
	}
	for _, name := range []string{typeColl, edgeColl} {
		exists, err := db.CollectionExists(ctx, name)
		if err != nil || !exists {
			return nil, err
		}
	}
	q := aql.New()
	q.Addf("FOR type IN %s", aql.InternalCollection(typeColl, false).AQL())
	q.Indent().AddLine("FILTER type.`schema/identifier` == @typeName")
	q.Bind("typeName", typeName)
	q.Addf("FOR property, link IN 1..1 OUTBOUND type %s", aql.InternalCollection(edgeColl, true).AQL())
	q.Indent().AddLine("RETURN MERGE(UNSET(link, '_key', '_id', '_rev', '_from', '_to'), KEEP(property, 'schema/identifier'))")
	return db.Query(ctx, q.String(), q.BindVars())
}

func singleResult(docs []types.Document, what string) (types.Document, error) {
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return nil, errors.Ambiguous("structure", "singleResult", "multiple specifications for "+what)
	}
}

func (r *Repository) recordRefresh(cacheName string) {
	if r.metrics != nil {
		r.metrics.RecordStructureRefresh(cacheName)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
