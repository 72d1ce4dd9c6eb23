package instances

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/structure"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// queryMode is the retrieval strategy for a by-type read, resolved once per
// request.
type queryMode int

const (
	// modeEmpty short-circuits to an empty result: no candidate space.
	modeEmpty queryMode = iota
	// modeByID short-circuits to a direct lookup: the search term is an id.
	modeByID
	// modeSimple scans a single space collection. Only valid when no
	// per-instance grants could make visibility diverge within the space.
	modeSimple
	// modeDynamic traverses from the type definition node through the
	// type-membership edges, with the permission whitelist pushed down.
	modeDynamic
)

// Documents is the single entry point for instance retrieval.
type Documents struct {
	base
	resolver *Resolver
	incoming *IncomingLinks
}

// NewDocuments wires the documents repository.
func NewDocuments(deps Dependencies) (*Documents, error) {
	if err := deps.validate("documents"); err != nil {
		return nil, err
	}
	resolver, err := NewResolver(deps)
	if err != nil {
		return nil, err
	}
	incoming, err := NewIncomingLinks(deps)
	if err != nil {
		return nil, err
	}
	return &Documents{
		base:     newBase(deps, "documents"),
		resolver: resolver,
		incoming: incoming,
	}, nil
}

// GetOptions controls the post-processing of a single instance read.
type GetOptions struct {
	ReturnEmbedded        bool
	ReturnAlternatives    bool
	ReturnIncomingLinks   bool
	IncomingLinksPageSize int64
	RemoveInternal        bool
	PrivateSpace          types.SpaceName
}

// GetInstance fetches one instance. Callers without any read tier are
// rejected, absent instances yield (nil, nil), and callers holding only
// minimal read get the reduced field set no matter which flags they pass.
func (r *Documents) GetInstance(ctx context.Context, stage types.Stage, space types.SpaceName, id uuid.UUID, opts GetOptions) (types.Document, error) {
	decision := r.permissions.DecideAccess(stage, space, id)
	if decision == permissions.AccessNone {
		return nil, errors.Forbidden("documents", "GetInstance", "no read access to "+types.NewInstanceID(space, id).Serialize())
	}
	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	doc, err := db.GetDocument(ctx, aql.NewDocumentReference(space, id).ID())
	r.recordQuery(stage, "documents", started)
	if err != nil || doc == nil {
		return nil, err
	}
	r.recordDocuments(stage, 1)

	if decision == permissions.AccessFull {
		if err := r.resolver.HandleAlternativesAndEmbedded(ctx, []types.Document{doc}, stage, opts.ReturnAlternatives, opts.ReturnEmbedded); err != nil {
			return nil, err
		}
		if opts.ReturnIncomingLinks {
			ignore, err := r.ignoresIncomingLinks(ctx, doc)
			if err != nil {
				return nil, err
			}
			if !ignore {
				if err := r.incoming.AttachIncomingLinks(ctx, stage, doc, space, id, opts.IncomingLinksPageSize); err != nil {
					return nil, err
				}
			}
		}
	}
	exposeRevision([]types.Document{doc})
	if decision == permissions.AccessMinimal {
		if err := r.reduceToMinimalFields(ctx, doc); err != nil {
			return nil, err
		}
	}
	if opts.RemoveInternal {
		doc.RemoveInternalProperties()
	}
	maskSpace([]types.Document{doc}, opts.PrivateSpace)
	return doc, nil
}

// ignoresIncomingLinks reports whether any of the document's types opted out
// of incoming-link computation.
func (r *Documents) ignoresIncomingLinks(ctx context.Context, doc types.Document) (bool, error) {
	for _, typeName := range doc.Types() {
		spec, err := r.structure.TypeSpecification(ctx, typeName)
		if err != nil {
			return false, err
		}
		if spec != nil && spec.Bool(vocabulary.MetaIgnoreIncomingLinks) {
			return true, nil
		}
	}
	return false, nil
}

// TypeQueryOptions controls a by-type listing.
type TypeQueryOptions struct {
	Stage       types.Stage
	Type        string
	SpaceFilter types.SpaceName
	Search      string
	Pagination  types.Pagination
	SortByLabel bool

	ReturnEmbedded     bool
	ReturnAlternatives bool
	PrivateSpace       types.SpaceName
}

// GetDocumentsByTypes lists the instances of a type, permission filtered,
// searchable and paginated.
func (r *Documents) GetDocumentsByTypes(ctx context.Context, opts TypeQueryOptions) (types.Paginated[types.Document], error) {
	spaces, err := r.spacesWithType(ctx, opts.Stage, opts.Type, opts.SpaceFilter, opts.PrivateSpace)
	if err != nil {
		return types.Empty[types.Document](), err
	}

	mode := r.selectMode(opts, spaces)
	switch mode {
	case modeEmpty:
		return types.Empty[types.Document](), nil
	case modeByID:
		return r.queryByID(ctx, opts)
	case modeSimple:
		return r.querySimple(ctx, opts, spaces[0])
	default:
		return r.queryDynamic(ctx, opts, spaces)
	}
}

// selectMode picks the retrieval strategy. The tiers exist purely to avoid
// the type traversal when a cheaper plan is provably equivalent.
func (r *Documents) selectMode(opts TypeQueryOptions, spaces []types.SpaceName) queryMode {
	if _, ok := types.ParseInstanceID(opts.Search); ok {
		return modeByID
	}
	if len(spaces) == 0 {
		return modeEmpty
	}
	if len(spaces) == 1 && len(r.permissions.InstancesWithExplicitRead(opts.Stage)) == 0 {
		return modeSimple
	}
	return modeDynamic
}

// spacesWithType resolves the candidate spaces of a type: the readable
// spaces that actually hold instances of it, optionally narrowed by the
// space filter.
func (r *Documents) spacesWithType(ctx context.Context, stage types.Stage, typeName string, filter, privateSpace types.SpaceName) ([]types.SpaceName, error) {
	if filter == vocabulary.PrivateSpaceAlias && privateSpace != "" {
		filter = privateSpace
	}
	all, err := r.structure.ReflectedSpaces(ctx, stage)
	if err != nil {
		return nil, err
	}
	readable := r.permissions.FilterReadableSpaces(stage, all)
	var spaces []types.SpaceName
	for _, space := range readable {
		if filter != "" && space != filter {
			continue
		}
		reflected, err := r.structure.ReflectedTypesInSpace(ctx, stage, space)
		if err != nil {
			return nil, err
		}
		for _, t := range reflected {
			if t.Name == typeName {
				spaces = append(spaces, space)
				break
			}
		}
	}
	return spaces, nil
}

func (r *Documents) queryByID(ctx context.Context, opts TypeQueryOptions) (types.Paginated[types.Document], error) {
	id, _ := types.ParseInstanceID(opts.Search)
	doc, err := r.GetInstance(ctx, opts.Stage, id.Space, id.UUID, GetOptions{
		ReturnEmbedded:     opts.ReturnEmbedded,
		ReturnAlternatives: opts.ReturnAlternatives,
		PrivateSpace:       opts.PrivateSpace,
	})
	if err != nil {
		if errors.IsForbidden(err) {
			return types.Empty[types.Document](), nil
		}
		return types.Empty[types.Document](), err
	}
	if doc == nil || !containsString(doc.Types(), opts.Type) {
		return types.Empty[types.Document](), nil
	}
	return types.NewPaginated([]types.Document{doc}, 1, opts.Pagination), nil
}

func (r *Documents) querySimple(ctx context.Context, opts TypeQueryOptions, space types.SpaceName) (types.Paginated[types.Document], error) {
	q := aql.New()
	q.Addf("FOR doc IN %s", aql.FromSpace(space).AQL())
	q.Indent().AddLine("FILTER @typeName IN TO_ARRAY(doc.`@type`)")
	q.Bind("typeName", opts.Type)
	q.AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	return r.runTypeQuery(ctx, opts, q)
}

func (r *Documents) queryDynamic(ctx context.Context, opts TypeQueryOptions, spaces []types.SpaceName) (types.Paginated[types.Document], error) {
	q := aql.New()
	q.Addf("FOR type IN %s", aql.InternalCollection(structure.CollectionTypes, false).AQL())
	q.Indent().AddLine("FILTER type.`schema/identifier` == @typeName")
	q.Bind("typeName", opts.Type)
	q.Addf("FOR doc IN 1..1 INBOUND type %s", aql.InternalCollection(structure.EdgeTypeRelations, true).AQL())
	q.Indent().AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	q.AddLine("FILTER doc.`kg/space` IN @spaces")
	q.Bind("spaces", spaceNames(spaces))
	q.AddDocumentFilter("doc", r.permissions.ReadWhitelist(opts.Stage))
	return r.runTypeQuery(ctx, opts, q)
}

// runTypeQuery finishes a by-type query: search, sort, pagination, execution
// and post-processing.
func (r *Documents) runTypeQuery(ctx context.Context, opts TypeQueryOptions, q *aql.Query) (types.Paginated[types.Document], error) {
	properties, err := r.searchableProperties(ctx, opts.Type)
	if err != nil {
		return types.Empty[types.Document](), err
	}
	searchFilter(q, "doc", opts.Search, properties)
	if opts.SortByLabel {
		q.AddLine("SORT doc.`_label` ASC")
	}
	q.AddPagination(opts.Pagination)
	q.AddLine("RETURN doc")

	db, err := r.db(opts.Stage)
	if err != nil {
		return types.Empty[types.Document](), err
	}
	started := time.Now()
	docs, total, err := db.QueryWithTotal(ctx, q.String(), q.BindVars())
	r.recordQuery(opts.Stage, "documents", started)
	if err != nil {
		return types.Empty[types.Document](), err
	}
	r.recordDocuments(opts.Stage, len(docs))
	if err := r.postProcess(ctx, docs, opts.Stage, opts.ReturnAlternatives, opts.ReturnEmbedded, opts.PrivateSpace); err != nil {
		return types.Empty[types.Document](), err
	}
	return types.NewPaginated(docs, total, opts.Pagination), nil
}

// ListOptions controls the post-processing of bulk id reads.
type ListOptions struct {
	ReturnEmbedded     bool
	ReturnAlternatives bool
	PrivateSpace       types.SpaceName
}

// GetDocumentsByIDList fetches a list of instances by id. Every requested id
// appears exactly once in the result, in input order, as full payload,
// minimal payload, forbidden marker or not-found marker.
func (r *Documents) GetDocumentsByIDList(ctx context.Context, stage types.Stage, instanceIDs []types.InstanceID, opts ListOptions) ([]types.Result[types.Document], error) {
	decisions := make([]permissions.AccessDecision, len(instanceIDs))
	var readable []types.InstanceID
	for i, id := range instanceIDs {
		decisions[i] = r.permissions.DecideAccess(stage, id.Space, id.UUID)
		if decisions[i] != permissions.AccessNone {
			readable = append(readable, id)
		}
	}

	fetched, err := r.fetchBySpace(ctx, stage, readable)
	if err != nil {
		return nil, err
	}

	var fullDocs []types.Document
	for i, id := range instanceIDs {
		if decisions[i] == permissions.AccessFull {
			if doc, ok := fetched[id.UUID]; ok {
				fullDocs = append(fullDocs, doc)
			}
		}
	}
	if err := r.resolver.HandleAlternativesAndEmbedded(ctx, fullDocs, stage, opts.ReturnAlternatives, opts.ReturnEmbedded); err != nil {
		return nil, err
	}

	results := make([]types.Result[types.Document], 0, len(instanceIDs))
	for i, id := range instanceIDs {
		if decisions[i] == permissions.AccessNone {
			results = append(results, types.Forbidden[types.Document]("no read access to "+id.Serialize()))
			continue
		}
		doc, ok := fetched[id.UUID]
		if !ok {
			results = append(results, types.NotFound[types.Document](id.Serialize()+" does not exist"))
			continue
		}
		exposeRevision([]types.Document{doc})
		if decisions[i] == permissions.AccessMinimal {
			if err := r.reduceToMinimalFields(ctx, doc); err != nil {
				return nil, err
			}
		}
		maskSpace([]types.Document{doc}, opts.PrivateSpace)
		results = append(results, types.OK(doc))
	}
	return results, nil
}

// fetchBySpace bulk-fetches documents grouped per space collection.
func (r *Documents) fetchBySpace(ctx context.Context, stage types.Stage, instanceIDs []types.InstanceID) (map[uuid.UUID]types.Document, error) {
	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	bySpace := map[types.SpaceName][]string{}
	for _, id := range instanceIDs {
		bySpace[id.Space] = append(bySpace[id.Space], id.UUID.String())
	}
	fetched := map[uuid.UUID]types.Document{}
	for space, keys := range bySpace {
		coll := aql.FromSpace(space)
		exists, err := db.CollectionExists(ctx, coll.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		q := aql.New()
		q.Addf("FOR doc IN %s", coll.AQL())
		q.Indent().AddLine("FILTER doc.`_key` IN @keys")
		q.Bind("keys", keys)
		q.AddLine("RETURN doc")
		started := time.Now()
		docs, err := db.Query(ctx, q.String(), q.BindVars())
		r.recordQuery(stage, "documents", started)
		if err != nil {
			return nil, err
		}
		r.recordDocuments(stage, len(docs))
		for _, doc := range docs {
			if id, ok := doc.UUID(); ok {
				fetched[id] = doc
			}
		}
	}
	return fetched, nil
}

// GetDocumentsByIncomingRelation lists the documents pointing at an instance
// through one relation property.
func (r *Documents) GetDocumentsByIncomingRelation(ctx context.Context, stage types.Stage, space types.SpaceName, id uuid.UUID, relation string, pagination types.Pagination, opts ListOptions) (types.Paginated[types.Document], error) {
	if !r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
		return types.Empty[types.Document](), errors.Forbidden("documents", "GetDocumentsByIncomingRelation", "no read access to "+types.NewInstanceID(space, id).Serialize())
	}
	db, err := r.db(stage)
	if err != nil {
		return types.Empty[types.Document](), err
	}
	edge := aql.FromProperty(relation)
	exists, err := db.CollectionExists(ctx, edge.Name)
	if err != nil || !exists {
		return types.Empty[types.Document](), err
	}
	q := aql.New()
	q.Addf("FOR doc IN 1..1 INBOUND @instanceRef %s", edge.AQL())
	q.Bind("instanceRef", aql.NewDocumentReference(space, id).ID())
	q.Indent().AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	q.AddDocumentFilter("doc", r.permissions.ReadWhitelist(stage))
	q.AddPagination(pagination)
	q.AddLine("RETURN doc")
	started := time.Now()
	docs, total, err := db.QueryWithTotal(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "documents", started)
	if err != nil {
		return types.Empty[types.Document](), err
	}
	if err := r.postProcess(ctx, docs, stage, opts.ReturnAlternatives, opts.ReturnEmbedded, opts.PrivateSpace); err != nil {
		return types.Empty[types.Document](), err
	}
	return types.NewPaginated(docs, total, pagination), nil
}

// GetDocumentsBySharedIdentifiers lists the documents sharing at least one
// identifier with an instance, the instance itself excluded.
func (r *Documents) GetDocumentsBySharedIdentifiers(ctx context.Context, stage types.Stage, space types.SpaceName, id uuid.UUID, opts ListOptions) ([]types.Document, error) {
	if !r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
		return nil, errors.Forbidden("documents", "GetDocumentsBySharedIdentifiers", "no read access to "+types.NewInstanceID(space, id).Serialize())
	}
	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	doc, err := db.GetDocument(ctx, aql.NewDocumentReference(space, id).ID())
	if err != nil || doc == nil {
		return nil, err
	}
	identifiers := doc.AllIdentifiersIncludingID()
	if len(identifiers) == 0 {
		return nil, nil
	}

	all, err := r.structure.ReflectedSpaces(ctx, stage)
	if err != nil {
		return nil, err
	}
	var result []types.Document
	for _, candidate := range r.permissions.FilterReadableSpaces(stage, all) {
		docs, err := r.queryByIdentifiers(ctx, stage, candidate, identifiers)
		if err != nil {
			return nil, err
		}
		for _, match := range docs {
			if match.ID() == doc.ID() {
				continue
			}
			result = append(result, match)
		}
	}
	if err := r.postProcess(ctx, result, stage, opts.ReturnAlternatives, opts.ReturnEmbedded, opts.PrivateSpace); err != nil {
		return nil, err
	}
	return result, nil
}

// GetDocumentsByIdentifiers lists the documents of a space matching any of
// the given identifiers.
func (r *Documents) GetDocumentsByIdentifiers(ctx context.Context, stage types.Stage, space types.SpaceName, identifiers []string, opts ListOptions) ([]types.Document, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	docs, err := r.queryByIdentifiers(ctx, stage, space, identifiers)
	if err != nil {
		return nil, err
	}
	var readable []types.Document
	for _, doc := range docs {
		id, ok := doc.UUID()
		if !ok || !r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
			continue
		}
		readable = append(readable, doc)
	}
	if err := r.postProcess(ctx, readable, stage, opts.ReturnAlternatives, opts.ReturnEmbedded, opts.PrivateSpace); err != nil {
		return nil, err
	}
	return readable, nil
}

func (r *Documents) queryByIdentifiers(ctx context.Context, stage types.Stage, space types.SpaceName, identifiers []string) ([]types.Document, error) {
	db, err := r.db(stage)
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
	q.AddLine("FILTER doc.`@id` IN @identifiers OR LENGTH(INTERSECTION(TO_ARRAY(doc.`schema/identifier`), @identifiers)) > 0")
	q.Bind("identifiers", identifiers)
	q.AddLine("RETURN doc")
	started := time.Now()
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "documents", started)
	return docs, err
}

// GetDocumentIDsBySpace lists the ids of every document in a space.
func (r *Documents) GetDocumentIDsBySpace(ctx context.Context, stage types.Stage, space types.SpaceName) ([]string, error) {
	db, err := r.db(stage)
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
	q.AddLine("RETURN { id: doc.`@id` }")
	docs, err := db.Query(ctx, q.String(), q.BindVars())
	if err != nil {
		return nil, err
	}
	var result []string
	for _, doc := range docs {
		if id := doc.String("id"); id != "" {
			result = append(result, id)
		}
	}
	return result, nil
}

// GetInvitationDocuments fetches the instances the caller may read through a
// direct invitation grant rather than a space grant.
func (r *Documents) GetInvitationDocuments(ctx context.Context, stage types.Stage, opts ListOptions) ([]types.Document, error) {
	invited := r.permissions.InstancesWithExplicitRead(stage)
	if len(invited) == 0 {
		return nil, nil
	}
	results, err := r.GetDocumentsByIDList(ctx, stage, invited, opts)
	if err != nil {
		return nil, err
	}
	var docs []types.Document
	for _, res := range results {
		if res.Status == types.StatusOK {
			docs = append(docs, res.Data)
		}
	}
	return docs, nil
}

func (r *Documents) postProcess(ctx context.Context, docs []types.Document, stage types.Stage, alternatives, embedded bool, privateSpace types.SpaceName) error {
	if err := r.resolver.HandleAlternativesAndEmbedded(ctx, docs, stage, alternatives, embedded); err != nil {
		return err
	}
	exposeRevision(docs)
	maskSpace(docs, privateSpace)
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func spaceNames(spaces []types.SpaceName) []string {
	names := make([]string, 0, len(spaces))
	for _, space := range spaces {
		names = append(names, string(space))
	}
	return names
}
