package structure

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/metric"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/pkg/worker"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// MetaDataController assembles the metadata catalog: the cross-space view of
// every type, its properties and the links between types. It always
// aggregates over all readable spaces first and narrows to a requested space
// afterwards, so per-space views stay consistent with the global one.
type MetaDataController struct {
	repository  *Repository
	permissions *permissions.Controller
	logger      *slog.Logger
	metrics     *metric.MetricsRegistry
}

// ReadOptions controls a catalog read.
type ReadOptions struct {
	Stage             types.Stage
	WithProperties    bool
	WithIncomingLinks bool

	// SpaceRestriction narrows the result to a single space. The private
	// space alias is accepted.
	SpaceRestriction types.SpaceName
	// TypeRestriction narrows the result to the named types.
	TypeRestriction []string

	// ClientSpace selects the specification overlay of a client.
	ClientSpace types.SpaceName
	// PrivateSpace is the caller's private space, masked in all output.
	PrivateSpace types.SpaceName
}

// NewMetaDataController wires a metadata controller.
func NewMetaDataController(repository *Repository, perms *permissions.Controller, logger *slog.Logger, metrics *metric.MetricsRegistry) (*MetaDataController, error) {
	if repository == nil || perms == nil {
		return nil, errors.WrapInvalid(nil, "structure", "NewMetaDataController", "repository and permissions are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaDataController{
		repository:  repository,
		permissions: perms,
		logger:      logger.With("component", "metadata"),
		metrics:     metrics,
	}, nil
}

// ReadMetaDataStructure returns the type catalog at a stage.
func (m *MetaDataController) ReadMetaDataStructure(ctx context.Context, opts ReadOptions) ([]types.TypeInformation, error) {
	if !opts.Stage.Valid() {
		return nil, errors.WrapInvalid(nil, "structure", "ReadMetaDataStructure", "invalid stage")
	}
	spaces, err := m.readableSpaceNames(ctx, opts.Stage)
	if err != nil {
		return nil, err
	}
	relevantEdges, err := m.relevantEdgeSet(ctx, opts.Stage)
	if err != nil {
		return nil, err
	}

	needProperties := opts.WithProperties || opts.WithIncomingLinks
	restriction := typeRestrictionSet(opts.TypeRestriction)

	aggregate := map[string]*types.TypeInformation{}
	var order []string
	for _, space := range spaces {
		spaceTypes, err := m.readSpaceStructure(ctx, opts, space, needProperties, relevantEdges)
		if err != nil {
			return nil, err
		}
		for _, st := range spaceTypes {
			if restriction != nil && !restriction[st.typeName] {
				continue
			}
			info, ok := aggregate[st.typeName]
			if !ok {
				info = &types.TypeInformation{Identifier: st.typeName}
				if err := m.applyTypeSpecification(ctx, info, opts.ClientSpace); err != nil {
					return nil, err
				}
				aggregate[st.typeName] = info
				order = append(order, st.typeName)
			}
			info.Occurrences += st.info.Occurrences
			info.Spaces = append(info.Spaces, st.info)
		}
	}

	result := make([]types.TypeInformation, 0, len(order))
	for _, typeName := range order {
		info := aggregate[typeName]
		if needProperties {
			info.Properties = aggregateGlobalProperties(info.Spaces)
		}
		result = append(result, *info)
	}

	if opts.WithIncomingLinks {
		attachIncomingLinks(result)
	}
	if opts.SpaceRestriction != "" {
		restricted := opts.SpaceRestriction
		if restricted == vocabulary.PrivateSpaceAlias && opts.PrivateSpace != "" {
			restricted = opts.PrivateSpace
		}
		result = narrowToSpace(result, restricted)
	}
	if opts.WithIncomingLinks && !opts.WithProperties {
		for i := range result {
			result[i].Properties = nil
		}
	}
	maskPrivateSpace(result, opts.PrivateSpace)
	types.SortTypeInformation(result)
	return result, nil
}

type spaceTypeEntry struct {
	typeName string
	info     types.SpaceTypeInformation
}

// readSpaceStructure reflects one space: the types actually present with
// their counts, plus the declared-but-empty types of the space
// specification.
func (m *MetaDataController) readSpaceStructure(ctx context.Context, opts ReadOptions, space types.SpaceName, needProperties bool, relevantEdges map[string]bool) ([]spaceTypeEntry, error) {
	reflected, err := m.repository.ReflectedTypesInSpace(ctx, opts.Stage, space)
	if err != nil {
		return nil, err
	}
	declared, err := m.repository.TypesInSpaceBySpecification(ctx, space)
	if err != nil {
		return nil, err
	}

	occurrences := map[string]int64{}
	var order []string
	for _, t := range reflected {
		if _, ok := occurrences[t.Name]; !ok {
			order = append(order, t.Name)
		}
		occurrences[t.Name] += t.Occurrences
	}
	for _, t := range declared {
		if _, ok := occurrences[t]; !ok {
			occurrences[t] = 0
			order = append(order, t)
		}
	}

	entries := make([]spaceTypeEntry, 0, len(order))
	for _, typeName := range order {
		info := types.SpaceTypeInformation{
			Space:       string(space),
			Occurrences: occurrences[typeName],
		}
		if needProperties {
			props, err := m.mergeProperties(ctx, opts, space, typeName, occurrences[typeName] > 0, relevantEdges)
			if err != nil {
				return nil, err
			}
			info.Properties = props
		}
		entries = append(entries, spaceTypeEntry{typeName: typeName, info: info})
	}
	return entries, nil
}

// mergeProperties combines reflected property counts with the declared
// property specifications (global, client overlay and in-type overrides).
func (m *MetaDataController) mergeProperties(ctx context.Context, opts ReadOptions, space types.SpaceName, typeName string, reflectType bool, relevantEdges map[string]bool) ([]types.Property, error) {
	merged := map[string]*types.Property{}
	var order []string
	property := func(identifier string) *types.Property {
		p, ok := merged[identifier]
		if !ok {
			p = &types.Property{Identifier: identifier}
			merged[identifier] = p
			order = append(order, identifier)
		}
		return p
	}

	if reflectType {
		reflected, err := m.repository.ReflectedPropertiesOfTypeInSpace(ctx, opts.Stage, space, typeName)
		if err != nil {
			return nil, err
		}
		for _, rp := range reflected {
			property(rp.Name).Occurrences = rp.Occurrences
		}
	}

	specDocs, err := m.repository.PropertiesOfTypeBySpecification(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if opts.ClientSpace != "" {
		clientDocs, err := m.repository.ClientPropertiesOfTypeBySpecification(ctx, opts.ClientSpace, typeName)
		if err != nil {
			return nil, err
		}
		specDocs = append(specDocs, clientDocs...)
	}
	declaredTargets := map[string][]string{}
	for _, doc := range specDocs {
		identifier := doc.String(vocabulary.SchemaIdentifier)
		if identifier == "" {
			continue
		}
		p := property(identifier)
		declaredTargets[identifier] = append(declaredTargets[identifier], doc.StringList(vocabulary.MetaPropertyTargetTypes)...)
		mergePropertyExtra(p, doc)
	}

	for _, identifier := range order {
		p := merged[identifier]
		targets, err := m.targetTypes(ctx, opts.Stage, space, typeName, identifier, p.Occurrences > 0 && reflectType, relevantEdges, declaredTargets[identifier])
		if err != nil {
			return nil, err
		}
		p.TargetTypes = targets
	}

	result := make([]types.Property, 0, len(order))
	for _, identifier := range order {
		result = append(result, *merged[identifier])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result, nil
}

// targetTypes reflects actual link targets when the property is backed by a
// relevant edge collection, and adds declared target types as placeholders.
func (m *MetaDataController) targetTypes(ctx context.Context, stage types.Stage, space types.SpaceName, typeName, property string, reflect bool, relevantEdges map[string]bool, declared []string) ([]types.TargetType, error) {
	byType := map[string]*types.TargetType{}
	var order []string
	if reflect && relevantEdges[aql.FromProperty(property).Name] {
		reflections, err := m.repository.ReflectedTargetTypes(ctx, stage, space, typeName, property)
		if err != nil {
			return nil, err
		}
		for _, r := range reflections {
			target, ok := byType[r.Type]
			if !ok {
				target = &types.TargetType{Type: r.Type}
				byType[r.Type] = target
				order = append(order, r.Type)
			}
			target.Occurrences += r.Occurrences
			target.Spaces = append(target.Spaces, types.SpaceReference{
				Space:       string(r.Space),
				Occurrences: r.Occurrences,
			})
		}
	}
	for _, t := range declared {
		if _, ok := byType[t]; !ok {
			byType[t] = &types.TargetType{Type: t}
			order = append(order, t)
		}
	}
	if len(order) == 0 {
		return nil, nil
	}
	result := make([]types.TargetType, 0, len(order))
	for _, t := range order {
		result = append(result, *byType[t])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

// applyTypeSpecification merges the global type declaration and the client
// overlay into the aggregate entry.
func (m *MetaDataController) applyTypeSpecification(ctx context.Context, info *types.TypeInformation, clientSpace types.SpaceName) error {
	spec, err := m.repository.TypeSpecification(ctx, info.Identifier)
	if err != nil {
		return err
	}
	var clientSpec types.Document
	if clientSpace != "" {
		clientSpec, err = m.repository.ClientTypeSpecification(ctx, clientSpace, info.Identifier)
		if err != nil {
			return err
		}
	}
	for _, doc := range []types.Document{spec, clientSpec} {
		if doc == nil {
			continue
		}
		if v := doc.String(vocabulary.SchemaName); v != "" {
			info.Name = v
		}
		if v := doc.String(vocabulary.SchemaDescription); v != "" {
			info.Description = v
		}
		if v := doc.String(vocabulary.MetaLabelProperty); v != "" {
			info.LabelProperty = v
		}
		for _, key := range doc.PropertyKeys() {
			switch key {
			case vocabulary.SchemaName, vocabulary.SchemaDescription, vocabulary.SchemaIdentifier:
				continue
			}
			if info.Extra == nil {
				info.Extra = map[string]any{}
			}
			info.Extra[key] = doc[key]
		}
	}
	return nil
}

func mergePropertyExtra(p *types.Property, doc types.Document) {
	for _, key := range doc.PropertyKeys() {
		switch key {
		case vocabulary.SchemaIdentifier, vocabulary.MetaPropertyTargetTypes, vocabulary.MetaOccurrences:
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[key] = doc[key]
	}
}

// aggregateGlobalProperties merges the per-space property views of a type
// into its global view: occurrences are summed and target types merged, with
// per-space counts preserved as space references.
func aggregateGlobalProperties(spaces []types.SpaceTypeInformation) []types.Property {
	merged := map[string]*types.Property{}
	var order []string
	targetsByProperty := map[string]map[string]*types.TargetType{}
	targetOrder := map[string][]string{}

	for _, space := range spaces {
		for _, p := range space.Properties {
			global, ok := merged[p.Identifier]
			if !ok {
				global = &types.Property{Identifier: p.Identifier}
				merged[p.Identifier] = global
				order = append(order, p.Identifier)
				targetsByProperty[p.Identifier] = map[string]*types.TargetType{}
			}
			global.Occurrences += p.Occurrences
			if global.Extra == nil && p.Extra != nil {
				global.Extra = p.Extra
			}
			for _, tt := range p.TargetTypes {
				target, ok := targetsByProperty[p.Identifier][tt.Type]
				if !ok {
					target = &types.TargetType{Type: tt.Type}
					targetsByProperty[p.Identifier][tt.Type] = target
					targetOrder[p.Identifier] = append(targetOrder[p.Identifier], tt.Type)
				}
				target.Occurrences += tt.Occurrences
				target.Spaces = mergeSpaceReferences(target.Spaces, tt.Spaces)
			}
		}
	}

	result := make([]types.Property, 0, len(order))
	for _, identifier := range order {
		global := merged[identifier]
		for _, t := range targetOrder[identifier] {
			global.TargetTypes = append(global.TargetTypes, *targetsByProperty[identifier][t])
		}
		result = append(result, *global)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result
}

func mergeSpaceReferences(existing, additional []types.SpaceReference) []types.SpaceReference {
	index := map[string]int{}
	for i, ref := range existing {
		index[ref.Space] = i
	}
	for _, ref := range additional {
		if i, ok := index[ref.Space]; ok {
			existing[i].Occurrences += ref.Occurrences
		} else {
			index[ref.Space] = len(existing)
			existing = append(existing, ref)
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Space < existing[j].Space })
	return existing
}

// attachIncomingLinks inverts the target-type declarations: every property
// of type S pointing at type T becomes an incoming link of T naming S as a
// source.
func attachIncomingLinks(result []types.TypeInformation) {
	incoming := map[string]map[string]*types.IncomingLink{}
	linkOrder := map[string][]string{}

	for _, source := range result {
		sourceSpaces := make([]types.SpaceReference, 0, len(source.Spaces))
		for _, space := range source.Spaces {
			sourceSpaces = append(sourceSpaces, types.SpaceReference{
				Space:       space.Space,
				Occurrences: space.Occurrences,
			})
		}
		for _, property := range source.Properties {
			for _, target := range property.TargetTypes {
				links, ok := incoming[target.Type]
				if !ok {
					links = map[string]*types.IncomingLink{}
					incoming[target.Type] = links
				}
				link, ok := links[property.Identifier]
				if !ok {
					link = &types.IncomingLink{Identifier: property.Identifier}
					links[property.Identifier] = link
					linkOrder[target.Type] = append(linkOrder[target.Type], property.Identifier)
				}
				link.SourceTypes = append(link.SourceTypes, types.SourceType{
					Type:   source.Identifier,
					Spaces: sourceSpaces,
				})
			}
		}
	}

	for i := range result {
		links := incoming[result[i].Identifier]
		if links == nil {
			continue
		}
		identifiers := linkOrder[result[i].Identifier]
		sort.Strings(identifiers)
		for _, identifier := range identifiers {
			link := links[identifier]
			sort.Slice(link.SourceTypes, func(a, b int) bool {
				return link.SourceTypes[a].Type < link.SourceTypes[b].Type
			})
			result[i].IncomingLinks = append(result[i].IncomingLinks, *link)
		}
	}
}

// narrowToSpace reduces the aggregate to a single space: types absent from
// the space are dropped and occurrences and properties are replaced by the
// space-local view.
func narrowToSpace(result []types.TypeInformation, space types.SpaceName) []types.TypeInformation {
	var narrowed []types.TypeInformation
	for _, info := range result {
		var match *types.SpaceTypeInformation
		for i := range info.Spaces {
			if info.Spaces[i].Space == string(space) {
				match = &info.Spaces[i]
				break
			}
		}
		if match == nil {
			continue
		}
		info.Occurrences = match.Occurrences
		if match.Properties != nil {
			info.Properties = aggregateGlobalProperties([]types.SpaceTypeInformation{*match})
		}
		info.Spaces = nil
		narrowed = append(narrowed, info)
	}
	return narrowed
}

func maskPrivateSpace(result []types.TypeInformation, privateSpace types.SpaceName) {
	if privateSpace == "" {
		return
	}
	mask := func(name string) string {
		return string(types.TranslateSpace(types.SpaceName(name), privateSpace, vocabulary.PrivateSpaceAlias))
	}
	for i := range result {
		for j := range result[i].Spaces {
			result[i].Spaces[j].Space = mask(result[i].Spaces[j].Space)
		}
		for j := range result[i].Properties {
			for k := range result[i].Properties[j].TargetTypes {
				for l := range result[i].Properties[j].TargetTypes[k].Spaces {
					result[i].Properties[j].TargetTypes[k].Spaces[l].Space = mask(result[i].Properties[j].TargetTypes[k].Spaces[l].Space)
				}
			}
		}
		for j := range result[i].IncomingLinks {
			for k := range result[i].IncomingLinks[j].SourceTypes {
				for l := range result[i].IncomingLinks[j].SourceTypes[k].Spaces {
					result[i].IncomingLinks[j].SourceTypes[k].Spaces[l].Space = mask(result[i].IncomingLinks[j].SourceTypes[k].Spaces[l].Space)
				}
			}
		}
	}
}

// SpacesOptions controls a space listing.
type SpacesOptions struct {
	Stage types.Stage
	// Whitelist limits the result; entries may be wildcard patterns.
	Whitelist []types.SpaceName
	// PrivateSpace is masked with its public alias.
	PrivateSpace types.SpaceName
	// IncludeReviewSpace adds the virtual review space, shown to callers
	// holding pending invitations.
	IncludeReviewSpace bool
}

// Spaces lists the spaces visible to the caller: declared spaces plus spaces
// that exist only as reflected collections.
func (m *MetaDataController) Spaces(ctx context.Context, opts SpacesOptions) ([]types.Space, error) {
	declared, err := m.repository.Spaces(ctx)
	if err != nil {
		return nil, err
	}
	reflected, err := m.repository.ReflectedSpaces(ctx, opts.Stage)
	if err != nil {
		return nil, err
	}
	reflectedSet := map[types.SpaceName]bool{}
	for _, space := range reflected {
		reflectedSet[space] = true
	}

	byName := map[types.SpaceName]types.Space{}
	var order []types.SpaceName
	for _, space := range declared {
		space.ExistsInDB = reflectedSet[space.Name]
		byName[space.Name] = space
		order = append(order, space.Name)
	}
	for _, name := range reflected {
		if _, ok := byName[name]; !ok {
			byName[name] = types.Space{Name: name, Reflected: true, ExistsInDB: true}
			order = append(order, name)
		}
	}

	readableNames := m.permissions.FilterReadableSpaces(opts.Stage, order)
	readable := map[types.SpaceName]bool{}
	for _, name := range readableNames {
		readable[name] = true
	}

	var result []types.Space
	for _, name := range order {
		if !readable[name] {
			continue
		}
		if !matchesWhitelist(name, opts.Whitelist) {
			continue
		}
		space := byName[name]
		space.Name = types.TranslateSpace(space.Name, opts.PrivateSpace, vocabulary.PrivateSpaceAlias)
		result = append(result, space)
	}
	if opts.IncludeReviewSpace {
		result = append(result, types.Space{Name: vocabulary.ReviewSpace})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func matchesWhitelist(name types.SpaceName, whitelist []types.SpaceName) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, pattern := range whitelist {
		if pattern.MatchesWildcard(name) {
			return true
		}
	}
	return false
}

func (m *MetaDataController) readableSpaceNames(ctx context.Context, stage types.Stage) ([]types.SpaceName, error) {
	declared, err := m.repository.Spaces(ctx)
	if err != nil {
		return nil, err
	}
	reflected, err := m.repository.ReflectedSpaces(ctx, stage)
	if err != nil {
		return nil, err
	}
	seen := map[types.SpaceName]bool{}
	var names []types.SpaceName
	for _, space := range declared {
		if !seen[space.Name] {
			seen[space.Name] = true
			names = append(names, space.Name)
		}
	}
	for _, name := range reflected {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return m.permissions.FilterReadableSpaces(stage, names), nil
}

func (m *MetaDataController) relevantEdgeSet(ctx context.Context, stage types.Stage) (map[string]bool, error) {
	edges, err := m.repository.RelevantEdgeCollections(ctx, stage)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(edges))
	for _, edge := range edges {
		set[edge.Name] = true
	}
	return set, nil
}

func typeRestrictionSet(restriction []string) map[string]bool {
	if len(restriction) == 0 {
		return nil
	}
	set := make(map[string]bool, len(restriction))
	for _, t := range restriction {
		set[t] = true
	}
	return set
}

type warmupJob struct {
	stage types.Stage
	space types.SpaceName
}

// InitializeCache warms the reflection caches of the editable and released
// stages so first readers do not pay the reflection cost.
func (m *MetaDataController) InitializeCache(ctx context.Context) error {
	pool := worker.NewPool(4, 256, func(ctx context.Context, job warmupJob) error {
		_, err := m.repository.ReflectedTypesInSpace(ctx, job.stage, job.space)
		return err
	}, worker.WithMetricsRegistry[warmupJob](m.metrics, "structureWarmup"))
	if err := pool.Start(ctx); err != nil {
		return err
	}

	for _, stage := range []types.Stage{types.StageInProgress, types.StageReleased} {
		spaces, err := m.repository.ReflectedSpaces(ctx, stage)
		if err != nil {
			m.logger.Warn("cache warmup skipped a stage", "stage", stage, "error", err)
			continue
		}
		for _, space := range spaces {
			if err := pool.Submit(warmupJob{stage: stage, space: space}); err != nil {
				m.logger.Warn("cache warmup dropped a space", "stage", stage, "space", space, "error", err)
			}
		}
	}
	return pool.Stop(time.Minute)
}
