package instances

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// Suggestions searches for instances a caller could link to while editing a
// relation. Suggest access is a lower tier than read: a caller may see the
// label of a linkable instance without being able to open it.
type Suggestions struct {
	base
}

// NewSuggestions wires the suggestions repository.
func NewSuggestions(deps Dependencies) (*Suggestions, error) {
	if err := deps.validate("suggestions"); err != nil {
		return nil, err
	}
	return &Suggestions{base: newBase(deps, "suggestions")}, nil
}

// SuggestionOptions narrows a suggestion search.
type SuggestionOptions struct {
	Stage        types.Stage
	Types        []string
	Search       string
	ExcludeIDs   []uuid.UUID
	Space        types.SpaceName
	PrivateSpace types.SpaceName
	Pagination   types.Pagination
}

// GetSuggestionsByTypes returns linkable instances of the given types,
// sorted by label. A search term that parses as an instance id short-circuits
// to a direct lookup of that instance.
func (r *Suggestions) GetSuggestionsByTypes(ctx context.Context, opts SuggestionOptions) (types.Paginated[types.SuggestedLink], error) {
	if len(opts.Types) == 0 {
		return types.Empty[types.SuggestedLink](), nil
	}
	if instanceID, ok := types.ParseInstanceID(opts.Search); ok {
		return r.suggestByID(ctx, opts, instanceID)
	}

	excluded := map[uuid.UUID]bool{}
	for _, id := range opts.ExcludeIDs {
		excluded[id] = true
	}
	var all []types.SuggestedLink
	for _, typeName := range opts.Types {
		spaces, err := r.suggestableSpaces(ctx, opts.Stage, typeName, opts.Space, opts.PrivateSpace)
		if err != nil {
			return types.Empty[types.SuggestedLink](), err
		}
		properties, err := r.searchableProperties(ctx, typeName)
		if err != nil {
			return types.Empty[types.SuggestedLink](), err
		}
		for _, space := range spaces {
			links, err := r.querySpace(ctx, opts.Stage, space, typeName, opts.Search, properties, excluded, opts.PrivateSpace)
			if err != nil {
				return types.Empty[types.SuggestedLink](), err
			}
			all = append(all, links...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Label != all[j].Label {
			return all[i].Label < all[j].Label
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return paginateSuggestions(all, opts.Pagination), nil
}

// suggestByID resolves a search term that names an instance directly. The
// instance must carry one of the requested types and the caller needs at
// least suggest access to its space.
func (r *Suggestions) suggestByID(ctx context.Context, opts SuggestionOptions, instanceID types.InstanceID) (types.Paginated[types.SuggestedLink], error) {
	space := instanceID.Space
	if space == vocabulary.PrivateSpaceAlias && opts.PrivateSpace != "" {
		space = opts.PrivateSpace
	}
	if !r.suggestPermitted(opts.Stage, space, instanceID.UUID) {
		return types.Empty[types.SuggestedLink](), nil
	}
	db, err := r.db(opts.Stage)
	if err != nil {
		return types.Empty[types.SuggestedLink](), err
	}
	doc, err := db.GetDocument(ctx, aql.NewDocumentReference(space, instanceID.UUID).ID())
	if err != nil {
		return types.Empty[types.SuggestedLink](), errors.Wrap(err, "suggestions", "suggestByID", "lookup failed")
	}
	if doc == nil {
		return types.Empty[types.SuggestedLink](), nil
	}
	var matched string
	for _, typeName := range opts.Types {
		if containsString(doc.Types(), typeName) {
			matched = typeName
			break
		}
	}
	if matched == "" {
		return types.Empty[types.SuggestedLink](), nil
	}
	for _, id := range opts.ExcludeIDs {
		if id == instanceID.UUID {
			return types.Empty[types.SuggestedLink](), nil
		}
	}
	link := types.SuggestedLink{
		ID:             instanceID.UUID,
		Label:          doc.Label(),
		Type:           matched,
		Space:          string(r.maskedSpace(space, opts.PrivateSpace)),
		AdditionalInfo: string(r.maskedSpace(space, opts.PrivateSpace)),
	}
	return types.NewPaginated([]types.SuggestedLink{link}, 1, opts.Pagination), nil
}

// suggestableSpaces returns the spaces carrying the type where the caller
// holds either read or suggest access, optionally narrowed to one space.
func (r *Suggestions) suggestableSpaces(ctx context.Context, stage types.Stage, typeName string, filter, privateSpace types.SpaceName) ([]types.SpaceName, error) {
	if filter == vocabulary.PrivateSpaceAlias && privateSpace != "" {
		filter = privateSpace
	}
	all, err := r.structure.ReflectedSpaces(ctx, stage)
	if err != nil {
		return nil, err
	}
	readable := map[types.SpaceName]bool{}
	for _, space := range r.permissions.FilterReadableSpaces(stage, all) {
		readable[space] = true
	}
	var spaces []types.SpaceName
	for _, space := range all {
		if filter != "" && space != filter {
			continue
		}
		if !readable[space] && !r.permissions.HasSpaceFunctionality(permissions.FuncSuggest, space) {
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

func (r *Suggestions) querySpace(ctx context.Context, stage types.Stage, space types.SpaceName, typeName, search string, properties []string, excluded map[uuid.UUID]bool, privateSpace types.SpaceName) ([]types.SuggestedLink, error) {
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
	q.Indent().AddLine("FILTER @type IN TO_ARRAY(doc.`@type`)")
	q.Bind("type", typeName)
	q.AddLine("FILTER doc.`_embedded` != true AND doc.`_alternative` != true")
	searchFilter(q, "doc", search, properties)
	q.AddLine("SORT doc.`_label` ASC")
	q.AddLine("RETURN { key: doc.`_key`, label: doc.`_label` }")
	started := time.Now()
	rows, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "suggestions", started)
	if err != nil {
		return nil, err
	}
	masked := string(r.maskedSpace(space, privateSpace))
	links := make([]types.SuggestedLink, 0, len(rows))
	for _, row := range rows {
		id, parseErr := uuid.Parse(row.String("key"))
		if parseErr != nil || excluded[id] {
			continue
		}
		links = append(links, types.SuggestedLink{
			ID:             id,
			Label:          row.String("label"),
			Type:           typeName,
			Space:          masked,
			AdditionalInfo: masked,
		})
	}
	return links, nil
}

// suggestPermitted allows the direct-id shortcut for callers with read,
// minimal read or suggest access.
func (r *Suggestions) suggestPermitted(stage types.Stage, space types.SpaceName, id uuid.UUID) bool {
	if r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
		return true
	}
	return r.permissions.HasSpaceFunctionality(permissions.FuncSuggest, space)
}

func (r *Suggestions) maskedSpace(space, privateSpace types.SpaceName) types.SpaceName {
	return types.TranslateSpace(space, privateSpace, vocabulary.PrivateSpaceAlias)
}

func paginateSuggestions(all []types.SuggestedLink, p types.Pagination) types.Paginated[types.SuggestedLink] {
	total := int64(len(all))
	from := p.From
	if from > total {
		from = total
	}
	window := all[from:]
	if p.IsBounded() && int64(len(window)) > *p.Size {
		window = window[:*p.Size]
	}
	return types.NewPaginated(window, total, p)
}
