package instances

import (
	"context"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/query"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// Scope computes the hierarchical closure of an instance and its declared
// dependents, used for release-status propagation and invitation handling.
type Scope struct {
	base
	queries query.Executor
}

// NewScope wires the scope repository.
func NewScope(deps Dependencies) (*Scope, error) {
	if err := deps.validate("scope"); err != nil {
		return nil, err
	}
	if deps.Queries == nil {
		return nil, errors.WrapInvalid(nil, "scope", "NewScope", "query executor is required")
	}
	return &Scope{
		base:    newBase(deps, "scope"),
		queries: deps.Queries,
	}, nil
}

// GetScopeForInstance builds the scope tree of an instance: every declared
// query whose root type matches one of the instance's types and whose
// defining space is scope relevant contributes children, merged across query
// branches. With restrictions applied, excludable elements are dropped and
// their children promoted. If no query yields data the tree degenerates to
// the root alone.
func (r *Scope) GetScopeForInstance(ctx context.Context, space types.SpaceName, id uuid.UUID, stage types.Stage, applyRestrictions bool) (*types.ScopeElement, error) {
	if !r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
		return nil, errors.Forbidden("scope", "GetScopeForInstance", "no read access to "+types.NewInstanceID(space, id).Serialize())
	}
	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	doc, err := db.GetDocument(ctx, aql.NewDocumentReference(space, id).ID())
	if err != nil || doc == nil {
		return nil, err
	}

	root := &types.ScopeElement{
		ID:         id,
		Types:      doc.Types(),
		InternalID: aql.NewDocumentReference(space, id).ID(),
		Space:      string(space),
		Label:      doc.Label(),
	}

	relevantSpaces, err := r.scopeRelevantSpaces(ctx)
	if err != nil {
		return nil, err
	}

	var children []*types.ScopeElement
	for _, typeName := range root.Types {
		declared, err := r.queries.QueriesForType(ctx, stage, typeName)
		if err != nil {
			return nil, err
		}
		for _, dq := range declared {
			if !relevantSpaces[dq.Space] {
				continue
			}
			rows, err := r.queries.Execute(ctx, stage, dq, id)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				branch, err := r.classifyChildren(ctx, row, root.Types, applyRestrictions)
				if err != nil {
					return nil, err
				}
				children = append(children, branch...)
			}
		}
	}
	root.Children = mergeLevel(children)
	return root, nil
}

func (r *Scope) scopeRelevantSpaces(ctx context.Context) (map[types.SpaceName]bool, error) {
	spaces, err := r.structure.Spaces(ctx)
	if err != nil {
		return nil, err
	}
	relevant := map[types.SpaceName]bool{}
	for _, space := range spaces {
		if space.ScopeRelevant {
			relevant[space.Name] = true
		}
	}
	return relevant, nil
}

// classifyChildren translates the dependents of one query-result document
// into scope elements. The document itself represents the query root, which
// is the instance; only its nested dependents become elements.
func (r *Scope) classifyChildren(ctx context.Context, doc types.Document, rootTypes []string, applyRestrictions bool) ([]*types.ScopeElement, error) {
	var children []*types.ScopeElement
	for _, key := range doc.PropertyKeys() {
		for _, child := range doc.DocList(key) {
			elements, err := r.classify(ctx, child, rootTypes, applyRestrictions)
			if err != nil {
				return nil, err
			}
			children = append(children, elements...)
		}
	}
	return children, nil
}

// classify turns one dependent document into zero or more scope elements.
// Embedded documents stop the recursion, elements sharing a type with the
// root are kept but not expanded, and excludable elements are replaced by
// their promoted children when restrictions apply.
func (r *Scope) classify(ctx context.Context, doc types.Document, rootTypes []string, applyRestrictions bool) ([]*types.ScopeElement, error) {
	if doc.IsEmbedded() {
		return nil, nil
	}
	id, ok := doc.UUID()
	if !ok {
		return nil, nil
	}
	element := &types.ScopeElement{
		ID:         id,
		Types:      doc.Types(),
		InternalID: doc.String(vocabulary.InternalID),
		Space:      string(doc.Space()),
		Label:      doc.Label(),
	}

	sharesRootType := intersects(element.Types, rootTypes)
	if !sharesRootType {
		children, err := r.classifyChildren(ctx, doc, rootTypes, applyRestrictions)
		if err != nil {
			return nil, err
		}
		element.Children = mergeLevel(children)
	}

	if applyRestrictions {
		excludable, err := r.excludable(ctx, element.Types)
		if err != nil {
			return nil, err
		}
		if excludable {
			return element.Children, nil
		}
	}
	return []*types.ScopeElement{element}, nil
}

// excludable reports whether any of the given types is declared excludable
// from scope trees.
func (r *Scope) excludable(ctx context.Context, typeNames []string) (bool, error) {
	for _, typeName := range typeNames {
		spec, err := r.structure.TypeSpecification(ctx, typeName)
		if err != nil {
			return false, err
		}
		if spec != nil && spec.Bool(vocabulary.MetaCanBeExcludedFromScope) {
			return true, nil
		}
	}
	return false, nil
}

// mergeLevel merges same-id elements found through different query branches
// on the same tree level.
func mergeLevel(elements []*types.ScopeElement) []*types.ScopeElement {
	if len(elements) == 0 {
		return nil
	}
	byID := map[uuid.UUID]*types.ScopeElement{}
	var merged []*types.ScopeElement
	for _, element := range elements {
		if existing, ok := byID[element.ID]; ok {
			existing.Merge(element)
			continue
		}
		byID[element.ID] = element
		merged = append(merged, element)
	}
	for _, element := range merged {
		element.Children = mergeLevel(element.Children)
	}
	return merged
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
