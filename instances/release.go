package instances

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/structure"
	"github.com/c360/kgraph/types"
)

// releaseStatusChunkSize bounds the key list of a single bulk status query.
const releaseStatusChunkSize = 2000

// ReleaseStatus answers whether instances are released, changed since their
// release, or unreleased, individually or aggregated over scope subtrees.
type ReleaseStatus struct {
	base
	scope *Scope
}

// NewReleaseStatus wires the release status repository.
func NewReleaseStatus(deps Dependencies) (*ReleaseStatus, error) {
	if err := deps.validate("releaseStatus"); err != nil {
		return nil, err
	}
	scope, err := NewScope(deps)
	if err != nil {
		return nil, err
	}
	return &ReleaseStatus{
		base:  newBase(deps, "releaseStatus"),
		scope: scope,
	}, nil
}

// GetIndividualReleaseStatus returns the release status of one instance. An
// instance without a release marker is unreleased.
func (r *ReleaseStatus) GetIndividualReleaseStatus(ctx context.Context, space types.SpaceName, id uuid.UUID) (types.ReleaseStatus, error) {
	if !r.permissions.HasInstanceFunctionality(permissions.FuncReleaseStatus, space, id) {
		return "", errors.Forbidden("releaseStatus", "GetIndividualReleaseStatus", "no release status access to "+types.NewInstanceID(space, id).Serialize())
	}
	statuses, err := r.statusesForSpace(ctx, space, []string{id.String()})
	if err != nil {
		return "", err
	}
	if status, ok := statuses[id]; ok {
		return status, nil
	}
	return types.StatusUnreleased, nil
}

// GetReleaseStatusByIDs returns the release status per instance, either of
// the instance itself or aggregated over its scope children. The aggregate
// is the worst status found in the subtree.
func (r *ReleaseStatus) GetReleaseStatusByIDs(ctx context.Context, instanceIDs []types.InstanceID, treeScope types.ReleaseTreeScope) (map[uuid.UUID]types.ReleaseStatus, error) {
	switch treeScope {
	case types.TopInstanceOnly:
		return r.topInstanceStatuses(ctx, instanceIDs)
	case types.ChildrenOnly, types.ChildrenOnlyRestricted:
		return r.childrenStatuses(ctx, instanceIDs, treeScope == types.ChildrenOnlyRestricted)
	default:
		return nil, errors.WrapInvalid(nil, "releaseStatus", "GetReleaseStatusByIDs", "unknown release tree scope "+string(treeScope))
	}
}

func (r *ReleaseStatus) topInstanceStatuses(ctx context.Context, instanceIDs []types.InstanceID) (map[uuid.UUID]types.ReleaseStatus, error) {
	// The space permission is checked once per space, not per instance.
	permitted := map[types.SpaceName]bool{}
	spacePermitted := func(space types.SpaceName) bool {
		allowed, seen := permitted[space]
		if !seen {
			allowed = r.permissions.HasSpaceFunctionality(permissions.FuncReleaseStatus, space)
			permitted[space] = allowed
		}
		return allowed
	}
	bySpace := map[types.SpaceName][]string{}
	for _, id := range instanceIDs {
		if !spacePermitted(id.Space) && !r.permissions.HasInstanceFunctionality(permissions.FuncReleaseStatus, id.Space, id.UUID) {
			continue
		}
		bySpace[id.Space] = append(bySpace[id.Space], id.UUID.String())
	}

	result := map[uuid.UUID]types.ReleaseStatus{}
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for space, keys := range bySpace {
		for _, chunk := range chunkStrings(keys, releaseStatusChunkSize) {
			space, chunk := space, chunk
			group.Go(func() error {
				statuses, err := r.statusesForSpace(groupCtx, space, chunk)
				if err != nil {
					return err
				}
				mu.Lock()
				for id, status := range statuses {
					result[id] = status
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	// Instances without a marker are unreleased.
	for _, id := range instanceIDs {
		if _, ok := result[id.UUID]; !ok && bySpaceContains(bySpace, id) {
			result[id.UUID] = types.StatusUnreleased
		}
	}
	return result, nil
}

func (r *ReleaseStatus) childrenStatuses(ctx context.Context, instanceIDs []types.InstanceID, restricted bool) (map[uuid.UUID]types.ReleaseStatus, error) {
	result := map[uuid.UUID]types.ReleaseStatus{}
	for _, id := range instanceIDs {
		tree, err := r.scope.GetScopeForInstance(ctx, id.Space, id.UUID, types.StageInProgress, restricted)
		if err != nil {
			if errors.IsForbidden(err) {
				continue
			}
			return nil, err
		}
		if tree == nil {
			continue
		}
		var childIDs []types.InstanceID
		for _, child := range tree.Children {
			for _, childID := range child.CollectInstanceIDs() {
				childIDs = append(childIDs, childInstanceID(tree, child, childID))
			}
		}
		if len(childIDs) == 0 {
			result[id.UUID] = types.StatusReleased
			continue
		}
		statuses, err := r.topInstanceStatuses(ctx, childIDs)
		if err != nil {
			return nil, err
		}
		aggregate := types.StatusReleased
		for _, childID := range childIDs {
			status, ok := statuses[childID.UUID]
			if !ok {
				status = types.StatusUnreleased
			}
			aggregate = aggregate.Worse(status)
		}
		result[id.UUID] = aggregate
	}
	return result, nil
}

// statusesForSpace looks up the release markers of a key chunk within one
// space. Keys without a marker are absent from the result.
func (r *ReleaseStatus) statusesForSpace(ctx context.Context, space types.SpaceName, keys []string) (map[uuid.UUID]types.ReleaseStatus, error) {
	db, err := r.db(types.StageInProgress)
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
	q.Indent().AddLine("FILTER doc.`_key` IN @keys")
	q.Bind("keys", keys)
	q.Addf("LET status = FIRST(FOR s IN 1..1 INBOUND doc %s RETURN s.`kg/releaseStatus`)", aql.InternalCollection(structure.EdgeReleaseStatus, true).AQL())
	q.AddLine("RETURN { key: doc.`_key`, status: status }")
	started := time.Now()
	rows, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(types.StageInProgress, "releaseStatus", started)
	if err != nil {
		return nil, err
	}
	statuses := map[uuid.UUID]types.ReleaseStatus{}
	for _, row := range rows {
		id, parseErr := uuid.Parse(row.String("key"))
		if parseErr != nil {
			continue
		}
		statuses[id] = parseReleaseStatus(row.String("status"))
	}
	return statuses, nil
}

func parseReleaseStatus(raw string) types.ReleaseStatus {
	switch types.ReleaseStatus(raw) {
	case types.StatusReleased:
		return types.StatusReleased
	case types.StatusHasChanged:
		return types.StatusHasChanged
	default:
		return types.StatusUnreleased
	}
}

// childInstanceID reconstructs the structured id of a scope child. The space
// comes from the element carrying the id, falling back to the root's space.
func childInstanceID(root *types.ScopeElement, child *types.ScopeElement, id uuid.UUID) types.InstanceID {
	if space := spaceOfElement(child, id); space != "" {
		return types.NewInstanceID(types.SpaceName(space), id)
	}
	return types.NewInstanceID(types.SpaceName(root.Space), id)
}

func spaceOfElement(element *types.ScopeElement, id uuid.UUID) string {
	if element.ID == id {
		return element.Space
	}
	for _, child := range element.Children {
		if space := spaceOfElement(child, id); space != "" {
			return space
		}
	}
	return ""
}

func chunkStrings(keys []string, size int) [][]string {
	if size <= 0 || len(keys) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

func bySpaceContains(bySpace map[types.SpaceName][]string, id types.InstanceID) bool {
	for _, key := range bySpace[id.Space] {
		if key == id.UUID.String() {
			return true
		}
	}
	return false
}
