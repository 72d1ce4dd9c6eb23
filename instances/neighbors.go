package instances

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/types"
)

// Neighbors fetches the immediate graph neighborhood of an instance: the
// documents linking to it and the documents it links to, two hops out.
type Neighbors struct {
	base
}

// NewNeighbors wires the neighbors repository.
func NewNeighbors(deps Dependencies) (*Neighbors, error) {
	if err := deps.validate("neighbors"); err != nil {
		return nil, err
	}
	return &Neighbors{base: newBase(deps, "neighbors")}, nil
}

// GetNeighbors returns the neighborhood graph of an instance: one hop of
// inbound links and two hops of outbound links. Multiple documents matching
// the instance id indicate upstream data corruption and fail hard.
func (r *Neighbors) GetNeighbors(ctx context.Context, stage types.Stage, space types.SpaceName, id uuid.UUID) (*types.GraphEntity, error) {
	if !r.permissions.HasAtLeastMinimalAccess(stage, space, id) {
		return nil, errors.Forbidden("neighbors", "GetNeighbors", "no read access to "+types.NewInstanceID(space, id).Serialize())
	}
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
	q.Indent().AddLine("FILTER doc.`_key` == @key")
	q.Bind("key", id.String())
	q.AddLine("RETURN { id: doc.`@id`, label: doc.`_label`, types: doc.`@type`, space: doc.`kg/space` }")
	started := time.Now()
	rows, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "neighbors", started)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errors.Ambiguous("neighbors", "GetNeighbors", "multiple documents for "+types.NewInstanceID(space, id).Serialize())
	}

	center := entityFromRow(rows[0])
	edgeList, err := r.edgeCollectionList(ctx, stage)
	if err != nil {
		return nil, err
	}
	if edgeList == "" {
		return center, nil
	}
	instanceRef := aql.NewDocumentReference(space, id).ID()
	if center.Inbound, err = r.inboundNeighbors(ctx, stage, db, instanceRef, edgeList); err != nil {
		return nil, err
	}
	if center.Outbound, err = r.outboundNeighbors(ctx, stage, db, instanceRef, edgeList); err != nil {
		return nil, err
	}
	return center, nil
}

// edgeCollectionList renders the relevant edge collections as a traversal
// collection list.
func (r *Neighbors) edgeCollectionList(ctx context.Context, stage types.Stage) (string, error) {
	edges, err := r.structure.RelevantEdgeCollections(ctx, stage)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(edges))
	for _, edge := range edges {
		names = append(names, edge.AQL())
	}
	return strings.Join(names, ", "), nil
}

func (r *Neighbors) inboundNeighbors(ctx context.Context, stage types.Stage, db graphdb.Database, instanceRef, edgeList string) ([]*types.GraphEntity, error) {
	q := aql.New()
	q.Addf("FOR source IN 1..1 INBOUND @instanceRef %s", edgeList)
	q.Bind("instanceRef", instanceRef)
	q.Indent().AddLine("FILTER source.`_embedded` != true AND source.`_alternative` != true")
	q.AddDocumentFilter("source", r.permissions.ReadWhitelist(stage))
	q.AddLine("RETURN { id: source.`@id`, label: source.`_label`, types: source.`@type`, space: source.`kg/space` }")
	started := time.Now()
	rows, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "neighbors", started)
	if err != nil {
		return nil, err
	}
	entities := make([]*types.GraphEntity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, entityFromRow(row))
	}
	return entities, nil
}

// outboundNeighbors walks two hops out and nests the second hop under the
// first via the traversal path.
func (r *Neighbors) outboundNeighbors(ctx context.Context, stage types.Stage, db graphdb.Database, instanceRef, edgeList string) ([]*types.GraphEntity, error) {
	q := aql.New()
	q.Addf("FOR target, link, path IN 1..2 OUTBOUND @instanceRef %s", edgeList)
	q.Bind("instanceRef", instanceRef)
	q.Indent().AddLine("FILTER target.`_embedded` != true AND target.`_alternative` != true")
	q.AddDocumentFilter("target", r.permissions.ReadWhitelist(stage))
	q.AddLine("RETURN { id: target.`@id`, label: target.`_label`, types: target.`@type`, space: target.`kg/space`, parent: path.vertices[-2].`@id` }")
	started := time.Now()
	rows, err := db.Query(ctx, q.String(), q.BindVars())
	r.recordQuery(stage, "neighbors", started)
	if err != nil {
		return nil, err
	}

	byID := map[string]*types.GraphEntity{}
	parents := map[string]string{}
	var order []string
	for _, row := range rows {
		entity := entityFromRow(row)
		if entity.ID == "" || byID[entity.ID] != nil {
			continue
		}
		byID[entity.ID] = entity
		parents[entity.ID] = row.String("parent")
		order = append(order, entity.ID)
	}
	var firstHop []*types.GraphEntity
	for _, entityID := range order {
		entity := byID[entityID]
		if parent, ok := byID[parents[entityID]]; ok {
			parent.Outbound = append(parent.Outbound, entity)
		} else {
			firstHop = append(firstHop, entity)
		}
	}
	return firstHop, nil
}

func entityFromRow(row types.Document) *types.GraphEntity {
	return &types.GraphEntity{
		ID:    row.String("id"),
		Name:  row.String("label"),
		Types: row.StringList("types"),
		Space: row.String("space"),
	}
}
