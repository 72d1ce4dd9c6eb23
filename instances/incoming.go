package instances

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// IncomingLinks computes the reverse references into a document: which
// instances point at it, grouped by the linking property and the source
// type, each group paginated on its own.
type IncomingLinks struct {
	base
}

// NewIncomingLinks wires the incoming links repository.
func NewIncomingLinks(deps Dependencies) (*IncomingLinks, error) {
	if err := deps.validate("incomingLinks"); err != nil {
		return nil, err
	}
	return &IncomingLinks{base: newBase(deps, "incomingLinks")}, nil
}

type incomingSource struct {
	id    string
	label string
	space string
	types []string
}

// GetIncomingLinks fetches the reverse references into an instance. The
// result is a document keyed by linking property, then by source type, each
// leaf a paginated window of source references. Restrictions narrow the
// computation to one property and/or one source type.
func (r *IncomingLinks) GetIncomingLinks(ctx context.Context, stage types.Stage, space types.SpaceName, id uuid.UUID, restrictProperty, restrictType string, pagination types.Pagination) (types.Document, error) {
	edges, err := r.structure.RelevantEdgeCollections(ctx, stage)
	if err != nil {
		return nil, err
	}
	restrictEdge := ""
	if restrictProperty != "" {
		restrictEdge = aql.FromProperty(restrictProperty).Name
	}

	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	instanceRef := aql.NewDocumentReference(space, id).ID()
	byProperty := map[string]map[string][]incomingSource{}
	for _, edge := range edges {
		if restrictEdge != "" && edge.Name != restrictEdge {
			continue
		}
		q := aql.New()
		q.Addf("FOR source, link IN 1..1 INBOUND @instanceRef %s", edge.AQL())
		q.Bind("instanceRef", instanceRef)
		q.Indent().AddLine("FILTER source.`_embedded` != true AND source.`_alternative` != true")
		q.AddDocumentFilter("source", r.permissions.ReadWhitelist(stage))
		q.AddLine("RETURN { id: source.`@id`, label: source.`_label`, space: source.`kg/space`, types: source.`@type`, property: link.`_originalLabel` }")
		started := time.Now()
		rows, err := db.Query(ctx, q.String(), q.BindVars())
		r.recordQuery(stage, "incomingLinks", started)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			property := row.String("property")
			if property == "" {
				continue
			}
			source := incomingSource{
				id:    row.String("id"),
				label: row.String("label"),
				space: row.String("space"),
				types: row.StringList("types"),
			}
			for _, sourceType := range source.types {
				if restrictType != "" && sourceType != restrictType {
					continue
				}
				if byProperty[property] == nil {
					byProperty[property] = map[string][]incomingSource{}
				}
				byProperty[property][sourceType] = append(byProperty[property][sourceType], source)
			}
		}
	}
	if len(byProperty) == 0 {
		return nil, nil
	}
	return r.buildResult(ctx, byProperty, pagination)
}

// buildResult renders the grouped sources, windowing each (property, type)
// group independently and attaching the declared reverse-link name.
func (r *IncomingLinks) buildResult(ctx context.Context, byProperty map[string]map[string][]incomingSource, pagination types.Pagination) (types.Document, error) {
	result := types.Document{}
	for property, byType := range byProperty {
		group := types.Document{}
		spec, err := r.structure.PropertySpecification(ctx, property)
		if err != nil {
			return nil, err
		}
		if spec != nil {
			if name := spec.String(vocabulary.MetaNameReverseLink); name != "" {
				group[vocabulary.MetaNameReverseLink] = name
			}
		}
		for sourceType, sources := range byType {
			sort.Slice(sources, func(i, j int) bool {
				if sources[i].label != sources[j].label {
					return sources[i].label < sources[j].label
				}
				return sources[i].id < sources[j].id
			})
			group[sourceType] = windowSources(sources, pagination)
		}
		result[property] = group
	}
	return result, nil
}

func windowSources(sources []incomingSource, pagination types.Pagination) types.Document {
	total := int64(len(sources))
	from := pagination.From
	if from < 0 {
		from = 0
	}
	if from > total {
		from = total
	}
	to := total
	if pagination.IsBounded() && from+*pagination.Size < to {
		to = from + *pagination.Size
	}
	data := make([]any, 0, to-from)
	for _, source := range sources[from:to] {
		data = append(data, types.Document{
			vocabulary.KeyID:     source.id,
			vocabulary.KeyType:   source.types,
			vocabulary.MetaLabel: source.label,
			vocabulary.MetaSpace: source.space,
		})
	}
	return types.Document{
		"data":  data,
		"total": total,
		"from":  from,
		"size":  int64(len(data)),
	}
}

// AttachIncomingLinks computes the incoming links of an instance and stores
// them on the document under the incoming-links key when any exist.
func (r *IncomingLinks) AttachIncomingLinks(ctx context.Context, stage types.Stage, doc types.Document, space types.SpaceName, id uuid.UUID, pageSize int64) error {
	pagination := types.Pagination{}
	if pageSize > 0 {
		pagination = types.NewPagination(0, pageSize)
	}
	links, err := r.GetIncomingLinks(ctx, stage, space, id, "", "", pagination)
	if err != nil {
		return err
	}
	if links != nil {
		doc[vocabulary.MetaIncomingLinks] = links
	}
	return nil
}
