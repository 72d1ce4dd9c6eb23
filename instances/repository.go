// Package instances is the read side for graph documents: single and bulk
// instance retrieval, embedded and alternative value resolution, incoming
// links, scope trees, release status, neighbors and link suggestions. Every
// read goes through the same permission pipeline: the access decision is
// computed once per instance and drives whether the full payload, a minimal
// field set or a forbidden marker is returned.
package instances

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/ids"
	"github.com/c360/kgraph/metric"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/query"
	"github.com/c360/kgraph/structure"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/users"
	"github.com/c360/kgraph/vocabulary"
)

// Dependencies wires the instance repositories.
type Dependencies struct {
	Databases   *graphdb.Databases
	Structure   *structure.Repository
	Permissions *permissions.Controller
	Users       users.Store
	IDs         ids.Resolver
	Queries     query.Executor
	Logger      *slog.Logger
	Metrics     *metric.MetricsRegistry
}

func (d Dependencies) validate(component string) error {
	if d.Databases == nil || d.Structure == nil || d.Permissions == nil {
		return errors.WrapInvalid(nil, component, "New", "databases, structure and permissions are required")
	}
	return nil
}

// base carries the shared plumbing of the instance repositories.
type base struct {
	databases   *graphdb.Databases
	structure   *structure.Repository
	permissions *permissions.Controller
	logger      *slog.Logger
	metrics     *metric.Metrics
}

func newBase(deps Dependencies, component string) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := base{
		databases:   deps.Databases,
		structure:   deps.Structure,
		permissions: deps.Permissions,
		logger:      logger.With("component", component),
	}
	if deps.Metrics != nil {
		b.metrics = deps.Metrics.CoreMetrics()
	}
	return b
}

func (b base) db(stage types.Stage) (graphdb.Database, error) {
	return b.databases.ByStage(stage)
}

// exposeRevision copies the store's revision token onto the public revision
// key so clients see it after internal keys are stripped.
func exposeRevision(docs []types.Document) {
	for _, doc := range docs {
		if rev := doc.String(vocabulary.InternalRevision); rev != "" {
			doc[vocabulary.MetaRevision] = rev
		}
	}
}

// minimalFieldSet is what a caller with only minimal read gets to see.
func minimalFieldSet(labelProperties []string) map[string]bool {
	keep := map[string]bool{
		vocabulary.KeyID:     true,
		vocabulary.KeyType:   true,
		vocabulary.MetaSpace: true,
		vocabulary.MetaLabel: true,
	}
	for _, p := range labelProperties {
		keep[p] = true
	}
	return keep
}

// reduceToMinimalFields strips a document down to identity, label, type and
// space plus the label properties of its types. This downgrade is mandatory
// whenever the caller holds minimal read but not full read.
func (b base) reduceToMinimalFields(ctx context.Context, doc types.Document) error {
	var labelProperties []string
	for _, typeName := range doc.Types() {
		spec, err := b.structure.TypeSpecification(ctx, typeName)
		if err != nil {
			return err
		}
		if spec != nil {
			if p := spec.String(vocabulary.MetaLabelProperty); p != "" {
				labelProperties = append(labelProperties, p)
			}
		}
	}
	if label := doc.Label(); label != "" {
		doc[vocabulary.MetaLabel] = label
	}
	doc.KeepProperties(minimalFieldSet(labelProperties))
	return nil
}

// searchFilter appends free-text LIKE filters on the label and searchable
// properties. Search terms are split on whitespace; every term must match
// one of the properties. The LIKE wildcard is scrubbed from user input.
func searchFilter(q *aql.Query, alias, search string, properties []string) {
	terms := strings.Fields(search)
	if len(terms) == 0 || len(properties) == 0 {
		return
	}
	for i, term := range terms {
		scrubbed := strings.ReplaceAll(term, "%", "")
		if scrubbed == "" {
			continue
		}
		bind := "searchTerm" + strconv.Itoa(i)
		var clauses []string
		for _, p := range properties {
			clauses = append(clauses, "LIKE(LOWER("+alias+".`"+p+"`), @"+bind+", true)")
		}
		q.AddLine("FILTER " + strings.Join(clauses, " OR "))
		q.Bind(bind, "%"+strings.ToLower(scrubbed)+"%")
	}
}

// searchableProperties returns the properties a type is searched by: its
// label property plus the declared searchable properties.
func (b base) searchableProperties(ctx context.Context, typeName string) ([]string, error) {
	properties := []string{vocabulary.InternalLabel}
	spec, err := b.structure.TypeSpecification(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return properties, nil
	}
	if p := spec.String(vocabulary.MetaLabelProperty); p != "" {
		properties = append(properties, p)
	}
	properties = append(properties, spec.StringList(vocabulary.MetaSearchableProperties)...)
	return properties, nil
}

// labelsForInstances looks up the stored labels of a set of instances,
// grouped per space so each lookup is a single-collection scan.
func (b base) labelsForInstances(ctx context.Context, stage types.Stage, instanceIDs []types.InstanceID) (map[uuid.UUID]string, error) {
	db, err := b.db(stage)
	if err != nil {
		return nil, err
	}
	bySpace := map[types.SpaceName][]string{}
	for _, id := range instanceIDs {
		bySpace[id.Space] = append(bySpace[id.Space], id.UUID.String())
	}
	labels := map[uuid.UUID]string{}
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
		q.AddLine("RETURN { key: doc.`_key`, label: doc.`_label` }")
		docs, err := db.Query(ctx, q.String(), q.BindVars())
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			id, parseErr := uuid.Parse(doc.String("key"))
			if parseErr != nil {
				continue
			}
			labels[id] = doc.String("label")
		}
	}
	return labels, nil
}

// maskSpace rewrites the space key of read results so the caller's private
// space never leaks its internal name.
func maskSpace(docs []types.Document, privateSpace types.SpaceName) {
	if privateSpace == "" {
		return
	}
	for _, doc := range docs {
		if doc.Space() == privateSpace {
			doc[vocabulary.MetaSpace] = vocabulary.PrivateSpaceAlias
		}
	}
}

func (b base) recordQuery(stage types.Stage, repository string, started time.Time) {
	if b.metrics != nil {
		b.metrics.RecordQuery(string(stage), repository, time.Since(started))
	}
}

func (b base) recordDocuments(stage types.Stage, count int) {
	if b.metrics != nil {
		b.metrics.RecordDocumentsRead(string(stage), count)
	}
}
