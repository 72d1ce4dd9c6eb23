package instances

import (
	"context"

	"github.com/google/uuid"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/users"
	"github.com/c360/kgraph/vocabulary"
)

// Resolver inlines embedded sub-documents into their parents and resolves
// alternative (per-contributor) values, including contributor identities.
type Resolver struct {
	base
	users users.Store
}

// NewResolver wires the embedded and alternatives resolver.
func NewResolver(deps Dependencies) (*Resolver, error) {
	if err := deps.validate("resolver"); err != nil {
		return nil, err
	}
	return &Resolver{
		base:  newBase(deps, "resolver"),
		users: deps.Users,
	}, nil
}

// HandleAlternativesAndEmbedded post-processes a batch of parent documents.
// When alternatives are requested, the per-contributor value sets are merged
// in and their contributors resolved; otherwise the alternative field is
// stripped entirely. When embedded resolution is requested, referential
// placeholders are replaced by the referenced embedded documents, fully
// recursively for nested embeddings.
func (r *Resolver) HandleAlternativesAndEmbedded(ctx context.Context, docs []types.Document, stage types.Stage, alternatives, embedded bool) error {
	if len(docs) == 0 {
		return nil
	}
	if alternatives {
		if err := r.resolveAlternatives(ctx, docs, stage); err != nil {
			return err
		}
	} else {
		for _, doc := range docs {
			delete(doc, vocabulary.MetaAlternative)
		}
	}
	if embedded {
		related, err := r.fetchRelated(ctx, stage, docs, false)
		if err != nil {
			return err
		}
		mergeAll(docs, related)
	}
	return nil
}

func (r *Resolver) resolveAlternatives(ctx context.Context, docs []types.Document, stage types.Stage) error {
	related, err := r.fetchRelated(ctx, stage, docs, true)
	if err != nil {
		return err
	}
	// Alternatives never expose store bookkeeping of their own.
	for _, alt := range related {
		delete(alt, vocabulary.InternalRevision)
		delete(alt, vocabulary.MetaRevision)
		delete(alt, vocabulary.MetaSpace)
	}
	mergeAll(docs, related)
	for _, doc := range docs {
		normalizeAlternative(doc)
	}
	return r.resolveContributors(ctx, docs)
}

// normalizeAlternative reduces the parent's alternative field to at most one
// merged value set. The first resolved set wins.
func normalizeAlternative(doc types.Document) {
	v, ok := doc[vocabulary.MetaAlternative]
	if !ok {
		return
	}
	if list, isList := v.([]any); isList {
		for _, item := range list {
			if alt, isDoc := types.AsDocument(item); isDoc {
				doc[vocabulary.MetaAlternative] = alt
				return
			}
		}
		delete(doc, vocabulary.MetaAlternative)
	}
}

// resolveContributors replaces every user reference inside the alternative
// value sets with a reduced profile. User profiles are not staged, so the
// lookup always targets the primary store.
func (r *Resolver) resolveContributors(ctx context.Context, docs []types.Document) error {
	if r.users == nil {
		return nil
	}
	refs := map[uuid.UUID]bool{}
	for _, doc := range docs {
		alt, ok := doc.Doc(vocabulary.MetaAlternative)
		if !ok {
			continue
		}
		collectUserReferences(alt, refs)
	}
	if len(refs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	profiles, err := r.users.Profiles(ctx, ids)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		alt, ok := doc.Doc(vocabulary.MetaAlternative)
		if !ok {
			continue
		}
		replaceUserReferences(alt, profiles)
	}
	return nil
}

func collectUserReferences(alt types.Document, refs map[uuid.UUID]bool) {
	for _, key := range alt.PropertyKeys() {
		for _, entry := range alt.DocList(key) {
			if user, ok := entry.Doc(vocabulary.MetaUser); ok {
				if id, parsed := types.UUIDFromIRI(user.ID()); parsed {
					refs[id] = true
				}
			}
		}
	}
}

func replaceUserReferences(alt types.Document, profiles map[uuid.UUID]types.ReducedUserInfo) {
	for _, key := range alt.PropertyKeys() {
		for _, entry := range alt.DocList(key) {
			user, ok := entry.Doc(vocabulary.MetaUser)
			if !ok {
				continue
			}
			id, parsed := types.UUIDFromIRI(user.ID())
			if !parsed {
				continue
			}
			profile, found := profiles[id]
			if !found {
				continue
			}
			resolved := types.Document{
				vocabulary.KeyID:      user.ID(),
				vocabulary.SchemaName: profile.Name,
			}
			// Stored as []any so Document.List can read it back.
			identifiers := []any{profile.ID}
			if profile.AlternateID != "" {
				identifiers = append(identifiers, profile.AlternateID)
			}
			resolved[vocabulary.SchemaIdentifier] = identifiers
			if profile.Picture != "" {
				resolved["schema/image"] = profile.Picture
			}
			entry[vocabulary.MetaUser] = resolved
		}
	}
}

// fetchRelated loads the embedded documents of a batch of parents within one
// hop, either the alternative ones or the plain embedded ones.
func (r *Resolver) fetchRelated(ctx context.Context, stage types.Stage, parents []types.Document, alternative bool) ([]types.Document, error) {
	db, err := r.db(stage)
	if err != nil {
		return nil, err
	}
	bySpace := map[types.SpaceName][]string{}
	for _, parent := range parents {
		id := parent.String(vocabulary.InternalID)
		if id == "" {
			continue
		}
		bySpace[parent.Space()] = append(bySpace[parent.Space()], id)
	}
	var related []types.Document
	for space, parentIDs := range bySpace {
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
		q.Indent().AddLine("FILTER doc.`_originalDocument` IN @parents")
		q.Bind("parents", parentIDs)
		if alternative {
			q.AddLine("FILTER doc.`_alternative` == true")
		} else {
			q.AddLine("FILTER doc.`_embedded` == true AND doc.`_alternative` != true")
		}
		q.AddLine("RETURN doc")
		docs, err := db.Query(ctx, q.String(), q.BindVars())
		if err != nil {
			return nil, err
		}
		related = append(related, docs...)
	}
	return related, nil
}

// mergeAll inlines the fetched embedded documents into every parent.
func mergeAll(parents []types.Document, embedded []types.Document) {
	if len(embedded) == 0 {
		return
	}
	byID := map[string]types.Document{}
	for _, doc := range embedded {
		if id := doc.ID(); id != "" {
			byID[id] = doc
		}
	}
	for _, parent := range parents {
		mergeEmbedded(parent, byID, map[string]bool{parent.ID(): true})
	}
}

// mergeEmbedded replaces referential placeholders with the referenced
// embedded document's content, by id, recursively. The visited set bounds
// the recursion should the embedding graph unexpectedly contain a cycle.
func mergeEmbedded(doc types.Document, byID map[string]types.Document, visited map[string]bool) {
	for _, key := range doc.Keys() {
		if vocabulary.IsInternalKey(key) || vocabulary.IsIdentityKey(key) {
			continue
		}
		doc[key] = mergeValue(doc[key], byID, visited)
	}
}

func mergeValue(v any, byID map[string]types.Document, visited map[string]bool) any {
	switch value := v.(type) {
	case []any:
		merged := make([]any, len(value))
		for i, item := range value {
			merged[i] = mergeValue(item, byID, visited)
		}
		return merged
	default:
		nested, isDoc := types.AsDocument(v)
		if !isDoc {
			return v
		}
		refID, isRef := types.ReferenceID(nested)
		if isRef && !visited[refID] {
			if embedded, found := byID[refID]; found {
				inlined := embeddedPayload(embedded)
				visited[refID] = true
				mergeEmbedded(inlined, byID, visited)
				delete(visited, refID)
				return inlined
			}
		}
		mergeEmbedded(nested, byID, visited)
		return nested
	}
}

// embeddedPayload copies an embedded document and drops the keys that must
// never leave the repository layer on an inlined value.
func embeddedPayload(doc types.Document) types.Document {
	payload := doc.Copy()
	payload.RemoveInternalProperties()
	delete(payload, vocabulary.MetaSpace)
	delete(payload, vocabulary.MetaRevision)
	return payload
}
