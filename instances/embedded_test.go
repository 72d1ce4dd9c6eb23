package instances

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/types"
)

func newResolver(t *testing.T, deps Dependencies) *Resolver {
	t.Helper()
	resolver, err := NewResolver(deps)
	require.NoError(t, err)
	return resolver
}

// embeddedDoc builds a stored embedded sub-document attached to a parent.
func embeddedDoc(space types.SpaceName, parentInternalID string, id uuid.UUID, alternative bool) types.Document {
	doc := types.Document{
		"@id":               iriPrefix + id.String(),
		"_key":              id.String(),
		"_rev":              "rev-9",
		"_embedded":         true,
		"_originalDocument": parentInternalID,
		"kg/space":          string(space),
	}
	if alternative {
		doc["_alternative"] = true
	}
	return doc
}

func TestHandleEmbeddedMergesNestedReferences(t *testing.T) {
	db := newFakeDatabase()
	parentID := uuid.New()
	innerID := uuid.New()
	deepID := uuid.New()

	parent := instanceDoc("common", parentID, "Parent", "https://example.org/Dataset")
	parent["https://example.org/contact"] = map[string]any{"@id": iriPrefix + innerID.String()}

	inner := embeddedDoc("common", parent.String("_id"), innerID, false)
	inner["https://example.org/email"] = "jane@example.org"
	inner["https://example.org/address"] = map[string]any{"@id": iriPrefix + deepID.String()}
	deep := embeddedDoc("common", parent.String("_id"), deepID, false)
	deep["https://example.org/city"] = "Geneva"

	db.store("common", parentID, parent)
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "doc.`_embedded` == true") {
			return []types.Document{inner, deep}, nil
		}
		return nil, nil
	}
	resolver := newResolver(t, newTestDeps(t, db, globalEngine()))

	err := resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, false, true)
	require.NoError(t, err)

	contact, ok := parent.Doc("https://example.org/contact")
	require.True(t, ok)
	assert.Equal(t, "jane@example.org", contact.String("https://example.org/email"))
	// Inlined values never expose store bookkeeping.
	assert.NotContains(t, contact, "_rev")
	assert.NotContains(t, contact, "kg/space")

	address, ok := contact.Doc("https://example.org/address")
	require.True(t, ok)
	assert.Equal(t, "Geneva", address.String("https://example.org/city"))
}

func TestHandleEmbeddedSurvivesReferenceCycle(t *testing.T) {
	db := newFakeDatabase()
	parentID := uuid.New()
	aID := uuid.New()
	bID := uuid.New()

	parent := instanceDoc("common", parentID, "Parent", "https://example.org/Dataset")
	parent["https://example.org/first"] = map[string]any{"@id": iriPrefix + aID.String()}

	a := embeddedDoc("common", parent.String("_id"), aID, false)
	a["https://example.org/next"] = map[string]any{"@id": iriPrefix + bID.String()}
	b := embeddedDoc("common", parent.String("_id"), bID, false)
	b["https://example.org/next"] = map[string]any{"@id": iriPrefix + aID.String()}

	db.store("common", parentID, parent)
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "doc.`_embedded` == true") {
			return []types.Document{a, b}, nil
		}
		return nil, nil
	}
	resolver := newResolver(t, newTestDeps(t, db, globalEngine()))

	err := resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, false, true)
	require.NoError(t, err)

	first, ok := parent.Doc("https://example.org/first")
	require.True(t, ok)
	second, ok := first.Doc("https://example.org/next")
	require.True(t, ok)
	// The cycle stops here: the back reference stays a plain reference.
	back, ok := second.Doc("https://example.org/next")
	require.True(t, ok)
	assert.Equal(t, iriPrefix+aID.String(), back.ID())
	assert.NotContains(t, back, "https://example.org/next")
}

func TestHandleEmbeddedMergeIsRepeatable(t *testing.T) {
	db := newFakeDatabase()
	parentID := uuid.New()
	innerID := uuid.New()
	deepID := uuid.New()

	parent := instanceDoc("common", parentID, "Parent", "https://example.org/Dataset")
	parent["https://example.org/contact"] = map[string]any{"@id": iriPrefix + innerID.String()}

	inner := embeddedDoc("common", parent.String("_id"), innerID, false)
	inner["https://example.org/email"] = "jane@example.org"
	inner["https://example.org/address"] = map[string]any{"@id": iriPrefix + deepID.String()}
	deep := embeddedDoc("common", parent.String("_id"), deepID, false)
	deep["https://example.org/city"] = "Geneva"

	db.store("common", parentID, parent)
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "doc.`_embedded` == true") {
			return []types.Document{inner.Copy(), deep.Copy()}, nil
		}
		return nil, nil
	}
	resolver := newResolver(t, newTestDeps(t, db, globalEngine()))

	err := resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, false, true)
	require.NoError(t, err)
	once := parent.Copy()

	// Resolving again over the already merged document changes nothing.
	err = resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, false, true)
	require.NoError(t, err)
	// Copies normalize the nested value types for the comparison.
	assert.Equal(t, once, parent.Copy())
}

func TestAlternativesStrippedWhenNotRequested(t *testing.T) {
	parent := instanceDoc("common", uuid.New(), "Parent", "https://example.org/Dataset")
	parent["kg/alternative"] = map[string]any{"something": "here"}
	resolver := newResolver(t, newTestDeps(t, newFakeDatabase(), globalEngine()))

	err := resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, false, false)
	require.NoError(t, err)
	assert.NotContains(t, parent, "kg/alternative")
}

func TestAlternativesResolveContributors(t *testing.T) {
	db := newFakeDatabase()
	parentID := uuid.New()
	altID := uuid.New()
	userID := uuid.New()

	parent := instanceDoc("common", parentID, "Parent", "https://example.org/Dataset")
	parent["kg/alternative"] = []any{map[string]any{"@id": iriPrefix + altID.String()}}

	alt := embeddedDoc("common", parent.String("_id"), altID, true)
	alt["https://example.org/name"] = []any{map[string]any{
		"kg/user": map[string]any{"@id": "https://kg.example.org/users/" + userID.String()},
		"value":   "Alternative Name",
	}}

	db.store("common", parentID, parent)
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "doc.`_alternative` == true") {
			return []types.Document{alt}, nil
		}
		return nil, nil
	}
	deps := newTestDeps(t, db, globalEngine())
	deps.Users = fakeUsers{profiles: map[uuid.UUID]types.ReducedUserInfo{
		userID: {ID: userID.String(), AlternateID: "jdoe", Name: "Jane Doe", Picture: "https://example.org/jane.png"},
	}}
	resolver := newResolver(t, deps)

	err := resolver.HandleAlternativesAndEmbedded(context.Background(), []types.Document{parent}, types.StageInProgress, true, false)
	require.NoError(t, err)

	merged, ok := parent.Doc("kg/alternative")
	require.True(t, ok)
	// Alternatives never expose the store's bookkeeping.
	assert.NotContains(t, merged, "_rev")
	assert.NotContains(t, merged, "kg/space")

	entries := merged.DocList("https://example.org/name")
	require.Len(t, entries, 1)
	user, ok := entries[0].Doc("kg/user")
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", user.String("schema/name"))
	assert.ElementsMatch(t, []string{userID.String(), "jdoe"}, user.StringList("schema/identifier"))
	assert.Equal(t, "https://example.org/jane.png", user.String("schema/image"))
}
