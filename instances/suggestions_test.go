package instances

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/types"
)

func newSuggestions(t *testing.T, deps Dependencies) *Suggestions {
	t.Helper()
	suggestions, err := NewSuggestions(deps)
	require.NoError(t, err)
	return suggestions
}

// suggestionDB holds two Person instances in the "common" space.
func suggestionDB(alphaID, betaID uuid.UUID) *fakeDatabase {
	db := newFakeDatabase()
	db.docCollections[aql.FromSpace("common").Name] = true
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		switch {
		case strings.Contains(query, "RETURN { space: doc.`kg/space` }"):
			return []types.Document{{"space": "common"}}, nil
		case strings.Contains(query, "COLLECT typeName"):
			return []types.Document{{"typeName": "https://example.org/Person", "occurrences": float64(2)}}, nil
		case strings.Contains(query, "RETURN { key: doc.`_key`, label: doc.`_label` }"):
			return []types.Document{
				{"key": betaID.String(), "label": "Beta"},
				{"key": alphaID.String(), "label": "Alpha"},
			}, nil
		}
		return nil, nil
	}
	return db
}

func TestSuggestionsSortedByLabel(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	suggestions := newSuggestions(t, newTestDeps(t, suggestionDB(alphaID, betaID), globalEngine()))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage: types.StageInProgress,
		Types: []string{"https://example.org/Person"},
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, "Alpha", result.Data[0].Label)
	assert.Equal(t, alphaID, result.Data[0].ID)
	assert.Equal(t, "common", result.Data[0].Space)
	assert.Equal(t, "https://example.org/Person", result.Data[0].Type)
	assert.Equal(t, "Beta", result.Data[1].Label)
}

func TestSuggestionsExcludeExistingLinks(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	suggestions := newSuggestions(t, newTestDeps(t, suggestionDB(alphaID, betaID), globalEngine()))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage:      types.StageInProgress,
		Types:      []string{"https://example.org/Person"},
		ExcludeIDs: []uuid.UUID{alphaID},
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, betaID, result.Data[0].ID)
}

func TestSuggestionsSearchTermIsPushedDown(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	db := suggestionDB(alphaID, betaID)
	var sawSearchBind bool
	base := db.queryFn
	db.queryFn = func(query string, bindVars map[string]any) ([]types.Document, error) {
		if strings.Contains(query, "RETURN { key: doc.`_key`, label: doc.`_label` }") {
			if bindVars["searchTerm0"] == "%al%" {
				sawSearchBind = true
			}
		}
		return base(query, bindVars)
	}
	suggestions := newSuggestions(t, newTestDeps(t, db, globalEngine()))

	_, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage:  types.StageInProgress,
		Types:  []string{"https://example.org/Person"},
		Search: "Al",
	})
	require.NoError(t, err)
	assert.True(t, sawSearchBind)
}

func TestSuggestionsSuggestGrantSufficesWithoutRead(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	engine := newGrantEngine().grantSpace("common", permissions.FuncSuggest)
	suggestions := newSuggestions(t, newTestDeps(t, suggestionDB(alphaID, betaID), engine))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage: types.StageInProgress,
		Types: []string{"https://example.org/Person"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)
}

func TestSuggestionsNoAccessYieldsNothing(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	suggestions := newSuggestions(t, newTestDeps(t, suggestionDB(alphaID, betaID), newGrantEngine()))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage: types.StageInProgress,
		Types: []string{"https://example.org/Person"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestSuggestionsSearchAsIDShortcut(t *testing.T) {
	id := uuid.New()
	db := newFakeDatabase()
	db.store("common", id, instanceDoc("common", id, "Direct Hit", "https://example.org/Person"))
	suggestions := newSuggestions(t, newTestDeps(t, db, globalEngine()))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage:  types.StageInProgress,
		Types:  []string{"https://example.org/Person"},
		Search: "common/" + id.String(),
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, id, result.Data[0].ID)
	assert.Equal(t, "Direct Hit", result.Data[0].Label)

	// The shortcut respects the type restriction.
	result, err = suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage:  types.StageInProgress,
		Types:  []string{"https://example.org/Organization"},
		Search: "common/" + id.String(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestSuggestionsMaskPrivateSpace(t *testing.T) {
	alphaID, betaID := uuid.New(), uuid.New()
	db := suggestionDB(alphaID, betaID)
	suggestions := newSuggestions(t, newTestDeps(t, db, globalEngine()))

	result, err := suggestions.GetSuggestionsByTypes(context.Background(), SuggestionOptions{
		Stage:        types.StageInProgress,
		Types:        []string{"https://example.org/Person"},
		PrivateSpace: "common",
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, "myspace", result.Data[0].Space)
}
