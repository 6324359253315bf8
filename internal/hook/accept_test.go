package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/store"
)

func floatp(v float64) *float64 { return &v }

func seedSuggestions(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.PutJSON(ctx, store.KeyHookTemplate("hook_arson"),
		map[string]any{"hook_template_id": "hook_arson", "chain_id": "chain_smugglers"}))
	require.NoError(t, st.PutJSON(ctx, store.KeyLinkSuggestions, SuggestionsDoc{
		HookPlacements: []Suggestion{
			{SuggID: "sugg_001", HookTemplateID: "hook_arson", BurgID: 12, StateID: 5, Score: floatp(0.9)},
			{SuggID: "sugg_002", HookTemplateID: "hook_arson", BurgID: 13, StateID: 5, Score: floatp(0.4)},
			{SuggID: "sugg_003", HookTemplateID: "hook_lost", BurgID: 21, StateID: 7, Score: floatp(0.95)},
		},
	}))
}

func TestAcceptSuggestions_AllFiltersByScore(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	seedSuggestions(t, st)
	ctx := context.Background()

	res, err := m.AcceptSuggestions(ctx, Selection{All: true, MinScore: 0.7})
	require.NoError(t, err)
	// sugg_002 is below the score floor, sugg_003 names an unknown template
	require.Len(t, res.Created, 1)
	created := res.Created[0]
	assert.Equal(t, "hook_arson", created.HookTemplateID)
	assert.Equal(t, 12, created.BurgID)
	assert.Equal(t, 5, created.StateID)
	assert.Equal(t, StatusAvailable, created.Status)
	assert.Equal(t, "sugg_001", created.SourceSuggestionID)

	index, err := m.loadIndex(ctx)
	require.NoError(t, err)
	require.Len(t, index.Items, 1)

	var materialized Instance
	found, err := st.GetJSON(ctx, store.KeyMaterializedHook(12, created.HookInstanceID), &materialized)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.HookInstanceID, materialized.HookInstanceID)
}

func TestAcceptSuggestions_ReacceptIsNoop(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	seedSuggestions(t, st)
	ctx := context.Background()

	first, err := m.AcceptSuggestions(ctx, Selection{SuggestionIDs: []string{"sugg_001"}})
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := m.AcceptSuggestions(ctx, Selection{SuggestionIDs: []string{"sugg_001"}})
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 1, second.SkippedExisting)

	index, err := m.loadIndex(ctx)
	require.NoError(t, err)
	assert.Len(t, index.Items, 1)
}

func TestAcceptSuggestions_MissingIDReported(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	seedSuggestions(t, st)

	res, err := m.AcceptSuggestions(context.Background(),
		Selection{SuggestionIDs: []string{"sugg_001", "sugg_nope"}})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	assert.Equal(t, []string{"sugg_nope"}, res.MissingIDs)
}

func TestAcceptSuggestions_LimitCapsSelection(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	seedSuggestions(t, st)

	res, err := m.AcceptSuggestions(context.Background(),
		Selection{All: true, MinScore: 0.0, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestAcceptSuggestions_NoPlacements(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)

	_, err := m.AcceptSuggestions(context.Background(), Selection{All: true})
	assert.ErrorIs(t, err, ErrNoSuggestions)
}
