package regen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedWorld writes facts and outlines for one world, state 5 and burg 12,
// builds the dependency graph, and persists it.
func seedWorld(t *testing.T, st *store.Store) *graph.Graph {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.World),
		map[string]any{"ruler": "Empress Maigra", "warState": "peace", "religionSpread": "old faith"}))
	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.State(5)),
		map[string]any{"id": 5, "ruler": "Duke Armand", "warState": "border skirmish"}))
	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.Burg(12)),
		map[string]any{"id": 12, "state_id": 5, "name": "Thornmouth"}))

	require.NoError(t, st.PutJSON(ctx, store.KeyCanonOutline(ref.State(5)),
		map[string]any{"state_id": 5, "name": "Velderan"}))
	require.NoError(t, st.PutJSON(ctx, store.KeyCanonOutline(ref.Burg(12)),
		map[string]any{"burg_id": 12, "state_id": 5, "name": "Thornmouth"}))

	g, err := graph.Build(ctx, st)
	require.NoError(t, err)
	require.NoError(t, graph.Save(ctx, st, g))
	return g
}

func TestInputsHash_StableAcrossRuns(t *testing.T) {
	st := openTestStore(t)
	g := seedWorld(t, st)
	ctx := context.Background()

	h1, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)
	h2, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestInputsHash_ChangesWhenDeclaredUpstreamFieldChanges(t *testing.T) {
	st := openTestStore(t)
	g := seedWorld(t, st)
	ctx := context.Background()

	before, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)

	// warState is a declared edge field of the burg's state
	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.State(5)),
		map[string]any{"id": 5, "ruler": "Duke Armand", "warState": "open war"}))

	after, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestInputsHash_IgnoresUndeclaredUpstreamFields(t *testing.T) {
	st := openTestStore(t)
	g := seedWorld(t, st)
	ctx := context.Background()

	before, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)

	// capital is not in the burg→state edge field list
	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.State(5)),
		map[string]any{"id": 5, "ruler": "Duke Armand", "warState": "border skirmish", "capital": "Velder City"}))

	after, err := InputsHash(ctx, st, g, ref.Burg(12))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInputsHash_MissingFactsIsUpstreamError(t *testing.T) {
	st := openTestStore(t)
	g := seedWorld(t, st)

	_, err := InputsHash(context.Background(), st, g, ref.Burg(99))
	var missing *MissingUpstreamError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "burg:99", missing.Node)
}
