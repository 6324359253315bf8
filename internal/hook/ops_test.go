package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

func intp(v int) *int { return &v }

func TestOpSession_SpawnHookCreatesInstance(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	ctx := context.Background()

	require.NoError(t, st.PutJSON(ctx, store.KeyHookTemplate("hook_arson"),
		map[string]any{"hook_template_id": "hook_arson", "chain_id": "chain_smugglers"}))
	require.NoError(t, st.PutJSON(ctx, store.KeyCanonOutline(ref.Burg(12)),
		map[string]any{"burg_id": 12, "state_id": 5}))

	s := m.NewOpSession()
	burgs, err := s.ApplyOps(ctx, []effect.QuestOp{
		{Op: "spawn_hook", HookTemplateID: "hook_arson", BurgID: intp(12), Rationale: "granary fire"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{12}, burgs)

	var b store.Batch
	require.NoError(t, s.Flush(&b))
	require.NoError(t, st.Commit(ctx, &b))

	index, err := m.loadIndex(ctx)
	require.NoError(t, err)
	require.Len(t, index.Items, 1)
	inst := index.Items[0]
	assert.Equal(t, "chain_smugglers", inst.ChainID)
	assert.Equal(t, 12, inst.BurgID)
	assert.Equal(t, 5, inst.StateID)
	assert.Equal(t, StatusAvailable, inst.Status)

	var materialized Instance
	found, err := st.GetJSON(ctx, store.KeyMaterializedHook(12, inst.HookInstanceID), &materialized)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpSession_SpawnTwiceIsOneInstance(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	ctx := context.Background()
	require.NoError(t, st.PutJSON(ctx, store.KeyCanonOutline(ref.Burg(12)),
		map[string]any{"burg_id": 12, "state_id": 5}))

	s := m.NewOpSession()
	op := effect.QuestOp{Op: "spawn_hook", ChainID: "chain_generic",
		HookTemplateID: "hook_rumor", BurgID: intp(12), Rationale: "same rumor"}
	_, err := s.ApplyOps(ctx, []effect.QuestOp{op, op})
	require.NoError(t, err)

	var b store.Batch
	require.NoError(t, s.Flush(&b))
	require.NoError(t, st.Commit(ctx, &b))

	index, err := m.loadIndex(ctx)
	require.NoError(t, err)
	assert.Len(t, index.Items, 1)
}

func TestOpSession_OtherOpsLoggedAgainstChain(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)
	ctx := context.Background()

	s := m.NewOpSession()
	burgs, err := s.ApplyOps(ctx, []effect.QuestOp{
		{Op: "advance_step", ChainID: "chain_smugglers", Rationale: "cargo found"},
		{Op: "retarget", ChainID: "chain_smugglers", BurgID: intp(13)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{13}, burgs)

	var b store.Batch
	require.NoError(t, s.Flush(&b))
	require.NoError(t, st.Commit(ctx, &b))

	chains, err := m.loadChains(ctx)
	require.NoError(t, err)
	rec := chains.Chains["chain_smugglers"]
	require.Len(t, rec.Ops, 2)
	assert.Equal(t, "advance_step", rec.Ops[0].Op)
	assert.Equal(t, "retarget", rec.Ops[1].Op)
}

func TestOpSession_MalformedSpawnSkipped(t *testing.T) {
	st := openTestStore(t)
	m, _ := newTestManager(t, st)

	s := m.NewOpSession()
	burgs, err := s.ApplyOps(context.Background(), []effect.QuestOp{
		{Op: "spawn_hook", HookTemplateID: "hook_arson"},
	})
	require.NoError(t, err)
	assert.Empty(t, burgs)

	var b store.Batch
	require.NoError(t, s.Flush(&b))
	assert.Zero(t, b.Len())
}
