package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ledger"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// seedDB creates a store file with outlines and a proposed bundle for
// evt_fire, and returns its path.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worldloom.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.PutJSON(ctx, store.KeyCanonOutline(ref.Burg(12)),
		map[string]any{"burg_id": 12, "state_id": 5, "name": "Thornmouth"}))
	require.NoError(t, st.Put(ctx, store.KeyProposedEffects("evt_fire"), []byte(`{
		"action_id": "evt_fire",
		"effects": [
			{"type": "population_delta", "target": {"burg": 12}, "delta": -0.08},
			{"type": "infrastructure", "target": {"burg": 12}, "assets_destroyed": ["granary"]}
		]
	}`)))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestApplyCommand_EndToEnd(t *testing.T) {
	db := seedDB(t)

	out, err := runCommand(t, "apply", "--id", "evt_fire", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	ws, err := ledger.Load(ctx, st)
	require.NoError(t, err)
	assert.InDelta(t, -0.08, ws.PopulationDelta(12), 1e-12)
	assert.Equal(t, []string{"granary"}, ws.DestroyedAssets(12))

	d, err := graph.NewTracker(st).Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d.Contains(ref.Burg(12)))
	assert.True(t, d.Contains(ref.State(5)))
}

func TestApplyCommand_MissingBundle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "worldloom.db")

	_, err := runCommand(t, "apply", "--id", "evt_nope", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRollbackCommand_EndToEnd(t *testing.T) {
	db := seedDB(t)

	_, err := runCommand(t, "apply", "--id", "evt_fire", "--db", db)
	require.NoError(t, err)

	out, err := runCommand(t, "rollback", "--id", "evt_fire", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "not fully restored: infrastructure")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	ws, err := ledger.Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ws.PopulationDelta(12))
	assert.Equal(t, []string{"granary"}, ws.DestroyedAssets(12))

	var record effect.AppliedEvent
	found, err := st.GetJSON(ctx, store.KeyRolledBack("evt_fire"), &record)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRollbackCommand_UnknownAction(t *testing.T) {
	db := seedDB(t)

	_, err := runCommand(t, "rollback", "--id", "evt_ghost", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
