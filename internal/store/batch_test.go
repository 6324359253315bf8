package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_CommitAppliesAllWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var b Batch
	b.Put("state/world_state", []byte(`{"a":1}`))
	b.PutJSON("index/dirty", map[string]any{"burgs": []int{12}})
	require.NoError(t, s.Commit(ctx, &b))

	body, err := s.Get(ctx, "state/world_state")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	body, err = s.Get(ctx, "index/dirty")
	require.NoError(t, err)
	assert.JSONEq(t, `{"burgs":[12]}`, string(body))
}

func TestBatch_RenamePreservesBody(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "events/applied/evt_fire", []byte(`{"action_id":"evt_fire"}`)))

	var b Batch
	b.Rename("events/applied/evt_fire", "events/rolledback/evt_fire")
	require.NoError(t, s.Commit(ctx, &b))

	_, err := s.Get(ctx, "events/applied/evt_fire")
	assert.ErrorIs(t, err, ErrNotFound)

	body, err := s.Get(ctx, "events/rolledback/evt_fire")
	require.NoError(t, err)
	assert.Equal(t, `{"action_id":"evt_fire"}`, string(body))
}

func TestBatch_RenameMissingRollsBackEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var b Batch
	b.Put("state/world_state", []byte(`{"mutated":true}`))
	b.Rename("events/applied/nope", "events/rolledback/nope")
	err := s.Commit(ctx, &b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	// The put in the same batch must not be visible.
	_, err = s.Get(ctx, "state/world_state")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatch_MarshalErrorSurfacesAtCommit(t *testing.T) {
	s := openTestStore(t)

	var b Batch
	b.PutJSON("k", func() {}) // unmarshalable
	err := s.Commit(context.Background(), &b)
	require.Error(t, err)
}

func TestBatch_EmptyCommitIsNoop(t *testing.T) {
	s := openTestStore(t)
	var b Batch
	require.NoError(t, s.Commit(context.Background(), &b))
}
