package regen

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/genclient"
	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

type stubGen struct {
	calls   atomic.Int32
	fail    map[string]bool
	started chan string
	block   chan struct{}
}

func (s *stubGen) Generate(ctx context.Context, req *genclient.Request) (*genclient.Response, error) {
	if s.started != nil {
		s.started <- req.Entity
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.calls.Add(1)
	if s.fail != nil && s.fail[req.Entity] {
		return nil, errors.New("generation blew up")
	}
	return &genclient.Response{
		Content: json.RawMessage(`{"title":"t","summary":"s","body":"b"}`),
		Usage:   genclient.Usage{PromptTokens: 100, CompletionTokens: 50},
	}, nil
}

func newTestScheduler(t *testing.T, st *store.Store, gen Generator, workers int) (*Scheduler, *graph.Tracker) {
	t.Helper()
	tr := graph.NewTracker(st)
	return NewScheduler(st, tr, gen, workers, slog.New(slog.DiscardHandler)), tr
}

func TestRun_SecondRunIsHashMatchSkip(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{}
	s, tr := newTestScheduler(t, st, gen, 2)

	require.NoError(t, tr.Mark(ctx, []int{12}, nil))
	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"burg:12"}, res.Regenerated)
	assert.Equal(t, int32(1), gen.calls.Load())

	d, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, d.Contains(ref.Burg(12)))

	// unchanged inputs: the second run must not call the provider
	require.NoError(t, tr.Mark(ctx, []int{12}, nil))
	res, err = s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"burg:12"}, res.Skipped)
	assert.Equal(t, int32(1), gen.calls.Load())

	// the skip still clears the mark
	d, err = tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, d.Contains(ref.Burg(12)))
}

func TestRun_StateChangeRegeneratesDependentBurgs(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{}
	s, tr := newTestScheduler(t, st, gen, 1)

	// marking only the state must pull burg 12 in through the closure
	require.NoError(t, tr.Mark(ctx, nil, []int{5}))
	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"state:5", "burg:12"}, res.Regenerated)

	d, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, d.Contains(ref.State(5)))
	assert.False(t, d.Contains(ref.Burg(12)))
}

func TestRun_ExplicitStateRefExpandsClosure(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{fail: map[string]bool{"burg:12": true}}
	s, tr := newTestScheduler(t, st, gen, 1)

	res, err := s.Run(ctx, []ref.Ref{ref.State(5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"state:5"}, res.Regenerated)
	assert.Equal(t, []string{"burg:12"}, res.Failed)

	// the closure unit was marked before scheduling, so its failure
	// leaves a mark to retry even though the caller never named it
	d, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d.Contains(ref.Burg(12)))
	assert.False(t, d.Contains(ref.State(5)))
}

func TestRun_ChangedUpstreamRegenerates(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{}
	s, tr := newTestScheduler(t, st, gen, 1)

	require.NoError(t, tr.Mark(ctx, []int{12}, nil))
	_, err := s.Run(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, st.PutJSON(ctx, store.KeyFacts(ref.State(5)),
		map[string]any{"id": 5, "ruler": "Duke Armand", "warState": "open war"}))
	require.NoError(t, tr.Mark(ctx, []int{12}, nil))

	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"burg:12"}, res.Regenerated)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestRun_FailureIsolatedAndStaysDirty(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{fail: map[string]bool{"burg:12": true}}
	s, tr := newTestScheduler(t, st, gen, 2)

	require.NoError(t, tr.Mark(ctx, []int{12}, []int{5}))
	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"state:5"}, res.Regenerated)
	assert.Equal(t, []string{"burg:12"}, res.Failed)

	d, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d.Contains(ref.Burg(12)))
	assert.False(t, d.Contains(ref.State(5)))
}

func TestRun_MissingFactsFailsOnlyThatUnit(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx := context.Background()
	gen := &stubGen{}
	s, tr := newTestScheduler(t, st, gen, 1)

	// burg 99 has no facts document
	require.NoError(t, tr.Mark(ctx, []int{12, 99}, nil))
	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"burg:12"}, res.Regenerated)
	assert.Equal(t, []string{"burg:99"}, res.Failed)
}

func TestRun_CancellationStopsScheduling(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGen{block: make(chan struct{}), started: make(chan string, 2)}
	s, tr := newTestScheduler(t, st, gen, 1)

	require.NoError(t, tr.Mark(context.Background(), []int{12}, []int{5}))

	done := make(chan *RunResult, 1)
	go func() {
		res, err := s.Run(ctx, nil)
		require.NoError(t, err)
		done <- res
	}()

	// the single worker is blocked inside the first unit's generation call;
	// cancelling must keep the second unit from ever being scheduled
	assert.Equal(t, "state:5", <-gen.started)
	cancel()
	res := <-done
	assert.Empty(t, res.Regenerated)
	require.Len(t, res.Failed, 1)
	assert.Len(t, res.Unscheduled, 1)

	d, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Contains(ref.Burg(12)))
	assert.True(t, d.Contains(ref.State(5)))
}

func TestRun_EmptyDirtySet(t *testing.T) {
	st := openTestStore(t)
	seedWorld(t, st)
	gen := &stubGen{}
	s, _ := newTestScheduler(t, st, gen, 2)

	res, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Regenerated)
	assert.Zero(t, gen.calls.Load())
}
