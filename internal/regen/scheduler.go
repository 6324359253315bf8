package regen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldloom/worldloom/internal/genclient"
	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// Generator is the slice of the generation client the scheduler needs.
type Generator interface {
	Generate(ctx context.Context, req *genclient.Request) (*genclient.Response, error)
}

// Artifact is the persisted generated-lore document for one entity. The
// inputs hash is the guard: when the recomputed hash matches, the stored
// content is already up to date.
type Artifact struct {
	Node        string          `json:"node"`
	InputsHash  string          `json:"inputs_hash"`
	Content     json.RawMessage `json:"content"`
	Model       string          `json:"model,omitempty"`
	GeneratedAt string          `json:"generated_at"`
}

// LoreContent is the structured shape requested from the provider.
type LoreContent struct {
	Title   string `json:"title" jsonschema:"required"`
	Summary string `json:"summary" jsonschema:"required"`
	Body    string `json:"body" jsonschema:"required"`
}

// Scheduler fans regeneration out over a bounded worker pool. Workers share
// one generation client (and therefore one pacing gate); each unit of work is
// read-only against the ledger and graph and writes only its own artifact.
type Scheduler struct {
	st      *store.Store
	dirty   *graph.Tracker
	gen     Generator
	workers int
	log     *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a Scheduler with the given pool width (minimum 1).
func NewScheduler(st *store.Store, dirty *graph.Tracker, gen Generator, workers int, log *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{st: st, dirty: dirty, gen: gen, workers: workers, log: log, now: time.Now}
}

// RunResult summarizes one scheduler run.
type RunResult struct {
	// RunID is a sortable unique token correlating log lines of this run.
	RunID       string   `json:"run_id"`
	Regenerated []string `json:"regenerated"`
	Skipped     []string `json:"skipped"`
	Failed      []string `json:"failed"`
	// Unscheduled lists units never started because the run was cancelled.
	Unscheduled []string `json:"unscheduled,omitempty"`
}

// Run regenerates the given entities, or the whole dirty set when refs is
// empty, expanded either way through the dependency closure so dependents of
// a changed entity are regenerated too. Cancellation is cooperative: ctx is polled before each unit is
// handed to the pool, and in-flight units observe it through the generation
// call. A unit's failure leaves its dirty mark set and never stops the rest
// of the batch.
func (s *Scheduler) Run(ctx context.Context, refs []ref.Ref) (*RunResult, error) {
	if len(refs) == 0 {
		d, err := s.dirty.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		refs = d.Refs()
	}
	result := &RunResult{
		RunID:       uuid.Must(uuid.NewV7()).String(),
		Regenerated: []string{},
		Skipped:     []string{},
		Failed:      []string{},
	}
	if len(refs) == 0 {
		s.log.Info("nothing dirty, regeneration skipped", "run", result.RunID)
		return result, nil
	}
	log := s.log.With("run", result.RunID)

	g, err := graph.Load(ctx, s.st)
	if err != nil {
		return nil, err
	}

	// A state change invalidates every burg whose artifact embeds that
	// state's declared fields, so the start set expands through the
	// dependency closure before anything is scheduled. The expansion is
	// marked dirty first: a closure unit that fails keeps its mark and is
	// retried on the next run.
	burgs, states := g.Closure(refs)
	if err := s.dirty.Mark(ctx, burgs, states); err != nil {
		return nil, err
	}
	refs = closureRefs(states, burgs)

	log.Info("regeneration run starting", "units", len(refs), "workers", s.workers)

	type unitResult struct {
		node    string
		outcome outcome
	}

	jobs := make(chan ref.Ref)
	results := make(chan unitResult, len(refs))
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				results <- unitResult{node: r.Node(), outcome: s.process(ctx, g, r)}
			}
		}()
	}

	scheduled := 0
dispatch:
	for _, r := range refs {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- r:
			scheduled++
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for ur := range results {
		switch ur.outcome {
		case outcomeRegenerated:
			result.Regenerated = append(result.Regenerated, ur.node)
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, ur.node)
		case outcomeFailed:
			result.Failed = append(result.Failed, ur.node)
		}
	}
	for _, r := range refs[scheduled:] {
		result.Unscheduled = append(result.Unscheduled, r.Node())
	}

	log.Info("regeneration run finished",
		"regenerated", len(result.Regenerated),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"unscheduled", len(result.Unscheduled))
	return result, nil
}

// closureRefs orders the expanded closure states-first, the same
// upstream-before-downstream rule DirtySet.Refs follows.
func closureRefs(states, burgs []int) []ref.Ref {
	out := make([]ref.Ref, 0, len(states)+len(burgs))
	for _, id := range states {
		out = append(out, ref.State(id))
	}
	for _, id := range burgs {
		out = append(out, ref.Burg(id))
	}
	return out
}

type outcome int

const (
	outcomeRegenerated outcome = iota
	outcomeSkipped
	outcomeFailed
)

// process handles one entity: hash guard, generation, artifact write, dirty
// clear. Completed work is kept even when the run as a whole is cancelled.
func (s *Scheduler) process(ctx context.Context, g *graph.Graph, r ref.Ref) outcome {
	hash, err := InputsHash(ctx, s.st, g, r)
	if err != nil {
		s.log.Error("inputs hash failed, unit stays dirty", "node", r.Node(), "error", err)
		return outcomeFailed
	}

	var existing Artifact
	found, err := s.st.GetJSON(ctx, store.KeyLore(r), &existing)
	if err != nil {
		s.log.Error("artifact read failed", "node", r.Node(), "error", err)
		return outcomeFailed
	}
	if found && existing.InputsHash == hash {
		// unchanged inputs: the artifact is current, only the mark is stale
		if err := s.dirty.Clear(ctx, r); err != nil {
			s.log.Error("dirty clear failed", "node", r.Node(), "error", err)
			return outcomeFailed
		}
		s.log.Debug("hash match, generation skipped", "node", r.Node())
		return outcomeSkipped
	}

	content, model, err := s.generate(ctx, r)
	if err != nil {
		s.log.Error("generation failed, unit stays dirty", "node", r.Node(), "error", err)
		return outcomeFailed
	}

	artifact := Artifact{
		Node:        r.Node(),
		InputsHash:  hash,
		Content:     content,
		Model:       model,
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
	}
	var b store.Batch
	b.PutJSON(store.KeyLore(r), artifact)
	if err := s.st.Commit(ctx, &b); err != nil {
		s.log.Error("artifact write failed", "node", r.Node(), "error", err)
		return outcomeFailed
	}
	if err := s.dirty.Clear(ctx, r); err != nil {
		s.log.Error("dirty clear failed", "node", r.Node(), "error", err)
		return outcomeFailed
	}
	return outcomeRegenerated
}

func (s *Scheduler) generate(ctx context.Context, r ref.Ref) (json.RawMessage, string, error) {
	prompt, err := s.buildPrompt(ctx, r)
	if err != nil {
		return nil, "", err
	}
	schema, err := genclient.ResponseSchema(&LoreContent{})
	if err != nil {
		return nil, "", err
	}

	req := &genclient.Request{
		Entity:         r.Node(),
		Messages:       prompt,
		ResponseSchema: schema,
	}
	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return resp.Content, req.Model, nil
}

// buildPrompt assembles the generation context from the canonical outline and
// the current overlay. The outline is required; a missing overlay just means
// no events have touched this entity yet.
func (s *Scheduler) buildPrompt(ctx context.Context, r ref.Ref) ([]genclient.Message, error) {
	outline, err := s.st.Get(ctx, store.KeyCanonOutline(r))
	if err != nil {
		return nil, &MissingUpstreamError{Node: r.Node(), Key: store.KeyCanonOutline(r)}
	}

	content := fmt.Sprintf("Canonical outline for %s:\n%s", r.Node(), outline)
	if ov, err := s.st.Get(ctx, store.KeyOverlay(r)); err == nil {
		content += fmt.Sprintf("\n\nCurrent campaign overlay:\n%s", ov)
	}

	return []genclient.Message{
		{Role: "system", Content: "You write grounded fantasy gazetteer entries. Respect every fact and overlay value you are given."},
		{Role: "user", Content: content},
	}, nil
}
