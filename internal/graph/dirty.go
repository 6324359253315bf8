package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// DirtySet is the persisted set of stale entity ids. Ids are kept sorted so
// the document serializes deterministically.
type DirtySet struct {
	Burgs     []int  `json:"burgs"`
	States    []int  `json:"states"`
	UpdatedAt string `json:"updated_at"`
}

// Contains reports whether the entity is marked dirty.
func (d *DirtySet) Contains(r ref.Ref) bool {
	switch r.Kind {
	case ref.KindBurg:
		return containsInt(d.Burgs, r.ID)
	case ref.KindState:
		return containsInt(d.States, r.ID)
	}
	return false
}

// Refs returns the dirty entities, states first then burgs. States are
// regenerated before burgs so a burg's upstream inputs are fresh when its
// own unit runs.
func (d *DirtySet) Refs() []ref.Ref {
	out := make([]ref.Ref, 0, len(d.States)+len(d.Burgs))
	for _, id := range d.States {
		out = append(out, ref.State(id))
	}
	for _, id := range d.Burgs {
		out = append(out, ref.Burg(id))
	}
	return out
}

// Tracker reads and writes the persisted dirty set. Mark and Clear are
// read-modify-write cycles over one shared document; the mutex keeps
// concurrent per-unit clears from scheduler workers from overwriting each
// other with stale snapshots.
type Tracker struct {
	mu sync.Mutex
	st *store.Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(st *store.Store) *Tracker {
	return &Tracker{st: st}
}

// Snapshot loads the current dirty set, or an empty one if none persisted.
func (t *Tracker) Snapshot(ctx context.Context) (*DirtySet, error) {
	d := &DirtySet{Burgs: []int{}, States: []int{}}
	if _, err := t.st.GetJSON(ctx, store.KeyDirty, d); err != nil {
		return nil, fmt.Errorf("load dirty set: %w", err)
	}
	return d, nil
}

// Mark unions the given ids into the persisted dirty set.
func (t *Tracker) Mark(ctx context.Context, burgs, states []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	next := Merge(cur, burgs, states)
	if err := t.st.PutJSON(ctx, store.KeyDirty, next); err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return nil
}

// MarkInBatch computes the merged dirty set and queues the write on b,
// so apply/activation can persist it atomically with their other documents.
func (t *Tracker) MarkInBatch(ctx context.Context, b *store.Batch, burgs, states []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	b.PutJSON(store.KeyDirty, Merge(cur, burgs, states))
	return nil
}

// Clear removes a single id from the dirty set after its artifact was
// successfully regenerated. A partial regeneration failure must leave the id
// dirty, so this is intentionally per-id rather than wholesale.
func (t *Tracker) Clear(ctx context.Context, r ref.Ref) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	switch r.Kind {
	case ref.KindBurg:
		cur.Burgs = removeInt(cur.Burgs, r.ID)
	case ref.KindState:
		cur.States = removeInt(cur.States, r.ID)
	default:
		return nil
	}
	cur.UpdatedAt = nowISO()
	if err := t.st.PutJSON(ctx, store.KeyDirty, cur); err != nil {
		return fmt.Errorf("clear dirty %s: %w", r, err)
	}
	return nil
}

// Merge returns a new DirtySet with the ids unioned in, sorted, and the
// timestamp refreshed. The input set is not modified.
func Merge(cur *DirtySet, burgs, states []int) *DirtySet {
	return &DirtySet{
		Burgs:     unionInts(cur.Burgs, burgs),
		States:    unionInts(cur.States, states),
		UpdatedAt: nowISO(),
	}
}

func unionInts(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		seen[v] = true
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func removeInt(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
