// Package graph maintains the entity dependency graph and the dirty tracker.
//
// The graph is built once from the fact documents and has a fixed shape:
// each burg depends on its state, each state depends on the world. An edge
// "from depends-on to" means from must be regenerated when any of the listed
// fields of to change. The dirty tracker is the persisted set of entity ids
// whose artifacts are stale; it grows monotonically between regeneration runs
// and is cleared per-id only when that id's artifact lands successfully.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// Edge declares that From is regenerated when any of the listed Fields of To
// change. Edges are set once at build time and are acyclic by construction.
type Edge struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Fields []string `json:"fields,omitempty"`
}

// Graph is the persisted dependency graph document.
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Parent fields whose change invalidates dependents. A burg's artifact embeds
// these fields of its state; every state's artifact embeds them of the world.
var (
	stateFieldsOfWorld = []string{"ruler", "warState", "religionSpread"}
	burgFieldsOfState  = []string{"ruler", "warState"}
)

type burgFacts struct {
	ID      int  `json:"id"`
	StateID *int `json:"state_id"`
}

type stateFacts struct {
	ID int `json:"id"`
}

// Build constructs the graph from the fact documents in the store:
// one node per world/state/burg, a state→world edge per state, and a
// burg→state edge per burg that declares a parent state.
func Build(ctx context.Context, st *store.Store) (*Graph, error) {
	g := &Graph{Nodes: []string{ref.World.Node()}}

	stateKeys, err := st.List(ctx, store.PrefixFactsState)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	for _, key := range stateKeys {
		var facts stateFacts
		if _, err := st.GetJSON(ctx, key, &facts); err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
		node := ref.State(facts.ID).Node()
		g.Nodes = append(g.Nodes, node)
		g.Edges = append(g.Edges, Edge{From: node, To: ref.World.Node(), Fields: stateFieldsOfWorld})
	}

	burgKeys, err := st.List(ctx, store.PrefixFactsBurg)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	for _, key := range burgKeys {
		var facts burgFacts
		if _, err := st.GetJSON(ctx, key, &facts); err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
		node := ref.Burg(facts.ID).Node()
		g.Nodes = append(g.Nodes, node)
		if facts.StateID != nil {
			g.Edges = append(g.Edges, Edge{
				From:   node,
				To:     ref.State(*facts.StateID).Node(),
				Fields: burgFieldsOfState,
			})
		}
	}

	return g, nil
}

// Save persists the graph document.
func Save(ctx context.Context, st *store.Store, g *Graph) error {
	return st.PutJSON(ctx, store.KeyGraph, g)
}

// Load reads the persisted graph document. Returns an error if the graph has
// not been built yet.
func Load(ctx context.Context, st *store.Store) (*Graph, error) {
	var g Graph
	found, err := st.GetJSON(ctx, store.KeyGraph, &g)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("dependency graph not built (run graph build first)")
	}
	return &g, nil
}

// AffectedBy returns every node transitively dependent on the given node,
// in sorted order. It walks reverse edges (to → from) depth-first; the
// visited set guards against self-edges or accidental cycles if the graph
// shape is ever extended. The start node itself is not included.
func (g *Graph) AffectedBy(node string) []string {
	reverse := make(map[string][]string, len(g.Edges))
	for _, e := range g.Edges {
		reverse[e.To] = append(reverse[e.To], e.From)
	}

	affected := make(map[string]bool)
	stack := []string{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range reverse[n] {
			if !affected[dep] && dep != node {
				affected[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	out := make([]string, 0, len(affected))
	for n := range affected {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Closure returns the start nodes plus everything AffectedBy them,
// partitioned into burg and state ids (the world has no artifact of its own).
func (g *Graph) Closure(starts []ref.Ref) (burgs, states []int) {
	seen := make(map[string]bool)
	for _, r := range starts {
		seen[r.Node()] = true
		for _, dep := range g.AffectedBy(r.Node()) {
			seen[dep] = true
		}
	}

	for node := range seen {
		r, err := ref.Parse(node)
		if err != nil {
			continue
		}
		switch r.Kind {
		case ref.KindBurg:
			burgs = append(burgs, r.ID)
		case ref.KindState:
			states = append(states, r.ID)
		}
	}
	sort.Ints(burgs)
	sort.Ints(states)
	return burgs, states
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
