// Package regen drives artifact regeneration: an inputs-hash guard that makes
// repeated runs idempotent, a bounded-concurrency scheduler fanning out over
// the dirty set through the shared generation client, and plain rendering of
// entity documents that never touches the provider.
package regen

import (
	"context"
	"fmt"

	"github.com/worldloom/worldloom/internal/canon"
	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// Versions folded into every inputs hash. Bumping either invalidates all
// existing artifacts on the next run.
const (
	schemaVersion = "schema:v1"
	promptVersion = "prompt:v1"
)

// MissingUpstreamError marks a unit whose input documents are absent. The
// unit fails and stays dirty; the rest of the batch continues.
type MissingUpstreamError struct {
	Node string
	Key  string
}

func (e *MissingUpstreamError) Error() string {
	return fmt.Sprintf("missing upstream document %s for %s", e.Key, e.Node)
}

// upstreamInput is one dependency's contribution to the hash: the depended-on
// node and the values of exactly the fields the edge declares.
type upstreamInput struct {
	Node   string         `json:"node"`
	Fields map[string]any `json:"fields"`
}

// InputsHash computes the content hash of everything r's artifact is derived
// from: its own facts, the declared fields of each upstream dependency, and
// the schema/prompt versions. Two runs with identical inputs produce the same
// hash, which is what lets the scheduler skip unchanged work.
func InputsHash(ctx context.Context, st *store.Store, g *graph.Graph, r ref.Ref) (string, error) {
	facts := map[string]any{}
	found, err := st.GetJSON(ctx, store.KeyFacts(r), &facts)
	if err != nil {
		return "", err
	}
	if !found {
		return "", &MissingUpstreamError{Node: r.Node(), Key: store.KeyFacts(r)}
	}

	upstream := []upstreamInput{}
	for _, edge := range g.Edges {
		if edge.From != r.Node() {
			continue
		}
		to, err := ref.Parse(edge.To)
		if err != nil {
			return "", fmt.Errorf("graph edge %s -> %s: %w", edge.From, edge.To, err)
		}
		toFacts := map[string]any{}
		found, err := st.GetJSON(ctx, store.KeyFacts(to), &toFacts)
		if err != nil {
			return "", err
		}
		if !found {
			return "", &MissingUpstreamError{Node: r.Node(), Key: store.KeyFacts(to)}
		}
		fields := map[string]any{}
		for _, f := range edge.Fields {
			fields[f] = toFacts[f]
		}
		upstream = append(upstream, upstreamInput{Node: edge.To, Fields: fields})
	}

	return canon.HashOf(facts, upstream, schemaVersion, promptVersion)
}
