package regen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// Rendered is the composed entity document: canonical outline, current
// overlay, and generated lore when present. It is derived locally and never
// costs a provider call.
type Rendered struct {
	Node       string          `json:"node"`
	Canon      json.RawMessage `json:"canon"`
	Overlay    json.RawMessage `json:"overlay,omitempty"`
	Lore       json.RawMessage `json:"lore,omitempty"`
	RenderedAt string          `json:"rendered_at"`
}

// Renderer composes rendered documents for dirty (or all) entities.
type Renderer struct {
	st    *store.Store
	dirty *graph.Tracker
	log   *slog.Logger
	now   func() time.Time
}

// NewRenderer creates a Renderer over the given store.
func NewRenderer(st *store.Store, dirty *graph.Tracker, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{st: st, dirty: dirty, log: log, now: time.Now}
}

// RenderDirty renders every dirty entity, or every entity with a canonical
// outline when all is set. A successful render clears the entity's dirty
// mark; a failed unit is logged, left dirty, and does not stop the batch.
func (r *Renderer) RenderDirty(ctx context.Context, all bool) ([]string, error) {
	var refs []ref.Ref
	var err error
	if all {
		refs, err = r.allRefs(ctx)
	} else {
		var d *graph.DirtySet
		d, err = r.dirty.Snapshot(ctx)
		if d != nil {
			refs = d.Refs()
		}
	}
	if err != nil {
		return nil, err
	}

	rendered := []string{}
	for _, rf := range refs {
		if err := ctx.Err(); err != nil {
			return rendered, err
		}
		if err := r.renderOne(ctx, rf); err != nil {
			r.log.Error("render failed, unit stays dirty", "node", rf.Node(), "error", err)
			continue
		}
		if err := r.dirty.Clear(ctx, rf); err != nil {
			return rendered, err
		}
		rendered = append(rendered, rf.Node())
	}

	r.log.Info("render finished", "rendered", len(rendered), "requested", len(refs))
	return rendered, nil
}

func (r *Renderer) renderOne(ctx context.Context, rf ref.Ref) error {
	outline, err := r.st.Get(ctx, store.KeyCanonOutline(rf))
	if err != nil {
		return &MissingUpstreamError{Node: rf.Node(), Key: store.KeyCanonOutline(rf)}
	}

	doc := Rendered{
		Node:       rf.Node(),
		Canon:      json.RawMessage(outline),
		RenderedAt: r.now().UTC().Format(time.RFC3339),
	}
	if ov, err := r.st.Get(ctx, store.KeyOverlay(rf)); err == nil {
		doc.Overlay = json.RawMessage(ov)
	}
	if lore, err := r.st.Get(ctx, store.KeyLore(rf)); err == nil {
		doc.Lore = json.RawMessage(lore)
	}

	return r.st.PutJSON(ctx, store.KeyRendered(rf), doc)
}

// allRefs lists every entity that has a canonical outline.
func (r *Renderer) allRefs(ctx context.Context) ([]ref.Ref, error) {
	var refs []ref.Ref
	appendPrefix := func(prefix string, kind func(int) ref.Ref) error {
		keys, err := r.st.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			id, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
			if err != nil {
				return fmt.Errorf("unexpected outline key %q", key)
			}
			refs = append(refs, kind(id))
		}
		return nil
	}
	// states first, matching the dirty set's regeneration order
	if err := appendPrefix(store.PrefixCanonState, ref.State); err != nil {
		return nil, err
	}
	if err := appendPrefix(store.PrefixCanonBurg, ref.Burg); err != nil {
		return nil, err
	}
	return refs, nil
}
