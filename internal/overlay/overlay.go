// Package overlay derives presentation-ready overlay documents from the
// world-state ledger. An overlay is the mutable campaign layer over a static
// canonical outline: multipliers instead of raw deltas, plus the status and
// hook context a renderer or a generation prompt needs.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/hook"
	"github.com/worldloom/worldloom/internal/ledger"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// BurgOverlay is the derived overlay for one burg.
type BurgOverlay struct {
	BurgID int `json:"burg_id"`
	// PopulationMultiplier is 1 plus the accumulated clamped delta, so it
	// stays within [0.1, 1.9].
	PopulationMultiplier float64         `json:"population_multiplier"`
	AssetsDestroyed      []string        `json:"assets_destroyed"`
	ActiveHooks          []hook.Instance `json:"active_hooks"`
	UpdatedAt            string          `json:"updated_at"`
}

// StateOverlay is the derived overlay for one state.
type StateOverlay struct {
	StateID         int                   `json:"state_id"`
	TradeMultiplier float64               `json:"trade_multiplier"`
	LawEnforcement  ledger.LawEnforcement `json:"law_enforcement"`
	Reputations     map[string]float64    `json:"reputations"`
	UpdatedAt       string                `json:"updated_at"`
}

// Builder derives overlays from the current ledger.
type Builder struct {
	st    *store.Store
	dirty *graph.Tracker
	log   *slog.Logger
	now   func() time.Time
}

// NewBuilder creates a Builder over the given store.
func NewBuilder(st *store.Store, dirty *graph.Tracker, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{st: st, dirty: dirty, log: log, now: time.Now}
}

// BuildDirty derives and persists overlays for every entity in the dirty set.
// Building an overlay does not clear the dirty mark; regeneration does.
func (b *Builder) BuildDirty(ctx context.Context) ([]ref.Ref, error) {
	d, err := b.dirty.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	refs := d.Refs()
	if len(refs) == 0 {
		b.log.Info("dirty set empty, no overlays to build")
		return nil, nil
	}
	if err := b.Build(ctx, refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// Build derives and persists overlays for the given entities in one
// transaction.
func (b *Builder) Build(ctx context.Context, refs []ref.Ref) error {
	ws, err := ledger.Load(ctx, b.st)
	if err != nil {
		return err
	}

	hooksByBurg, err := b.activeHooksByBurg(ctx)
	if err != nil {
		return err
	}

	now := b.now().UTC().Format(time.RFC3339)
	var batch store.Batch
	for _, r := range refs {
		switch r.Kind {
		case ref.KindBurg:
			batch.PutJSON(store.KeyOverlay(r), b.burgOverlay(ws, r.ID, hooksByBurg[r.ID], now))
		case ref.KindState:
			batch.PutJSON(store.KeyOverlay(r), b.stateOverlay(ws, r.ID, now))
		case ref.KindWorld:
			// the world has no ledger-derived overlay
		default:
			return fmt.Errorf("build overlay: unknown kind %q", r.Kind)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := b.st.Commit(ctx, &batch); err != nil {
		return fmt.Errorf("build overlays: %w", err)
	}

	b.log.Info("overlays built", "count", batch.Len())
	return nil
}

func (b *Builder) burgOverlay(ws *ledger.WorldState, burgID int, hooks []hook.Instance, now string) BurgOverlay {
	assets := ws.DestroyedAssets(burgID)
	if assets == nil {
		assets = []string{}
	}
	if hooks == nil {
		hooks = []hook.Instance{}
	}
	return BurgOverlay{
		BurgID:               burgID,
		PopulationMultiplier: 1 + ws.PopulationDelta(burgID),
		AssetsDestroyed:      assets,
		ActiveHooks:          hooks,
		UpdatedAt:            now,
	}
}

func (b *Builder) stateOverlay(ws *ledger.WorldState, stateID int, now string) StateOverlay {
	return StateOverlay{
		StateID:         stateID,
		TradeMultiplier: 1 + ws.TradeDelta(stateID),
		LawEnforcement:  ws.LawEnforcementFor(stateID),
		Reputations:     ws.ReputationsFor(stateID),
		UpdatedAt:       now,
	}
}

// activeHooksByBurg collects hook instances a renderer should surface:
// available leads and the active chain entry, never withdrawn or consumed.
func (b *Builder) activeHooksByBurg(ctx context.Context) (map[int][]hook.Instance, error) {
	var index hook.IndexDoc
	if _, err := b.st.GetJSON(ctx, store.KeyHooksAvailable, &index); err != nil {
		return nil, fmt.Errorf("load hook index: %w", err)
	}
	out := map[int][]hook.Instance{}
	for _, item := range index.Items {
		if item.Status == hook.StatusAvailable || item.Status == hook.StatusActive {
			out[item.BurgID] = append(out[item.BurgID], item)
		}
	}
	return out, nil
}
