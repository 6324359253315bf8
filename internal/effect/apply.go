package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/ledger"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// ErrAlreadyApplied is returned when a bundle's action id already has an
// applied-event record. Re-applying would double the ledger deltas.
var ErrAlreadyApplied = errors.New("action already applied")

// ErrEmptyBundle is returned for a bundle with no action id or no effects.
var ErrEmptyBundle = errors.New("empty effect bundle")

// QuestApplier executes quest-graph ops during apply and stages its document
// writes into the apply transaction. Implemented by the hook package.
type QuestApplier interface {
	ApplyOps(ctx context.Context, ops []QuestOp) ([]int, error)
	Flush(b *store.Batch) error
}

// Applier applies effect bundles to the world-state ledger.
type Applier struct {
	st     *store.Store
	dirty  *graph.Tracker
	quests QuestApplier
	log    *slog.Logger
	now    func() time.Time
}

// NewApplier creates an Applier. quests may be nil, in which case quest_graph
// effects are skipped with a warning.
func NewApplier(st *store.Store, dirty *graph.Tracker, quests QuestApplier, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{st: st, dirty: dirty, quests: quests, log: log, now: time.Now}
}

// ApplyResult reports what an apply changed.
type ApplyResult struct {
	ActionID string `json:"action_id"`
	// Applied counts the effects that reached the ledger or the quest graph.
	Applied int `json:"applied"`
	// SkippedTags lists unknown effect type tags that were skipped.
	SkippedTags []string `json:"skipped_tags,omitempty"`
	Affected    Affected `json:"affected"`
	// PartiallyReversible and Irreversible list the kinds in the bundle
	// whose rollback cannot fully restore the prior state.
	PartiallyReversible []Kind `json:"partially_reversible,omitempty"`
	Irreversible        []Kind `json:"irreversible,omitempty"`
}

// Apply validates nothing (the planner already boundary-validated the
// bundle), applies each effect to the ledger, derives the inverse bundle,
// and commits the new world state, the applied-event record and the dirty
// marks in one transaction.
func (a *Applier) Apply(ctx context.Context, bundle *Bundle) (*ApplyResult, error) {
	if bundle.ActionID == "" || len(bundle.Effects) == 0 {
		return nil, ErrEmptyBundle
	}
	if _, err := a.st.Get(ctx, store.KeyAppliedEvent(bundle.ActionID)); err == nil {
		return nil, fmt.Errorf("apply %s: %w", bundle.ActionID, ErrAlreadyApplied)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	ws, err := ledger.Load(ctx, a.st)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{ActionID: bundle.ActionID}
	affected := newAffectedSet()
	inverse := []Effect{}
	var b store.Batch

	for _, e := range bundle.Effects {
		if !e.Type.Valid() {
			a.log.Warn("unknown effect type, skipped",
				"action", bundle.ActionID, "type", string(e.Type))
			result.SkippedTags = append(result.SkippedTags, string(e.Type))
			continue
		}

		inv, err := a.applyOne(ctx, ws, e, affected)
		if err != nil {
			return nil, fmt.Errorf("apply %s effect %s: %w", bundle.ActionID, e.Type, err)
		}
		if inv != nil {
			inverse = append(inverse, *inv)
		}
		result.Applied++

		switch e.Type.Reversibility() {
		case PartiallyReversible:
			result.PartiallyReversible = appendKind(result.PartiallyReversible, e.Type)
		case Irreversible:
			result.Irreversible = appendKind(result.Irreversible, e.Type)
		}
	}

	at := a.now()
	ws.Touch(at)
	now := at.UTC().Format(time.RFC3339)
	result.Affected = affected.toAffected()

	record := AppliedEvent{
		ActionID:  bundle.ActionID,
		AppliedAt: now,
		Effects:   bundle.Effects,
		Inverse:   inverse,
		Affected:  result.Affected,
	}

	b.PutJSON(store.KeyWorldState, ws)
	b.PutJSON(store.KeyAppliedEvent(bundle.ActionID), record)
	if a.quests != nil {
		if err := a.quests.Flush(&b); err != nil {
			return nil, err
		}
	}
	if err := a.dirty.MarkInBatch(ctx, &b, result.Affected.Burgs, result.Affected.States); err != nil {
		return nil, err
	}
	if err := a.st.Commit(ctx, &b); err != nil {
		return nil, fmt.Errorf("apply %s: %w", bundle.ActionID, err)
	}

	a.log.Info("effects applied",
		"action", bundle.ActionID,
		"applied", result.Applied,
		"skipped", len(result.SkippedTags),
		"dirty_burgs", len(result.Affected.Burgs),
		"dirty_states", len(result.Affected.States))
	return result, nil
}

// applyOne mutates the ledger for one effect and returns its inverse effect,
// or nil when the inverse is a no-op.
func (a *Applier) applyOne(ctx context.Context, ws *ledger.WorldState, e Effect, affected *affectedSet) (*Effect, error) {
	switch e.Type {
	case KindPopulationDelta:
		burg, err := a.requireBurg(e)
		if err != nil {
			return nil, err
		}
		a.touchBurg(ctx, burg, affected)
		applied := ws.AddPopulationDelta(burg, e.Delta)
		return &Effect{Type: KindPopulationDelta, Target: e.Target, Delta: -applied}, nil

	case KindInfrastructure:
		burg, err := a.requireBurg(e)
		if err != nil {
			return nil, err
		}
		a.touchBurg(ctx, burg, affected)
		ws.DestroyAssets(burg, e.AssetsDestroyed)
		return nil, nil

	case KindEconomy:
		state, err := requireState(e)
		if err != nil {
			return nil, err
		}
		affected.addState(state)
		applied := ws.AddTradeDelta(state, e.TradeThroughputDelta)
		return &Effect{Type: KindEconomy, Target: e.Target, TradeThroughputDelta: -applied}, nil

	case KindMigration:
		if e.Target.Burg != nil {
			a.touchBurg(ctx, *e.Target.Burg, affected)
		}
		if e.Target.State != nil {
			affected.addState(*e.Target.State)
		}
		ws.AppendMigration(ledger.Migration{
			Timestamp: a.now().UTC().Format(time.RFC3339),
			Target:    e.Target,
			Refugees:  e.Refugees,
			Direction: e.Direction,
		})
		// the inverse is a compensating flow, not a deletion
		return &Effect{
			Type:      KindMigration,
			Target:    e.Target,
			Refugees:  e.Refugees,
			Direction: flipDirection(e.Direction),
		}, nil

	case KindReputation:
		state, err := requireState(e)
		if err != nil {
			return nil, err
		}
		affected.addState(state)
		applied := ws.AddReputation(state, e.Faction, e.Delta)
		return &Effect{Type: KindReputation, Target: e.Target, Faction: e.Faction, Delta: -applied}, nil

	case KindLawEnforcement:
		state, err := requireState(e)
		if err != nil {
			return nil, err
		}
		affected.addState(state)
		le := ledger.LawEnforcement{Status: ledger.LawStatus(e.Status)}
		if !le.Status.Valid() {
			return nil, fmt.Errorf("unknown law status %q", e.Status)
		}
		if e.DurationDays > 0 {
			until := a.now().UTC().AddDate(0, 0, e.DurationDays).Format(time.RFC3339)
			le.Until = &until
		}
		ws.SetLawEnforcement(state, le)
		// rolling back resets to none, the prior status is not restored
		return &Effect{Type: KindLawEnforcement, Target: e.Target, Status: string(ledger.LawNone)}, nil

	case KindQuestGraph:
		if a.quests == nil {
			a.log.Warn("quest_graph effect with no quest applier, skipped")
			return nil, nil
		}
		burgs, err := a.quests.ApplyOps(ctx, e.Ops)
		if err != nil {
			return nil, err
		}
		for _, burg := range burgs {
			a.touchBurg(ctx, burg, affected)
		}
		return nil, nil
	}
	return nil, nil
}

func (a *Applier) requireBurg(e Effect) (int, error) {
	if e.Target.Burg == nil {
		return 0, fmt.Errorf("%s effect without burg target", e.Type)
	}
	return *e.Target.Burg, nil
}

func requireState(e Effect) (int, error) {
	if e.Target.State == nil {
		return 0, fmt.Errorf("%s effect without state target", e.Type)
	}
	return *e.Target.State, nil
}

// touchBurg marks a burg affected along with its owning state, resolved from
// the canonical outline. A burg with no outline still marks itself.
func (a *Applier) touchBurg(ctx context.Context, burgID int, affected *affectedSet) {
	affected.addBurg(burgID)
	var outline struct {
		StateID *int `json:"state_id"`
	}
	found, err := a.st.GetJSON(ctx, store.KeyCanonOutline(ref.Burg(burgID)), &outline)
	if err != nil {
		a.log.Warn("outline lookup failed", "burg", burgID, "error", err)
		return
	}
	if found && outline.StateID != nil {
		affected.addState(*outline.StateID)
	}
}

func flipDirection(d string) string {
	if d == "in" {
		return "out"
	}
	return "in"
}

func appendKind(kinds []Kind, k Kind) []Kind {
	for _, have := range kinds {
		if have == k {
			return kinds
		}
	}
	return append(kinds, k)
}
