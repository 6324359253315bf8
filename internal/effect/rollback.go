package effect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/worldloom/worldloom/internal/ledger"
	"github.com/worldloom/worldloom/internal/store"
)

// ErrNotApplied is returned when rollback cannot find the applied-event
// record for the action (never applied, or already rolled back).
var ErrNotApplied = errors.New("no applied event for action")

// RollbackResult reports what a rollback restored and what it could not.
type RollbackResult struct {
	ActionID string `json:"action_id"`
	// Reversed counts the inverse effects replayed against the ledger.
	Reversed int `json:"reversed"`
	// PartiallyReversible and Irreversible list the applied kinds whose
	// ledger trace survives the rollback (migration log entries, destroyed
	// assets, quest-graph mutations).
	PartiallyReversible []Kind `json:"partially_reversible,omitempty"`
	Irreversible        []Kind `json:"irreversible,omitempty"`
}

// Rollback replays an applied event's stored inverse effects through the
// same clamp logic as forward apply, then archives the applied record. The
// ledger write and the archive move commit as one transaction.
//
// Rollback deliberately leaves the dirty set alone: the affected entities
// were marked dirty at apply time and still need regeneration to reflect the
// restored values.
func (a *Applier) Rollback(ctx context.Context, actionID string) (*RollbackResult, error) {
	var record AppliedEvent
	found, err := a.st.GetJSON(ctx, store.KeyAppliedEvent(actionID), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("rollback %s: %w", actionID, ErrNotApplied)
	}

	ws, err := ledger.Load(ctx, a.st)
	if err != nil {
		return nil, err
	}

	result := &RollbackResult{ActionID: actionID}
	for _, inv := range record.Inverse {
		if err := a.replayInverse(ws, inv); err != nil {
			return nil, fmt.Errorf("rollback %s effect %s: %w", actionID, inv.Type, err)
		}
		result.Reversed++
	}
	for _, e := range record.Effects {
		switch e.Type.Reversibility() {
		case PartiallyReversible:
			result.PartiallyReversible = appendKind(result.PartiallyReversible, e.Type)
		case Irreversible:
			result.Irreversible = appendKind(result.Irreversible, e.Type)
		}
	}

	ws.Touch(a.now())

	var b store.Batch
	b.PutJSON(store.KeyWorldState, ws)
	b.Rename(store.KeyAppliedEvent(actionID), store.KeyRolledBack(actionID))
	if err := a.st.Commit(ctx, &b); err != nil {
		return nil, fmt.Errorf("rollback %s: %w", actionID, err)
	}

	a.log.Info("event rolled back",
		"action", actionID,
		"reversed", result.Reversed,
		"irreversible", len(result.Irreversible))
	return result, nil
}

// replayInverse applies one stored inverse effect to the ledger. Inverse
// deltas were recorded pre-clamped, so re-clamping here is a no-op for them;
// it still guards hand-edited records.
func (a *Applier) replayInverse(ws *ledger.WorldState, inv Effect) error {
	switch inv.Type {
	case KindPopulationDelta:
		if inv.Target.Burg == nil {
			return fmt.Errorf("inverse without burg target")
		}
		ws.AddPopulationDelta(*inv.Target.Burg, inv.Delta)

	case KindEconomy:
		if inv.Target.State == nil {
			return fmt.Errorf("inverse without state target")
		}
		ws.AddTradeDelta(*inv.Target.State, inv.TradeThroughputDelta)

	case KindReputation:
		if inv.Target.State == nil {
			return fmt.Errorf("inverse without state target")
		}
		ws.AddReputation(*inv.Target.State, inv.Faction, inv.Delta)

	case KindMigration:
		ws.AppendMigration(ledger.Migration{
			Timestamp: a.now().UTC().Format(time.RFC3339),
			Target:    inv.Target,
			Refugees:  inv.Refugees,
			Direction: inv.Direction,
		})

	case KindLawEnforcement:
		if inv.Target.State == nil {
			return fmt.Errorf("inverse without state target")
		}
		ws.SetLawEnforcement(*inv.Target.State, ledger.LawEnforcement{Status: ledger.LawNone})

	default:
		return fmt.Errorf("unexpected inverse kind %q", inv.Type)
	}
	return nil
}
