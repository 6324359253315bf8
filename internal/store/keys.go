package store

import (
	"fmt"

	"github.com/worldloom/worldloom/internal/ref"
)

// Well-known document keys. The layout mirrors the corpus directory shape:
// canon outlines are the static canonical facts, state documents are the
// mutable campaign overlays, index documents drive regeneration.
const (
	KeyGraph           = "index/graph"
	KeyDirty           = "index/dirty"
	KeyLinkSuggestions = "index/link_suggestions"
	KeyWorldState      = "state/world_state"
	KeyHooksAvailable  = "state/hooks_available"
	KeyQuestsActive    = "state/quests_active"
)

// Prefixes for List scans.
const (
	PrefixFactsBurg     = "facts/burg/"
	PrefixFactsState    = "facts/state/"
	PrefixCanonBurg     = "canon/burg/"
	PrefixCanonState    = "canon/state/"
	PrefixHookTemplates = "quests/hooks/"
	PrefixApplied       = "events/applied/"
)

// KeyPlayerAction is the GM/player event document submitted for planning.
func KeyPlayerAction(actionID string) string { return "events/player/" + actionID }

// KeyProposedEffects is the planner's proposed bundle awaiting apply.
func KeyProposedEffects(actionID string) string { return "effects/proposed/" + actionID }

// KeyAppliedEvent is the durable applied-event record required for rollback.
func KeyAppliedEvent(actionID string) string { return PrefixApplied + actionID }

// KeyRolledBack is the archive location for an applied record after rollback.
func KeyRolledBack(actionID string) string { return "events/rolledback/" + actionID }

// KeyActivationAudit records a chain activation for audit.
func KeyActivationAudit(chainID, hookInstanceID string) string {
	return fmt.Sprintf("events/quests/activate_%s_%s", chainID, hookInstanceID)
}

// KeyHookTemplate is a quest hook template document.
func KeyHookTemplate(templateID string) string { return PrefixHookTemplates + templateID }

// KeyMaterializedHook is the per-burg materialized hook instance document.
func KeyMaterializedHook(burgID int, hookInstanceID string) string {
	return fmt.Sprintf("hooks/materialized/%d/%s", burgID, hookInstanceID)
}

// KeyFacts is the derived fact document for an entity.
func KeyFacts(r ref.Ref) string {
	if r.Kind == ref.KindWorld {
		return "facts/world/world"
	}
	return fmt.Sprintf("facts/%s/%d", r.Kind, r.ID)
}

// KeyCanonOutline is the canonical outline document for an entity.
func KeyCanonOutline(r ref.Ref) string {
	if r.Kind == ref.KindWorld {
		return "canon/world/outline"
	}
	return fmt.Sprintf("canon/%s/%d", r.Kind, r.ID)
}

// KeyOverlay is the ledger-derived overlay document for an entity.
func KeyOverlay(r ref.Ref) string { return fmt.Sprintf("overlays/%s/%d", r.Kind, r.ID) }

// KeyLore is the generated lore artifact for an entity, hash-guarded.
func KeyLore(r ref.Ref) string { return fmt.Sprintf("lore/%s/%d", r.Kind, r.ID) }

// KeyRendered is the composed rendered artifact for an entity.
func KeyRendered(r ref.Ref) string { return fmt.Sprintf("rendered/%s/%d", r.Kind, r.ID) }

// KeyUsageLog is the ndjson usage log for a given day ("2026-08-31").
func KeyUsageLog(day string) string { return "index/runs/run-" + day }
