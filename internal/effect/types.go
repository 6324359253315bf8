// Package effect implements the event-effect machinery: the typed effect
// union, boundary validation of incoming bundles, forward application against
// the ledger, and rollback of applied events.
package effect

import (
	"sort"

	"github.com/worldloom/worldloom/internal/ledger"
)

// Kind tags an effect in a bundle. The set is closed; anything else is
// treated as an unknown tag and skipped with a warning (a logged
// compatibility shim, never fatal).
type Kind string

const (
	KindPopulationDelta Kind = "population_delta"
	KindInfrastructure  Kind = "infrastructure"
	KindEconomy         Kind = "economy"
	KindMigration       Kind = "migration"
	KindReputation      Kind = "reputation"
	KindLawEnforcement  Kind = "law_enforcement"
	KindQuestGraph      Kind = "quest_graph"
)

// Valid reports whether k is a known effect kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPopulationDelta, KindInfrastructure, KindEconomy, KindMigration,
		KindReputation, KindLawEnforcement, KindQuestGraph:
		return true
	}
	return false
}

// Reversibility is an explicit, typed property of each effect kind.
type Reversibility int

const (
	// Reversible effects restore the exact pre-apply ledger value on rollback.
	Reversible Reversibility = iota
	// PartiallyReversible effects leave a trace: migration appends a
	// sign-flipped entry, law enforcement resets to none losing the prior
	// status.
	PartiallyReversible
	// Irreversible effects have a no-op inverse: destroyed assets stay
	// destroyed, quest-graph mutations are not rolled back automatically.
	Irreversible
)

func (r Reversibility) String() string {
	switch r {
	case Reversible:
		return "reversible"
	case PartiallyReversible:
		return "partially_reversible"
	default:
		return "irreversible"
	}
}

// Reversibility classifies what rollback can restore for this kind.
func (k Kind) Reversibility() Reversibility {
	switch k {
	case KindPopulationDelta, KindEconomy, KindReputation:
		return Reversible
	case KindMigration, KindLawEnforcement:
		return PartiallyReversible
	default:
		return Irreversible
	}
}

// Target aliases the ledger's target shape; bundles and migration entries
// share the same wire form.
type Target = ledger.Target

// QuestOp is one quest-graph operation carried by a quest_graph effect.
// spawn_hook materializes a hook instance; every other op is logged against
// its chain.
type QuestOp struct {
	Op             string `json:"op"`
	ChainID        string `json:"chain_id,omitempty"`
	HookTemplateID string `json:"hook_template_id,omitempty"`
	BurgID         *int   `json:"burg_id,omitempty"`
	Rationale      string `json:"rationale,omitempty"`
}

// Effect is the tagged union over all effect kinds. Only the fields relevant
// to the Type are populated; the rest stay at their zero values.
type Effect struct {
	Type   Kind   `json:"type"`
	Target Target `json:"target,omitempty"`

	// population_delta, reputation
	Delta float64 `json:"delta,omitempty"`

	// infrastructure
	AssetsDestroyed []string `json:"assets_destroyed,omitempty"`

	// economy
	TradeThroughputDelta float64 `json:"trade_throughput_delta,omitempty"`

	// migration
	Refugees  int    `json:"refugees,omitempty"`
	Direction string `json:"direction,omitempty"`

	// reputation
	Faction string `json:"faction,omitempty"`

	// law_enforcement
	Status       string `json:"status,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`

	// quest_graph
	Ops []QuestOp `json:"ops,omitempty"`
}

// Bundle is the effect bundle produced by the planner and consumed by Apply.
type Bundle struct {
	ActionID    string   `json:"action_id"`
	Effects     []Effect `json:"effects"`
	GeneratedAt string   `json:"generated_at,omitempty"`
}

// Affected lists the entities an applied event touched. Drives dirty marking
// and is persisted for audit and rollback.
type Affected struct {
	Burgs  []int `json:"burgs"`
	States []int `json:"states"`
}

// AppliedEvent is the durable record of one applied bundle. It is persisted
// in the same transaction as the ledger write; rollback replays Inverse.
type AppliedEvent struct {
	ActionID  string   `json:"action_id"`
	AppliedAt string   `json:"applied_at"`
	Effects   []Effect `json:"effects"`
	Inverse   []Effect `json:"inverse"`
	Affected  Affected `json:"affected"`
}

type affectedSet struct {
	burgs  map[int]bool
	states map[int]bool
}

func newAffectedSet() *affectedSet {
	return &affectedSet{burgs: map[int]bool{}, states: map[int]bool{}}
}

func (a *affectedSet) addBurg(id int)  { a.burgs[id] = true }
func (a *affectedSet) addState(id int) { a.states[id] = true }

func (a *affectedSet) toAffected() Affected {
	out := Affected{Burgs: []int{}, States: []int{}}
	for id := range a.burgs {
		out.Burgs = append(out.Burgs, id)
	}
	for id := range a.states {
		out.States = append(out.States, id)
	}
	sort.Ints(out.Burgs)
	sort.Ints(out.States)
	return out
}
