// Package ledger holds the cumulative world-state overlay.
//
// The ledger is independent of the static canonical facts: it accumulates the
// bounded numeric and status effects of applied events (population and trade
// deltas, destroyed assets, faction reputations, law enforcement, migrations).
// All numeric accumulations are clamp-then-store: each incoming per-event
// delta is clamped to its event bound, added to the stored value, and the sum
// is re-clamped to the outer bound. Entries are created lazily on first
// effect and reversed, never deleted, on rollback.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/worldloom/worldloom/internal/store"
)

// Clamp bounds for the accumulated ledger fields. The event bound applies to
// each incoming delta; the total bound applies to the stored sum.
const (
	PopulationEventBound = 0.15
	PopulationTotalBound = 0.9

	TradeEventBound = 0.4
	TradeTotalBound = 0.9

	ReputationEventBound = 50.0
	ReputationTotalBound = 100.0
)

// LawStatus is the closed set of law-enforcement statuses.
type LawStatus string

const (
	LawNone            LawStatus = "none"
	LawCurfew          LawStatus = "curfew"
	LawMartialLawLocal LawStatus = "martial_law_local"
)

// Valid reports whether s is a known status.
func (s LawStatus) Valid() bool {
	switch s {
	case LawNone, LawCurfew, LawMartialLawLocal:
		return true
	}
	return false
}

// LawEnforcement is the last-writer-wins law status for a state.
type LawEnforcement struct {
	Status LawStatus `json:"status"`
	Until  *string   `json:"until"`
}

// Target locates a migration entry (and, in effect bundles, an effect).
type Target struct {
	Burg  *int `json:"burg,omitempty"`
	State *int `json:"state,omitempty"`
}

// Migration is one append-only migration ledger entry.
type Migration struct {
	Timestamp string `json:"t"`
	Target    Target `json:"target"`
	Refugees  int    `json:"refugees"`
	Direction string `json:"direction"`
}

// WorldState is the persisted ledger document.
type WorldState struct {
	BurgPopulationDelta map[string]float64        `json:"burg_population_delta"`
	StateTradeDelta     map[string]float64        `json:"state_trade_delta"`
	AssetsDestroyed     map[string][]string       `json:"assets_destroyed"`
	Reputations         map[string]float64        `json:"reputations"`
	LawEnforcement      map[string]LawEnforcement `json:"law_enforcement"`
	Migrations          []Migration               `json:"migrations"`
	UpdatedAt           string                    `json:"updated_at"`
}

// New returns an empty ledger with all maps initialized.
func New() *WorldState {
	return &WorldState{
		BurgPopulationDelta: map[string]float64{},
		StateTradeDelta:     map[string]float64{},
		AssetsDestroyed:     map[string][]string{},
		Reputations:         map[string]float64{},
		LawEnforcement:      map[string]LawEnforcement{},
		Migrations:          []Migration{},
	}
}

// Load reads the ledger document, or returns a fresh one if none exists yet.
func Load(ctx context.Context, st *store.Store) (*WorldState, error) {
	w := New()
	if _, err := st.GetJSON(ctx, store.KeyWorldState, w); err != nil {
		return nil, fmt.Errorf("load world state: %w", err)
	}
	// Maps may come back nil from an older document shape.
	if w.BurgPopulationDelta == nil {
		w.BurgPopulationDelta = map[string]float64{}
	}
	if w.StateTradeDelta == nil {
		w.StateTradeDelta = map[string]float64{}
	}
	if w.AssetsDestroyed == nil {
		w.AssetsDestroyed = map[string][]string{}
	}
	if w.Reputations == nil {
		w.Reputations = map[string]float64{}
	}
	if w.LawEnforcement == nil {
		w.LawEnforcement = map[string]LawEnforcement{}
	}
	return w, nil
}

// Touch refreshes the document timestamp. Callers persist via store batches.
func (w *WorldState) Touch(at time.Time) {
	w.UpdatedAt = at.UTC().Format(time.RFC3339)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AddPopulationDelta clamps delta to the per-event bound, accumulates it into
// the burg's stored value (re-clamping the sum), and returns the clamped
// per-event delta actually applied. The inverse of the effect is the exact
// negation of that return value, not the net change of the stored sum.
func (w *WorldState) AddPopulationDelta(burgID int, delta float64) float64 {
	d := Clamp(delta, -PopulationEventBound, PopulationEventBound)
	key := strconv.Itoa(burgID)
	w.BurgPopulationDelta[key] = Clamp(w.BurgPopulationDelta[key]+d, -PopulationTotalBound, PopulationTotalBound)
	return d
}

// PopulationDelta returns the accumulated population delta for a burg.
func (w *WorldState) PopulationDelta(burgID int) float64 {
	return w.BurgPopulationDelta[strconv.Itoa(burgID)]
}

// AddTradeDelta accumulates a trade-throughput delta for a state, with the
// same clamp-then-store shape as population.
func (w *WorldState) AddTradeDelta(stateID int, delta float64) float64 {
	d := Clamp(delta, -TradeEventBound, TradeEventBound)
	key := strconv.Itoa(stateID)
	w.StateTradeDelta[key] = Clamp(w.StateTradeDelta[key]+d, -TradeTotalBound, TradeTotalBound)
	return d
}

// TradeDelta returns the accumulated trade delta for a state.
func (w *WorldState) TradeDelta(stateID int) float64 {
	return w.StateTradeDelta[strconv.Itoa(stateID)]
}

// AddReputation accumulates a faction reputation delta for a state.
func (w *WorldState) AddReputation(stateID int, faction string, delta float64) float64 {
	d := Clamp(delta, -ReputationEventBound, ReputationEventBound)
	key := reputationKey(stateID, faction)
	w.Reputations[key] = Clamp(w.Reputations[key]+d, -ReputationTotalBound, ReputationTotalBound)
	return d
}

// Reputation returns the accumulated reputation of a faction with a state.
func (w *WorldState) Reputation(stateID int, faction string) float64 {
	return w.Reputations[reputationKey(stateID, faction)]
}

func reputationKey(stateID int, faction string) string {
	return strconv.Itoa(stateID) + ":" + faction
}

// ReputationsFor returns every faction reputation recorded for a state,
// keyed by faction name.
func (w *WorldState) ReputationsFor(stateID int) map[string]float64 {
	prefix := strconv.Itoa(stateID) + ":"
	out := map[string]float64{}
	for key, v := range w.Reputations {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = v
		}
	}
	return out
}

// DestroyAssets unions the asset names into the burg's destroyed set.
// The set is monotonic: it never auto-shrinks, and rollback does not restore
// destroyed assets.
func (w *WorldState) DestroyAssets(burgID int, assets []string) {
	key := strconv.Itoa(burgID)
	seen := make(map[string]bool, len(w.AssetsDestroyed[key])+len(assets))
	for _, a := range w.AssetsDestroyed[key] {
		seen[a] = true
	}
	for _, a := range assets {
		seen[a] = true
	}
	merged := make([]string, 0, len(seen))
	for a := range seen {
		merged = append(merged, a)
	}
	sort.Strings(merged)
	w.AssetsDestroyed[key] = merged
}

// DestroyedAssets returns the destroyed-asset set for a burg.
func (w *WorldState) DestroyedAssets(burgID int) []string {
	return w.AssetsDestroyed[strconv.Itoa(burgID)]
}

// SetLawEnforcement overwrites the law status for a state (last-writer-wins).
func (w *WorldState) SetLawEnforcement(stateID int, le LawEnforcement) {
	w.LawEnforcement[strconv.Itoa(stateID)] = le
}

// LawEnforcementFor returns the law status for a state, defaulting to none.
func (w *WorldState) LawEnforcementFor(stateID int) LawEnforcement {
	if le, ok := w.LawEnforcement[strconv.Itoa(stateID)]; ok {
		return le
	}
	return LawEnforcement{Status: LawNone}
}

// AppendMigration appends one entry to the migration log.
func (w *WorldState) AppendMigration(m Migration) {
	w.Migrations = append(w.Migrations, m)
}
