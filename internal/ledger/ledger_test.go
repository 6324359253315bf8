package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTouch_SetsTimestampFromClock(t *testing.T) {
	w := &WorldState{}
	w.Touch(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-08-15T12:00:00Z", w.UpdatedAt)
}

func TestAddPopulationDelta_ClampsEventThenSum(t *testing.T) {
	w := New()

	// Input beyond the event bound is clamped before accumulation.
	applied := w.AddPopulationDelta(12, -0.5)
	assert.Equal(t, -PopulationEventBound, applied)
	assert.Equal(t, -PopulationEventBound, w.PopulationDelta(12))

	// The sum, not the individual delta, is clamped to the outer bound.
	for i := 0; i < 20; i++ {
		w.AddPopulationDelta(12, -0.15)
	}
	assert.Equal(t, -PopulationTotalBound, w.PopulationDelta(12))
}

func TestAddPopulationDelta_InverseRestoresExactly(t *testing.T) {
	w := New()
	applied := w.AddPopulationDelta(12, -0.08)
	assert.Equal(t, -0.08, applied)

	w.AddPopulationDelta(12, -applied)
	assert.Equal(t, 0.0, w.PopulationDelta(12))
}

func TestAccumulatedValuesStayInBounds(t *testing.T) {
	// Any sequence of pre-clamped deltas keeps stored values inside the
	// documented outer bounds.
	rng := rand.New(rand.NewSource(1))
	w := New()
	for i := 0; i < 500; i++ {
		w.AddPopulationDelta(1, (rng.Float64()-0.5)*2)
		w.AddTradeDelta(5, (rng.Float64()-0.5)*4)
		w.AddReputation(5, "guild", (rng.Float64()-0.5)*400)

		pop := w.PopulationDelta(1)
		assert.GreaterOrEqual(t, pop, -PopulationTotalBound)
		assert.LessOrEqual(t, pop, PopulationTotalBound)

		trade := w.TradeDelta(5)
		assert.GreaterOrEqual(t, trade, -TradeTotalBound)
		assert.LessOrEqual(t, trade, TradeTotalBound)

		rep := w.Reputation(5, "guild")
		assert.GreaterOrEqual(t, rep, -ReputationTotalBound)
		assert.LessOrEqual(t, rep, ReputationTotalBound)
	}
}

func TestDestroyAssets_MonotonicUnion(t *testing.T) {
	w := New()
	w.DestroyAssets(12, []string{"granary"})
	w.DestroyAssets(12, []string{"granary", "mill"})

	assert.Equal(t, []string{"granary", "mill"}, w.DestroyedAssets(12))
}

func TestSetLawEnforcement_LastWriterWins(t *testing.T) {
	w := New()
	until := "2026-09-07T00:00:00Z"
	w.SetLawEnforcement(5, LawEnforcement{Status: LawCurfew, Until: &until})
	w.SetLawEnforcement(5, LawEnforcement{Status: LawMartialLawLocal, Until: &until})

	assert.Equal(t, LawMartialLawLocal, w.LawEnforcementFor(5).Status)
	assert.Equal(t, LawNone, w.LawEnforcementFor(99).Status)
}

func TestLawStatus_Valid(t *testing.T) {
	assert.True(t, LawNone.Valid())
	assert.True(t, LawCurfew.Valid())
	assert.True(t, LawMartialLawLocal.Valid())
	assert.False(t, LawStatus("investigation").Valid())
}

func TestAppendMigration_AppendOnly(t *testing.T) {
	w := New()
	burg := 12
	w.AppendMigration(Migration{Timestamp: "t1", Target: Target{Burg: &burg}, Refugees: 40, Direction: "out"})
	w.AppendMigration(Migration{Timestamp: "t2", Target: Target{Burg: &burg}, Refugees: -40, Direction: "in"})

	assert.Len(t, w.Migrations, 2)
	assert.Equal(t, 40, w.Migrations[0].Refugees)
	assert.Equal(t, "in", w.Migrations[1].Direction)
}
