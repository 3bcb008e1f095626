package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func agentWithHistory(pnls []float64) *Agent {
	a := &Agent{
		ID:             "a1",
		Capital:        10_000,
		InitialCapital: 10_000,
		Status:         StatusSimulation,
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, pnl := range pnls {
		a.Capital += pnl
		ts = ts.Add(24 * time.Hour)
		a.RecordPerformance(PerformanceSample{Timestamp: ts, Capital: a.Capital, PnL: pnl})
	}
	return a
}

func defaultPolicy() FitnessPolicy {
	return FitnessPolicy{
		ReturnWeight:     0.3,
		SharpeWeight:     0.4,
		DrawdownWeight:   0.2,
		VolatilityWeight: 0.1,
		ConsistencyBonus: 0.1,
		ConsistencyFloor: 0.65,
		MinHistory:       7,
	}
}

func TestAgent_RecordPerformance_Streaks(t *testing.T) {
	a := agentWithHistory([]float64{100, -50, -30})
	assert.Equal(t, 3, a.Age)
	assert.Equal(t, 2, a.DaysNegative)

	a.RecordPerformance(PerformanceSample{PnL: 10})
	assert.Equal(t, 0, a.DaysNegative)
}

func TestAgent_TotalReturn(t *testing.T) {
	a := agentWithHistory([]float64{1_000, 1_500})
	assert.InDelta(t, 0.25, a.TotalReturn(), 1e-9)

	zero := &Agent{}
	assert.Equal(t, 0.0, zero.TotalReturn())
}

func TestAgent_WinRate(t *testing.T) {
	a := agentWithHistory([]float64{100, -50, 100, 100})
	assert.InDelta(t, 0.75, a.WinRate(), 1e-9)

	assert.Equal(t, 0.0, (&Agent{}).WinRate())
}

func TestAgent_MaxDrawdown(t *testing.T) {
	a := agentWithHistory([]float64{1_000, -2_000, 500})
	// Peak 11000, trough 9000.
	assert.InDelta(t, -2_000.0/11_000.0, a.MaxDrawdown(), 1e-9)

	flat := agentWithHistory([]float64{100, 100, 100})
	assert.Equal(t, 0.0, flat.MaxDrawdown())
}

func TestAgent_Fitness_RequiresMinHistory(t *testing.T) {
	a := agentWithHistory([]float64{100, 120, 90})
	a.FitnessScore = 5 // stale score must be reset

	got := a.Fitness(defaultPolicy())
	assert.Equal(t, 0.0, got)
	assert.Equal(t, 0.0, a.FitnessScore)
}

func TestAgent_Fitness_RewardsConsistency(t *testing.T) {
	// Same Sharpe profile; the winner clears the 65% win-rate floor, the
	// mixed agent does not.
	winner := agentWithHistory([]float64{100, 140, 100, 140, 100, 140, 100, 140})
	mixed := agentWithHistory([]float64{300, -100, 300, -100, 300, -100, 300, -100})

	p := defaultPolicy()
	wf := winner.Fitness(p)
	mf := mixed.Fitness(p)

	assert.Greater(t, wf, 0.0)
	assert.Equal(t, wf, winner.FitnessScore)
	assert.Greater(t, wf, mf)
}

func TestAgent_Fitness_PenalizesDrawdown(t *testing.T) {
	steady := agentWithHistory([]float64{100, 120, 100, 120, 100, 120, 100, 120})
	crashed := agentWithHistory([]float64{100, 120, -3_000, 120, 100, 120, 100, 120})

	p := defaultPolicy()
	assert.Greater(t, steady.Fitness(p), crashed.Fitness(p))
}

func TestTrade_CapitalDelta(t *testing.T) {
	trade := Trade{
		Status:       TradeSuccess,
		InputAmount:  1_000,
		ActualReturn: 1_050,
		GasCostUSD:   12.50,
	}
	assert.InDelta(t, 37.50, trade.CapitalDelta(), 1e-9)

	trade.Status = TradeFailed
	assert.Equal(t, 0.0, trade.CapitalDelta())

	trade.Status = TradePending
	assert.Equal(t, 0.0, trade.CapitalDelta())
}

func TestNewCapitalPool_Partition(t *testing.T) {
	pool := NewCapitalPool(373_261, 0.437, 0.536, 0.027)
	assert.InDelta(t, 373_261*0.437, pool.StableReserve, 1e-6)
	assert.InDelta(t, 373_261*0.536, pool.ArenaCapital, 1e-6)
	assert.InDelta(t, 373_261*0.027, pool.ProvingCapital, 1e-6)
	assert.InDelta(t, pool.TotalCapital,
		pool.StableReserve+pool.ArenaCapital+pool.ProvingCapital, 1e-6)
}

func TestNewAgentMutated_ChainsCausality(t *testing.T) {
	ev := NewAgentMutated("child", "parent", map[string]float64{"x": 1}, "parent-event")
	assert.Equal(t, EventAgentMutated, ev.Type)
	assert.Equal(t, "child", ev.AgentID)
	assert.Equal(t, "parent-event", ev.CausedBy)
	assert.Equal(t, "parent", ev.Data["parent_id"])
}

func TestNewTradeSettled_CarriesDelta(t *testing.T) {
	trade := Trade{
		ID:           "t1",
		AgentID:      "a1",
		Status:       TradeSuccess,
		InputAmount:  100,
		ActualReturn: 130,
	}
	ev := NewTradeSettled(trade, "submit-event")
	assert.Equal(t, "submit-event", ev.CausedBy)
	assert.InDelta(t, 30.0, ev.Data["capital_delta"].(float64), 1e-9)
}
