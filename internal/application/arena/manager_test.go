package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

func testConfig() Config {
	return Config{
		TotalCapital: 373_261,
		StableFrac:   0.437,
		ArenaFrac:    0.536,
		ProvingFrac:  0.027,
		Fitness: domain.FitnessPolicy{
			ReturnWeight:     0.3,
			SharpeWeight:     0.4,
			DrawdownWeight:   0.2,
			VolatilityWeight: 0.1,
			ConsistencyBonus: 0.1,
			ConsistencyFloor: 0.65,
			MinHistory:       7,
		},
		Graduation: GraduationPolicy{
			MinFitness:         2.0,
			MinSharpe:          1.5,
			MinWinRate:         0.60,
			MaxDrawdownProving: -0.20,
			MaxDrawdownActive:  -0.25,
			MinAge:             30,
		},
		Kill: KillPolicy{
			NegativeFitnessDays: 30,
			MaxDrawdown:         -0.50,
			NegativeReturnAge:   90,
			MinSharpe:           0.5,
			MinSharpeAge:        60,
			RetirementAge:       365,
		},
		ProvingStake:          1_000,
		EliteFrac:             0.2,
		ActiveFrac:            0.3,
		EliteCapitalFrac:      0.60,
		ActiveCapitalFrac:     0.30,
		ChallengerCapitalFrac: 0.10,
		MutateTopN:            3,
		MutationJitter:        0.2,
		SpawnBatch:            5,
		Strategies:            []string{"yield-farmer", "tactical-trader"},
		Seed:                  7,
	}
}

func newTestManager(t *testing.T) (*Manager, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, testConfig()), store
}

// addAgent injects an agent directly into the roster for scenarios that
// need a prepared state.
func addAgent(m *Manager, agent *domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster[agent.ID] = agent
}

// steadyWinner builds a track record of consistent positive periods.
func steadyWinner(id string, periods int, createdAt time.Time) *domain.Agent {
	agent := &domain.Agent{
		ID:             id,
		DisplayName:    "yield-farmer-" + id,
		StrategyTag:    "yield-farmer",
		Params:         map[string]float64{"lookback": 14, "threshold": 0.5},
		Status:         domain.StatusSimulation,
		Capital:        10_000,
		InitialCapital: 10_000,
		CreatedAt:      createdAt,
	}
	ts := createdAt
	for i := 0; i < periods; i++ {
		pnl := 80.0
		if i%2 == 0 {
			pnl = 140.0
		}
		agent.Capital += pnl
		ts = ts.Add(24 * time.Hour)
		agent.RecordPerformance(domain.PerformanceSample{
			Timestamp: ts,
			Capital:   agent.Capital,
			PnL:       pnl,
		})
	}
	return agent
}

// steadyLoser builds a track record of consistent negative periods.
func steadyLoser(id string, periods int, createdAt time.Time) *domain.Agent {
	agent := &domain.Agent{
		ID:             id,
		DisplayName:    "tactical-trader-" + id,
		StrategyTag:    "tactical-trader",
		Params:         map[string]float64{"lookback": 7},
		Status:         domain.StatusSimulation,
		Capital:        10_000,
		InitialCapital: 10_000,
		CreatedAt:      createdAt,
	}
	ts := createdAt
	for i := 0; i < periods; i++ {
		pnl := -50.0
		if i%2 == 0 {
			pnl = -90.0
		}
		agent.Capital += pnl
		ts = ts.Add(24 * time.Hour)
		agent.RecordPerformance(domain.PerformanceSample{
			Timestamp: ts,
			Capital:   agent.Capital,
			PnL:       pnl,
		})
	}
	return agent
}

func TestManager_SpawnAgent(t *testing.T) {
	m, store := newTestManager(t)

	agent, err := m.SpawnAgent(context.Background(), "yield-farmer", map[string]float64{"lookback": 14})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSimulation, agent.Status)
	assert.Equal(t, 0.0, agent.Capital)
	assert.Equal(t, 0.0, agent.InitialCapital)
	assert.Contains(t, agent.DisplayName, "yield-farmer-")

	got, ok := m.GetAgent(agent.ID)
	require.True(t, ok)
	assert.Equal(t, agent.ID, got.ID)

	events, err := store.Query(context.Background(), ports.EventFilter{AgentID: agent.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAgentSpawned, events[0].Type)
	assert.Equal(t, "yield-farmer", events[0].Data["strategy"])
}

func TestManager_SpawnAgent_UnknownStrategy(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.SpawnAgent(context.Background(), "made-up", nil)
	assert.Error(t, err)
}

// GetAgent hands out copies: mutating the result must not leak into the
// roster.
func TestManager_GetAgent_ReturnsSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	spawned, err := m.SpawnAgent(context.Background(), "yield-farmer", map[string]float64{"lookback": 14})
	require.NoError(t, err)

	got, ok := m.GetAgent(spawned.ID)
	require.True(t, ok)
	got.Capital = -1
	got.Params["lookback"] = 999

	fresh, ok := m.GetAgent(spawned.ID)
	require.True(t, ok)
	assert.Equal(t, 0.0, fresh.Capital)
	assert.Equal(t, 14.0, fresh.Params["lookback"])
}

func TestManager_ApplyTradeDelta(t *testing.T) {
	m, _ := newTestManager(t)
	agent, err := m.SpawnAgent(context.Background(), "yield-farmer", nil)
	require.NoError(t, err)

	require.NoError(t, m.ApplyTradeDelta(agent.ID, 250))
	require.NoError(t, m.ApplyTradeDelta(agent.ID, -100))

	got, _ := m.GetAgent(agent.ID)
	assert.Equal(t, 150.0, got.Capital)

	assert.Error(t, m.ApplyTradeDelta("ghost", 10))
}

func TestManager_ApplyTradeDelta_RetiredAgent(t *testing.T) {
	m, _ := newTestManager(t)
	addAgent(m, &domain.Agent{ID: "r1", Status: domain.StatusRetired})

	assert.Error(t, m.ApplyTradeDelta("r1", 10))
}

func TestManager_Stats(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	winner := steadyWinner("w1", 40, base)
	winner.Status = domain.StatusActive
	addAgent(m, winner)
	addAgent(m, steadyLoser("l1", 40, base))
	addAgent(m, &domain.Agent{ID: "p1", Status: domain.StatusProving, Capital: 1_000})
	addAgent(m, &domain.Agent{ID: "r1", Status: domain.StatusRetired})

	stats := m.Stats()
	assert.Equal(t, 1, stats.AgentsActive)
	assert.Equal(t, 1, stats.AgentsProving)
	assert.Equal(t, 1, stats.AgentsSimulating)
	assert.Equal(t, 1, stats.AgentsRetired)
	assert.Greater(t, stats.ArenaReturn, 0.0)
	assert.Equal(t, winner.Capital+steadyLoser("x", 40, base).Capital+1_000, stats.Allocated)
	require.Len(t, stats.TopPerformers, 1)
	assert.Equal(t, "w1", stats.TopPerformers[0].ID)
	assert.Equal(t, 1, stats.TopPerformers[0].Rank)
}
