package arena

// manager.go — roster ownership and capital accounting.
//
// The Manager holds the only mutable reference to every agent. All reads
// hand out copies; all writes happen under one mutex, which doubles as the
// barrier between evolution cycles and trade settlement.

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// GraduationPolicy gates tier promotions.
type GraduationPolicy struct {
	MinFitness         float64 // both promotions
	MinSharpe          float64 // both promotions
	MinWinRate         float64 // simulation → proving only
	MaxDrawdownProving float64 // worst tolerated drawdown to enter proving
	MaxDrawdownActive  float64 // worst tolerated drawdown to enter the arena
	MinAge             int     // periods of track record required
}

// KillPolicy gates culling.
type KillPolicy struct {
	NegativeFitnessDays int     // retire after this many negative-PnL periods with fitness < 0
	MaxDrawdown         float64 // catastrophic drawdown, e.g. -0.50
	NegativeReturnAge   int     // retire if still under water at this age
	MinSharpe           float64 // Sharpe floor once MinSharpeAge is reached
	MinSharpeAge        int
	RetirementAge       int // periods before mandatory retirement
}

// Config tunes the arena.
type Config struct {
	TotalCapital float64
	StableFrac   float64
	ArenaFrac    float64
	ProvingFrac  float64

	Fitness    domain.FitnessPolicy
	Graduation GraduationPolicy
	Kill       KillPolicy

	ProvingStake float64 // real capital granted on entering proving

	EliteFrac  float64 // top fraction of the ranking, by head count
	ActiveFrac float64 // next fraction of the ranking

	EliteCapitalFrac      float64
	ActiveCapitalFrac     float64
	ChallengerCapitalFrac float64

	MutateTopN     int
	MutationJitter float64 // ±fraction applied to each numeric param
	SpawnBatch     int     // fresh spawns per periodic refresh
	Strategies     []string

	Seed int64
}

// Manager owns the agent roster and runs the evolutionary loop. It
// implements ports.AgentBook for the trading engine.
type Manager struct {
	mu     sync.Mutex
	roster map[string]*domain.Agent
	pool   domain.CapitalPool
	events ports.EventStore
	cfg    Config
	rng    rng

	// lastEvent tracks each agent's most recent event_id for causality
	// chaining.
	lastEvent map[string]string
}

// New creates an arena manager with an empty roster.
func New(events ports.EventStore, cfg Config) *Manager {
	return &Manager{
		roster:    make(map[string]*domain.Agent),
		pool:      domain.NewCapitalPool(cfg.TotalCapital, cfg.StableFrac, cfg.ArenaFrac, cfg.ProvingFrac),
		events:    events,
		cfg:       cfg,
		rng:       newRNG(cfg.Seed),
		lastEvent: make(map[string]string),
	}
}

// Pool returns the treasury partition. It never changes after startup.
func (m *Manager) Pool() domain.CapitalPool { return m.pool }

// SpawnAgent births a new agent into the simulation tier and records the
// event. Simulation agents hold no real capital; their track record comes
// from recorded performance samples.
func (m *Manager) SpawnAgent(ctx context.Context, strategy string, params map[string]float64) (domain.Agent, error) {
	if !m.knownStrategy(strategy) {
		return domain.Agent{}, fmt.Errorf("arena.SpawnAgent: unknown strategy %q", strategy)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spawnLocked(ctx, strategy, params)
}

func (m *Manager) spawnLocked(ctx context.Context, strategy string, params map[string]float64) (domain.Agent, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	agent := &domain.Agent{
		ID:          id,
		DisplayName: strategy + "-" + id[:8],
		StrategyTag: strategy,
		Params:      cloneParams(params),
		Status:      domain.StatusSimulation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.roster[id] = agent

	eventID, err := m.events.Append(ctx, domain.NewAgentSpawned(id, strategy, agent.Capital, agent.Params))
	if err != nil {
		delete(m.roster, id)
		return domain.Agent{}, fmt.Errorf("arena.SpawnAgent: append event: %w", err)
	}
	m.lastEvent[id] = eventID

	slog.Info("agent spawned", "agent", agent.DisplayName, "strategy", strategy, "capital", agent.Capital)
	return *agent, nil
}

// GetAgent returns a copy of the agent. Part of ports.AgentBook.
func (m *Manager) GetAgent(agentID string) (domain.Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.roster[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	return snapshot(agent), true
}

// ApplyTradeDelta adjusts an agent's capital after a settled trade. Part of
// ports.AgentBook; this is the only capital write path outside allocation.
func (m *Manager) ApplyTradeDelta(agentID string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.roster[agentID]
	if !ok {
		return fmt.Errorf("arena.ApplyTradeDelta: unknown agent %q", agentID)
	}
	if agent.Retired() {
		return fmt.Errorf("arena.ApplyTradeDelta: agent %q is retired", agentID)
	}

	agent.Capital += delta
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordPerformance appends one performance sample to an agent's track
// record.
func (m *Manager) RecordPerformance(agentID string, sample domain.PerformanceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.roster[agentID]
	if !ok {
		return fmt.Errorf("arena.RecordPerformance: unknown agent %q", agentID)
	}
	agent.RecordPerformance(sample)
	return nil
}

// Agents returns a copy of every agent, ranked by fitness. Retired agents
// sort last.
func (m *Manager) Agents() []domain.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Agent, 0, len(m.roster))
	for _, agent := range m.roster {
		out = append(out, snapshot(agent))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Retired() != out[j].Retired() {
			return !out[i].Retired()
		}
		if out[i].FitnessScore != out[j].FitnessScore {
			return out[i].FitnessScore > out[j].FitnessScore
		}
		return olderFirst(&out[i], &out[j])
	})
	return out
}

// Stats assembles the operator snapshot of the arena.
func (m *Manager) Stats() domain.ArenaStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.ArenaStats{Pool: m.pool}

	var activeCapital, activeInitial float64
	active := make([]*domain.Agent, 0, len(m.roster))
	for _, agent := range m.roster {
		switch agent.Status {
		case domain.StatusActive:
			stats.AgentsActive++
			activeCapital += agent.Capital
			activeInitial += agent.InitialCapital
			active = append(active, agent)
		case domain.StatusProving:
			stats.AgentsProving++
		case domain.StatusSimulation:
			stats.AgentsSimulating++
		case domain.StatusRetired:
			stats.AgentsRetired++
		}
		if !agent.Retired() {
			stats.Allocated += agent.Capital
		}
	}
	if activeInitial > 0 {
		stats.ArenaReturn = (activeCapital - activeInitial) / activeInitial
	}

	ranked := m.rankLocked(active)
	top := ranked
	if len(top) > 5 {
		top = top[:5]
	}
	for _, agent := range top {
		stats.TopPerformers = append(stats.TopPerformers, snapshot(agent))
	}
	return stats
}

// rankLocked scores and sorts the given agents by fitness, best first, and
// writes their ranks. Ties break on age then ID so ranking is stable across
// runs. Caller holds the lock.
func (m *Manager) rankLocked(agents []*domain.Agent) []*domain.Agent {
	for _, agent := range agents {
		agent.Fitness(m.cfg.Fitness)
	}
	ranked := make([]*domain.Agent, len(agents))
	copy(ranked, agents)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FitnessScore != ranked[j].FitnessScore {
			return ranked[i].FitnessScore > ranked[j].FitnessScore
		}
		return olderFirst(ranked[i], ranked[j])
	})
	for i, agent := range ranked {
		agent.Rank = i + 1
	}
	return ranked
}

// byStatusLocked collects live agents with the given status. Caller holds
// the lock.
func (m *Manager) byStatusLocked(status domain.AgentStatus) []*domain.Agent {
	out := make([]*domain.Agent, 0, len(m.roster))
	for _, agent := range m.roster {
		if agent.Status == status {
			out = append(out, agent)
		}
	}
	return out
}

func (m *Manager) knownStrategy(strategy string) bool {
	for _, s := range m.cfg.Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

func olderFirst(a, b *domain.Agent) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID) < 0
}

// snapshot deep-copies an agent so callers cannot reach roster state.
func snapshot(a *domain.Agent) domain.Agent {
	out := *a
	out.Params = cloneParams(a.Params)
	out.History = append([]domain.PerformanceSample(nil), a.History...)
	return out
}

func cloneParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
