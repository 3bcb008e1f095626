package arena

// evolution.go — the evolutionary loop: graduate, allocate, cull, respawn,
// mutate. One cycle runs under the roster lock from start to finish, so the
// trading engine never observes a half-applied cycle.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// CycleReport summarizes one evolution cycle.
type CycleReport struct {
	Killed     int
	Spawned    int
	Graduated  int
	Mutated    int
	Active     int
	Proving    int
	Simulating int
}

// RunEvolutionCycle executes one full cycle: graduations first so promoted
// agents take part in allocation, then allocation, culling with simulation
// respawns, and mutation of the top performers.
func (m *Manager) RunEvolutionCycle(ctx context.Context) (CycleReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Info("starting evolution cycle")
	var report CycleReport

	graduated, err := m.graduateLocked(ctx)
	if err != nil {
		return report, fmt.Errorf("arena.RunEvolutionCycle: %w", err)
	}
	report.Graduated = graduated

	if _, err := m.allocateLocked(ctx); err != nil {
		// An allocation overflow is recorded and skipped; prior balances
		// stand and the rest of the cycle proceeds.
		var allocErr *domain.AllocationError
		if !errors.As(err, &allocErr) {
			return report, fmt.Errorf("arena.RunEvolutionCycle: %w", err)
		}
		slog.Error("allocation rejected, keeping prior balances", "err", err)
	}

	killed, respawned, err := m.cullLocked(ctx)
	if err != nil {
		return report, fmt.Errorf("arena.RunEvolutionCycle: %w", err)
	}
	report.Killed = killed
	report.Spawned = respawned

	mutated, err := m.mutateTopLocked(ctx)
	if err != nil {
		return report, fmt.Errorf("arena.RunEvolutionCycle: %w", err)
	}
	report.Mutated = mutated
	report.Spawned += mutated

	report.Active = len(m.byStatusLocked(domain.StatusActive))
	report.Proving = len(m.byStatusLocked(domain.StatusProving))
	report.Simulating = len(m.byStatusLocked(domain.StatusSimulation))

	if _, err := m.events.Append(ctx, domain.NewEvolutionCycleComplete(
		report.Killed, report.Spawned, report.Graduated, report.Mutated,
		report.Active, report.Proving, report.Simulating)); err != nil {
		return report, fmt.Errorf("arena.RunEvolutionCycle: append summary: %w", err)
	}

	slog.Info("evolution cycle complete",
		"killed", report.Killed, "spawned", report.Spawned,
		"graduated", report.Graduated, "mutated", report.Mutated,
		"active", report.Active, "proving", report.Proving, "simulating", report.Simulating)
	return report, nil
}

// SpawnBatch births a fresh batch of agents, cycling through the configured
// strategies. Used by the periodic refresh.
func (m *Manager) SpawnBatch(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	spawned := 0
	for i := 0; i < m.cfg.SpawnBatch; i++ {
		strategy := m.cfg.Strategies[m.rng.intn(len(m.cfg.Strategies))]
		if _, err := m.spawnLocked(ctx, strategy, nil); err != nil {
			return spawned, fmt.Errorf("arena.SpawnBatch: %w", err)
		}
		spawned++
	}
	return spawned, nil
}

// graduateLocked promotes simulation agents to proving and proving agents
// to the arena. Promotion order is deterministic: oldest first.
func (m *Manager) graduateLocked(ctx context.Context) (int, error) {
	pol := m.cfg.Graduation
	graduated := 0

	for _, agent := range sortedOldest(m.byStatusLocked(domain.StatusSimulation)) {
		agent.Fitness(m.cfg.Fitness)
		ready := agent.FitnessScore > pol.MinFitness &&
			agent.SharpeRatio() > pol.MinSharpe &&
			agent.WinRate() > pol.MinWinRate &&
			agent.MaxDrawdown() > pol.MaxDrawdownProving &&
			agent.Age >= pol.MinAge
		if !ready {
			continue
		}
		if err := m.promoteLocked(ctx, agent, domain.StatusProving, m.cfg.ProvingStake); err != nil {
			return graduated, err
		}
		graduated++
	}

	for _, agent := range sortedOldest(m.byStatusLocked(domain.StatusProving)) {
		agent.Fitness(m.cfg.Fitness)
		ready := agent.Capital > agent.InitialCapital &&
			agent.FitnessScore > pol.MinFitness &&
			agent.SharpeRatio() > pol.MinSharpe &&
			agent.Age >= pol.MinAge &&
			agent.MaxDrawdown() > pol.MaxDrawdownActive
		if !ready {
			continue
		}
		if err := m.promoteLocked(ctx, agent, domain.StatusActive, arenaEntryStake(agent)); err != nil {
			return graduated, err
		}
		graduated++
	}

	return graduated, nil
}

// arenaEntryStake scales the arena entry grant with proving performance,
// between $5K and $20K.
func arenaEntryStake(agent *domain.Agent) float64 {
	mult := agent.TotalReturn() * 100
	if mult < 5 {
		mult = 5
	}
	if mult > 20 {
		mult = 20
	}
	return mult * 1000
}

func (m *Manager) promoteLocked(ctx context.Context, agent *domain.Agent, to domain.AgentStatus, stake float64) error {
	from := agent.Status
	agent.Status = to
	agent.Capital = stake
	agent.InitialCapital = stake
	agent.UpdatedAt = time.Now().UTC()

	eventID, err := m.events.Append(ctx, domain.NewAgentGraduated(agent.ID, from, to, stake, agent.FitnessScore))
	if err != nil {
		return fmt.Errorf("append AgentGraduated for %s: %w", agent.ID, err)
	}
	m.lastEvent[agent.ID] = eventID

	slog.Info("agent graduated", "agent", agent.DisplayName, "from", from, "to", to, "capital", stake)
	return nil
}

// cullLocked retires agents failing the kill policy. A killed simulation
// agent is replaced by a fresh spawn of the same strategy so the simulation
// population never drains.
func (m *Manager) cullLocked(ctx context.Context) (killed, respawned int, err error) {
	for _, status := range []domain.AgentStatus{domain.StatusSimulation, domain.StatusProving, domain.StatusActive} {
		for _, agent := range sortedOldest(m.byStatusLocked(status)) {
			agent.Fitness(m.cfg.Fitness)
			reason := m.killReason(agent)
			if reason == "" {
				continue
			}

			agent.Status = domain.StatusRetired
			agent.Tier = ""
			finalCapital := agent.Capital
			agent.Capital = 0
			agent.UpdatedAt = time.Now().UTC()

			eventID, aerr := m.events.Append(ctx, domain.NewAgentKilled(agent.ID, reason, finalCapital, agent.FitnessScore))
			if aerr != nil {
				return killed, respawned, fmt.Errorf("append AgentKilled for %s: %w", agent.ID, aerr)
			}
			m.lastEvent[agent.ID] = eventID
			killed++

			slog.Info("agent killed", "agent", agent.DisplayName, "status", status,
				"reason", reason, "fitness", fmt.Sprintf("%.2f", agent.FitnessScore))

			if status == domain.StatusSimulation {
				if _, serr := m.spawnLocked(ctx, agent.StrategyTag, nil); serr != nil {
					return killed, respawned, serr
				}
				respawned++
			}
		}
	}
	return killed, respawned, nil
}

// killReason returns why the agent must retire, or "" to keep it.
func (m *Manager) killReason(agent *domain.Agent) string {
	pol := m.cfg.Kill
	switch {
	case agent.FitnessScore < 0 && agent.DaysNegative >= pol.NegativeFitnessDays:
		return fmt.Sprintf("fitness negative for %d periods", agent.DaysNegative)
	case agent.MaxDrawdown() < pol.MaxDrawdown:
		return fmt.Sprintf("drawdown %.1f%% past limit", agent.MaxDrawdown()*100)
	case agent.TotalReturn() < 0 && agent.Age >= pol.NegativeReturnAge:
		return fmt.Sprintf("negative return at age %d", agent.Age)
	case agent.Age >= pol.MinSharpeAge && agent.SharpeRatio() < pol.MinSharpe:
		return fmt.Sprintf("sharpe %.2f below floor", agent.SharpeRatio())
	case agent.Age > pol.RetirementAge:
		return "retirement age reached"
	default:
		return ""
	}
}

// mutateTopLocked spawns perturbed variants of the best active agents. The
// variant's spawn event is chained to the parent's latest event.
func (m *Manager) mutateTopLocked(ctx context.Context) (int, error) {
	ranked := m.rankLocked(m.byStatusLocked(domain.StatusActive))
	if len(ranked) > m.cfg.MutateTopN {
		ranked = ranked[:m.cfg.MutateTopN]
	}

	mutated := 0
	for _, parent := range ranked {
		params := make(map[string]float64, len(parent.Params))
		for k, v := range parent.Params {
			params[k] = v * m.rng.jitter(m.cfg.MutationJitter)
		}

		child, err := m.spawnLocked(ctx, parent.StrategyTag, params)
		if err != nil {
			return mutated, err
		}

		eventID, err := m.events.Append(ctx, domain.NewAgentMutated(child.ID, parent.ID, params, m.lastEvent[parent.ID]))
		if err != nil {
			return mutated, fmt.Errorf("append AgentMutated for %s: %w", child.ID, err)
		}
		m.lastEvent[child.ID] = eventID
		mutated++

		slog.Info("agent mutated", "child", child.DisplayName, "parent", parent.DisplayName)
	}
	return mutated, nil
}

func sortedOldest(agents []*domain.Agent) []*domain.Agent {
	out := make([]*domain.Agent, len(agents))
	copy(out, agents)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && olderFirst(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// rng wraps a seeded source behind the roster lock.
type rng struct {
	r *rand.Rand
}

func newRNG(seed int64) rng {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rng{r: rand.New(rand.NewSource(seed))}
}

func (g rng) intn(n int) int { return g.r.Intn(n) }

// jitter returns a factor in [1-f, 1+f].
func (g rng) jitter(f float64) float64 {
	return 1 + (g.r.Float64()*2-1)*f
}
