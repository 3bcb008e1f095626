package arena

// allocation.go — fitness-weighted capital allocation across active agents.
//
// Allocation is all-or-nothing: the full plan is computed and checked
// against the arena pool before a single agent is touched. An overflow
// leaves every balance exactly as it was and is recorded as an
// AllocationError event.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// AllocateCapital re-divides the arena pool across active agents by fitness
// tier and returns the per-agent amounts. Elite agents share the largest
// slice, the middle tier the next, challengers the rest.
func (m *Manager) AllocateCapital(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocateLocked(ctx)
}

func (m *Manager) allocateLocked(ctx context.Context) (map[string]float64, error) {
	ranked := m.rankLocked(m.byStatusLocked(domain.StatusActive))
	if len(ranked) == 0 {
		slog.Warn("no active agents to allocate capital")
		return map[string]float64{}, nil
	}

	total := len(ranked)
	eliteCount := max(1, int(float64(total)*m.cfg.EliteFrac))
	activeCount := max(1, int(float64(total)*m.cfg.ActiveFrac))
	if eliteCount+activeCount > total {
		activeCount = total - eliteCount
	}

	elite := ranked[:eliteCount]
	active := ranked[eliteCount : eliteCount+activeCount]
	challengers := ranked[eliteCount+activeCount:]

	elitePer := perAgent(m.pool.ArenaCapital*m.cfg.EliteCapitalFrac, len(elite))
	activePer := perAgent(m.pool.ArenaCapital*m.cfg.ActiveCapitalFrac, len(active))
	challengerPer := perAgent(m.pool.ArenaCapital*m.cfg.ChallengerCapitalFrac, len(challengers))

	totalAllocated := float64(len(elite))*elitePer +
		float64(len(active))*activePer +
		float64(len(challengers))*challengerPer

	// Conservation gate: verify the whole plan before mutating any agent.
	if totalAllocated > m.pool.ArenaCapital+domain.ConservationEpsilon {
		msg := fmt.Sprintf("allocation overflow: $%.2f > $%.2f", totalAllocated, m.pool.ArenaCapital)
		if _, err := m.events.Append(ctx, domain.NewAllocationError(totalAllocated, m.pool.ArenaCapital, msg)); err != nil {
			slog.Error("cannot append AllocationError", "err", err)
		}
		return nil, &domain.AllocationError{Attempted: totalAllocated, Available: m.pool.ArenaCapital}
	}

	allocations := make(map[string]float64, total)
	assign := func(agents []*domain.Agent, amount float64, tier domain.AllocationTier) error {
		for _, agent := range agents {
			agent.Capital = amount
			agent.Tier = tier
			agent.UpdatedAt = time.Now().UTC()
			allocations[agent.ID] = amount

			eventID, err := m.events.Append(ctx, domain.NewCapitalAllocated(agent.ID, amount, tier, totalAllocated, m.pool.ArenaCapital))
			if err != nil {
				return fmt.Errorf("append CapitalAllocated for %s: %w", agent.ID, err)
			}
			m.lastEvent[agent.ID] = eventID
		}
		return nil
	}

	if err := assign(elite, elitePer, domain.TierElite); err != nil {
		return nil, fmt.Errorf("arena.AllocateCapital: %w", err)
	}
	if err := assign(active, activePer, domain.TierActive); err != nil {
		return nil, fmt.Errorf("arena.AllocateCapital: %w", err)
	}
	if err := assign(challengers, challengerPer, domain.TierChallenger); err != nil {
		return nil, fmt.Errorf("arena.AllocateCapital: %w", err)
	}

	conserved := totalAllocated <= m.pool.ArenaCapital+domain.ConservationEpsilon
	discrepancy := math.Max(0, totalAllocated-m.pool.ArenaCapital)
	if _, err := m.events.Append(ctx, domain.NewCapitalConservationCheck(m.pool.ArenaCapital, totalAllocated, conserved, discrepancy)); err != nil {
		return nil, fmt.Errorf("arena.AllocateCapital: append conservation check: %w", err)
	}

	slog.Info("capital allocated",
		"elite", len(elite), "elite_each", fmt.Sprintf("$%.0f", elitePer),
		"active", len(active), "active_each", fmt.Sprintf("$%.0f", activePer),
		"challengers", len(challengers), "challenger_each", fmt.Sprintf("$%.0f", challengerPer),
		"total", fmt.Sprintf("$%.2f", totalAllocated),
		"pool", fmt.Sprintf("$%.2f", m.pool.ArenaCapital),
	)
	return allocations, nil
}

func perAgent(slice float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return slice / float64(count)
}
