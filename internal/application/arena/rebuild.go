package arena

// rebuild.go — roster recovery from the event stream.
//
// Every roster mutation is evented, so folding the stream in order
// reconstructs each agent's status, tier and capital after a restart.
// Performance history is not evented and starts empty after a rebuild.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// Rebuild replaces the roster with the state derived from the full event
// stream. Call before trading starts; it is not safe to fold events while
// the engine is settling trades.
func (m *Manager) Rebuild(ctx context.Context) error {
	events, err := m.events.Query(ctx, ports.EventFilter{})
	if err != nil {
		return fmt.Errorf("arena.Rebuild: query events: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.roster = make(map[string]*domain.Agent)
	m.lastEvent = make(map[string]string)

	for _, ev := range events {
		if err := m.foldLocked(ev); err != nil {
			return fmt.Errorf("arena.Rebuild: event %s (%s): %w", ev.EventID, ev.Type, err)
		}
		if ev.AgentID != "" {
			m.lastEvent[ev.AgentID] = ev.EventID
		}
	}

	slog.Info("roster rebuilt from event stream", "events", len(events), "agents", len(m.roster))
	return nil
}

func (m *Manager) foldLocked(ev domain.Event) error {
	switch ev.Type {
	case domain.EventAgentSpawned:
		strategy := dataString(ev.Data, "strategy")
		capital := dataFloat(ev.Data, "capital")
		agent := &domain.Agent{
			ID:             ev.AgentID,
			DisplayName:    strategy + "-" + shortID(ev.AgentID),
			StrategyTag:    strategy,
			Params:         dataParams(ev.Data, "params"),
			Status:         domain.StatusSimulation,
			Capital:        capital,
			InitialCapital: capital,
			CreatedAt:      ev.Timestamp,
			UpdatedAt:      ev.Timestamp,
		}
		m.roster[ev.AgentID] = agent

	case domain.EventAgentGraduated:
		agent, err := m.foldAgent(ev)
		if err != nil {
			return err
		}
		agent.Status = domain.AgentStatus(dataString(ev.Data, "to_level"))
		agent.Capital = dataFloat(ev.Data, "capital_allocated")
		agent.InitialCapital = agent.Capital
		agent.UpdatedAt = ev.Timestamp

	case domain.EventAgentKilled:
		agent, err := m.foldAgent(ev)
		if err != nil {
			return err
		}
		agent.Status = domain.StatusRetired
		agent.Tier = ""
		agent.Capital = 0
		agent.UpdatedAt = ev.Timestamp

	case domain.EventCapitalAllocated:
		agent, err := m.foldAgent(ev)
		if err != nil {
			return err
		}
		agent.Capital = dataFloat(ev.Data, "amount")
		agent.Tier = domain.AllocationTier(dataString(ev.Data, "tier"))
		agent.UpdatedAt = ev.Timestamp

	case domain.EventTradeSettled:
		agent, err := m.foldAgent(ev)
		if err != nil {
			return err
		}
		agent.Capital += dataFloat(ev.Data, "capital_delta")
		agent.UpdatedAt = ev.Timestamp
	}
	// Mutation, submission and pool-wide events carry no roster state
	// beyond what the paired events above already apply.
	return nil
}

func (m *Manager) foldAgent(ev domain.Event) (*domain.Agent, error) {
	agent, ok := m.roster[ev.AgentID]
	if !ok {
		return nil, fmt.Errorf("references agent %q before its spawn", ev.AgentID)
	}
	return agent, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dataFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func dataString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func dataParams(data map[string]any, key string) map[string]float64 {
	raw, _ := data[key].(map[string]any)
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}
