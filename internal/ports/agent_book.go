package ports

import "github.com/alejandrodnm/arena/internal/domain"

// AgentBook is the engine's view of the agent roster. The roster owner
// serializes all capital mutation behind it: settlement deltas and the
// evolution cycle take the same lock, so the cycle always observes fully
// settled capital.
type AgentBook interface {
	// GetAgent returns a snapshot copy of an agent.
	GetAgent(agentID string) (domain.Agent, bool)

	// ApplyTradeDelta mutates an agent's capital by the realized delta of a
	// successful trade. This is the only capital write path available to
	// the trading engine.
	ApplyTradeDelta(agentID string, delta float64) error
}
