package domain

// event.go — the append-only audit trail.
//
// Every state change in the arena is captured as an Event. Events are
// immutable once appended: there is no update or delete anywhere in the
// system, and historical state can be rebuilt by folding the stream.

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags the payload shape of an event.
type EventType string

const (
	EventAgentSpawned             EventType = "AgentSpawned"
	EventAgentKilled              EventType = "AgentKilled"
	EventAgentGraduated           EventType = "AgentGraduated"
	EventAgentMutated             EventType = "AgentMutated"
	EventCapitalAllocated         EventType = "CapitalAllocated"
	EventCapitalConservationCheck EventType = "CapitalConservationCheck"
	EventAllocationError          EventType = "AllocationError"
	EventEvolutionCycleComplete   EventType = "EvolutionCycleComplete"
	EventTradeSubmitted           EventType = "TradeSubmitted"
	EventTradeSettled             EventType = "TradeSettled"
)

// Event is one immutable entry in the audit log.
type Event struct {
	EventID   string
	Type      EventType
	AgentID   string // empty for pool-wide events
	Timestamp time.Time
	Data      map[string]any
	CausedBy  string // event_id that triggered this one, empty if root
}

func newEvent(t EventType, agentID string, data map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      t,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewAgentSpawned records the birth of an agent in the simulation tier.
func NewAgentSpawned(agentID, strategy string, capital float64, params map[string]float64) Event {
	return newEvent(EventAgentSpawned, agentID, map[string]any{
		"strategy": strategy,
		"capital":  capital,
		"params":   paramsToAny(params),
	})
}

// NewAgentKilled records a cull. The agent's capital has already been
// returned to the pool when this is emitted.
func NewAgentKilled(agentID, reason string, finalCapital, fitness float64) Event {
	return newEvent(EventAgentKilled, agentID, map[string]any{
		"reason":        reason,
		"final_capital": finalCapital,
		"fitness":       fitness,
	})
}

// NewAgentGraduated records a tier promotion.
func NewAgentGraduated(agentID string, from, to AgentStatus, capital, fitness float64) Event {
	return newEvent(EventAgentGraduated, agentID, map[string]any{
		"from_level":        string(from),
		"to_level":          string(to),
		"capital_allocated": capital,
		"fitness":           fitness,
	})
}

// NewAgentMutated records the spawn of a perturbed variant. causedBy points
// at the parent's most recent event.
func NewAgentMutated(agentID, parentID string, params map[string]float64, causedBy string) Event {
	ev := newEvent(EventAgentMutated, agentID, map[string]any{
		"parent_id": parentID,
		"params":    paramsToAny(params),
	})
	ev.CausedBy = causedBy
	return ev
}

// NewCapitalAllocated records one agent's allocation change.
func NewCapitalAllocated(agentID string, amount float64, tier AllocationTier, totalAllocated, arenaCapital float64) Event {
	utilization := 0.0
	if arenaCapital > 0 {
		utilization = totalAllocated / arenaCapital
	}
	return newEvent(EventCapitalAllocated, agentID, map[string]any{
		"amount":          amount,
		"tier":            string(tier),
		"total_allocated": totalAllocated,
		"arena_capital":   arenaCapital,
		"utilization":     utilization,
	})
}

// NewCapitalConservationCheck records the pool-wide invariant check that
// closes every allocation pass.
func NewCapitalConservationCheck(arenaCapital, allocated float64, conserved bool, discrepancy float64) Event {
	return newEvent(EventCapitalConservationCheck, "", map[string]any{
		"arena_capital": arenaCapital,
		"allocated":     allocated,
		"conserved":     conserved,
		"discrepancy":   discrepancy,
	})
}

// NewAllocationError records a rejected reallocation. The attempted change
// was discarded; prior state stands.
func NewAllocationError(attempted, available float64, msg string) Event {
	return newEvent(EventAllocationError, "", map[string]any{
		"attempted_allocation": attempted,
		"available_capital":    available,
		"overflow_amount":      attempted - available,
		"error_message":        msg,
	})
}

// NewEvolutionCycleComplete summarizes one evolution cycle.
func NewEvolutionCycleComplete(killed, spawned, graduated, mutated, active, proving, simulating int) Event {
	return newEvent(EventEvolutionCycleComplete, "", map[string]any{
		"agents_killed":    killed,
		"agents_spawned":   spawned,
		"agents_graduated": graduated,
		"agents_mutated":   mutated,
		"total_active":     active,
		"total_proving":    proving,
		"total_simulating": simulating,
	})
}

// NewTradeSubmitted records a validated trade entering the pipeline.
func NewTradeSubmitted(t Trade) Event {
	return newEvent(EventTradeSubmitted, t.AgentID, map[string]any{
		"trade_id":     t.ID,
		"trade_type":   string(t.Type),
		"protocol":     t.Protocol,
		"input_asset":  t.InputAsset,
		"input_amount": t.InputAmount,
		"output_asset": t.OutputAsset,
	})
}

// NewTradeSettled records the terminal outcome of a trade. causedBy points
// at the TradeSubmitted event.
func NewTradeSettled(t Trade, causedBy string) Event {
	ev := newEvent(EventTradeSettled, t.AgentID, map[string]any{
		"trade_id":      t.ID,
		"status":        string(t.Status),
		"actual_return": t.ActualReturn,
		"capital_delta": t.CapitalDelta(),
		"error_message": t.ErrorMessage,
	})
	ev.CausedBy = causedBy
	return ev
}

// paramsToAny widens a params map for JSON round-tripping.
func paramsToAny(params map[string]float64) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
