package domain

// PositionLimit caps an agent's exposure. Asset == "" applies to all
// assets; asset-specific rows take precedence. Configured externally and
// read-only to the validator.
type PositionLimit struct {
	AgentID         string
	Asset           string
	MaxPositionUSD  float64
	MaxTradeSizeUSD float64
	MaxDailyTrades  int
}

// Defaults used when no limit row is configured for an agent.
const (
	DefaultMaxPositionUSD  = 100_000
	DefaultMaxTradeSizeUSD = 50_000
	DefaultMaxDailyTrades  = 100
)

// DefaultLimits returns the conservative fallback limits for an agent.
func DefaultLimits(agentID string) PositionLimit {
	return PositionLimit{
		AgentID:         agentID,
		MaxPositionUSD:  DefaultMaxPositionUSD,
		MaxTradeSizeUSD: DefaultMaxTradeSizeUSD,
		MaxDailyTrades:  DefaultMaxDailyTrades,
	}
}
