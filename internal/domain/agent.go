package domain

import (
	"math"
	"time"
)

// AgentStatus is the trust tier of an agent. It only ever moves forward:
// simulation → proving → active, or any of those → retired.
type AgentStatus string

const (
	StatusSimulation AgentStatus = "simulation"
	StatusProving    AgentStatus = "proving"
	StatusActive     AgentStatus = "active"
	StatusRetired    AgentStatus = "retired"
)

// AllocationTier buckets active agents for capital allocation.
type AllocationTier string

const (
	TierElite      AllocationTier = "elite"
	TierActive     AllocationTier = "active"
	TierChallenger AllocationTier = "challenger"
)

// PerformanceSample is one recorded period of an agent's track record.
type PerformanceSample struct {
	Timestamp  time.Time
	Capital    float64
	PnL        float64
	TradeCount int
}

// Agent is an independently tracked strategy instance competing for capital.
// The roster owner holds the only mutable reference; Capital is mutated
// exclusively through trade settlement and allocation.
type Agent struct {
	ID             string
	DisplayName    string
	StrategyTag    string
	Params         map[string]float64
	Status         AgentStatus
	Tier           AllocationTier
	Capital        float64
	InitialCapital float64
	FitnessScore   float64
	Rank           int
	Age            int // periods recorded
	DaysNegative   int // consecutive negative-PnL periods
	History        []PerformanceSample
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Retired reports whether the agent has left the arena.
func (a *Agent) Retired() bool { return a.Status == StatusRetired }

// RecordPerformance appends a sample and updates the streak counters.
func (a *Agent) RecordPerformance(s PerformanceSample) {
	a.History = append(a.History, s)
	if s.PnL < 0 {
		a.DaysNegative++
	} else {
		a.DaysNegative = 0
	}
	a.Age++
	a.UpdatedAt = s.Timestamp
}

// TotalReturn is the fractional return since inception (0.25 = +25%).
func (a *Agent) TotalReturn() float64 {
	if a.InitialCapital == 0 {
		return 0
	}
	return (a.Capital - a.InitialCapital) / a.InitialCapital
}

// WinRate is the fraction of recorded periods with positive PnL.
func (a *Agent) WinRate() float64 {
	if len(a.History) == 0 {
		return 0
	}
	wins := 0
	for _, s := range a.History {
		if s.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(a.History))
}

// MaxDrawdown is the worst peak-to-trough decline of the capital curve,
// returned as a negative fraction (-0.20 = -20%).
func (a *Agent) MaxDrawdown() float64 {
	if len(a.History) < 2 {
		return 0
	}
	peak := a.History[0].Capital
	maxDD := 0.0
	for _, s := range a.History {
		if s.Capital > peak {
			peak = s.Capital
		}
		if peak > 0 {
			dd := (s.Capital - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// periodReturns converts the history into per-period fractional returns.
func (a *Agent) periodReturns() []float64 {
	rets := make([]float64, 0, len(a.History))
	for _, s := range a.History {
		capital := s.Capital
		if capital == 0 {
			capital = 1
		}
		rets = append(rets, s.PnL/capital)
	}
	return rets
}

// SharpeRatio is the annualized mean/stddev of period returns.
func (a *Agent) SharpeRatio() float64 {
	if len(a.History) < 2 {
		return 0
	}
	rets := a.periodReturns()
	mean, std := meanStd(rets)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(365)
}

// Volatility is the annualized stddev of period returns.
func (a *Agent) Volatility() float64 {
	if len(a.History) < 2 {
		return 0
	}
	_, std := meanStd(a.periodReturns())
	return std * math.Sqrt(365)
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}

// FitnessPolicy holds the operator-tunable weights of the fitness score.
// Weights follow the original arena defaults; see config.
type FitnessPolicy struct {
	ReturnWeight     float64
	SharpeWeight     float64
	DrawdownWeight   float64
	VolatilityWeight float64
	ConsistencyBonus float64
	ConsistencyFloor float64 // win rate required for the bonus
	MinHistory       int     // samples required before scoring
}

// Fitness computes the weighted fitness score and stores it on the agent.
// Agents with less history than the policy minimum score zero.
func (a *Agent) Fitness(p FitnessPolicy) float64 {
	if len(a.History) < p.MinHistory {
		a.FitnessScore = 0
		return 0
	}
	fitness := a.TotalReturn()*p.ReturnWeight +
		a.SharpeRatio()*p.SharpeWeight -
		math.Abs(a.MaxDrawdown())*p.DrawdownWeight -
		a.Volatility()*p.VolatilityWeight
	if a.WinRate() > p.ConsistencyFloor {
		fitness += p.ConsistencyBonus
	}
	a.FitnessScore = fitness
	return fitness
}
