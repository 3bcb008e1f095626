package domain

import "time"

// TradeType is the kind of venue operation a trade performs.
type TradeType string

const (
	TradeDeposit  TradeType = "deposit"
	TradeWithdraw TradeType = "withdraw"
	TradeSwap     TradeType = "swap"
)

// TradeStatus is the lifecycle of a trade. Transitions are strictly
// pending → executing → success|failed; terminal states are written once.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeExecuting TradeStatus = "executing"
	TradeSuccess   TradeStatus = "success"
	TradeFailed    TradeStatus = "failed"
)

// TradeIntent is what an agent asks the engine to execute.
type TradeIntent struct {
	Type           TradeType
	Protocol       string
	InputAsset     string
	InputAmount    float64
	OutputAsset    string
	ExpectedReturn float64 // estimated output value in USD
	GasCostUSD     float64
	MinOutput      float64 // swap slippage floor, 0 = none
}

// Trade is the persisted record of a submitted intent. Created as pending,
// settled exactly once.
type Trade struct {
	ID             string // ULID (time-sortable)
	AgentID        string
	Type           TradeType
	Protocol       string
	InputAsset     string
	InputAmount    float64
	OutputAsset    string
	ExpectedReturn float64
	GasCostUSD     float64
	Status         TradeStatus
	ActualReturn   float64
	ExecutionPrice float64
	TxHash         string
	ErrorMessage   string
	SubmittedAt    time.Time
	ExecutedAt     *time.Time
	FailedAt       *time.Time
}

// Terminal reports whether the trade reached a final status.
func (t *Trade) Terminal() bool {
	return t.Status == TradeSuccess || t.Status == TradeFailed
}

// CapitalDelta is the realized change to the agent's capital for a settled
// trade: output value minus input minus gas. Zero unless the trade succeeded.
func (t *Trade) CapitalDelta() float64 {
	if t.Status != TradeSuccess {
		return 0
	}
	return t.ActualReturn - t.InputAmount - t.GasCostUSD
}
