package engine

// validator.go — pre-trade safety checks. Pure: no I/O, no mutation.
// The engine measures exposure and daily counts up front and hands them in
// as a snapshot, so every check here is a plain comparison.

import (
	"fmt"

	"github.com/alejandrodnm/arena/internal/domain"
)

// ValidationSnapshot carries the engine-measured state a validation pass
// needs.
type ValidationSnapshot struct {
	AssetExposure float64 // current USD position in the traded asset
	TradesToday   int     // trades submitted in the current daily window
}

// Validate checks a proposed trade against the agent's capital and limits.
// Checks run in a fixed order and short-circuit on the first failure:
// capital, trade size, position limit, daily count. Returns nil when the
// trade is acceptable.
func Validate(agent domain.Agent, intent domain.TradeIntent, limits domain.PositionLimit, snap ValidationSnapshot) *domain.ValidationError {
	// 1. Capital covers the input for trades that spend it.
	if intent.Type == domain.TradeDeposit || intent.Type == domain.TradeSwap {
		if agent.Capital < intent.InputAmount {
			return &domain.ValidationError{
				Code: domain.CodeInsufficientCapital,
				Reason: fmt.Sprintf("need $%.2f, have $%.2f",
					intent.InputAmount, agent.Capital),
			}
		}
	}

	// 2. Single trade size.
	if intent.InputAmount > limits.MaxTradeSizeUSD {
		return &domain.ValidationError{
			Code: domain.CodeTradeSizeExceeded,
			Reason: fmt.Sprintf("trade size $%.2f exceeds max $%.2f",
				intent.InputAmount, limits.MaxTradeSizeUSD),
		}
	}

	// 3. Position limit for the acquired asset.
	if newPosition := snap.AssetExposure + intent.ExpectedReturn; newPosition > limits.MaxPositionUSD {
		return &domain.ValidationError{
			Code: domain.CodePositionLimitExceed,
			Reason: fmt.Sprintf("position $%.2f + trade $%.2f exceeds limit $%.2f",
				snap.AssetExposure, intent.ExpectedReturn, limits.MaxPositionUSD),
		}
	}

	// 4. Daily trade count.
	if snap.TradesToday >= limits.MaxDailyTrades {
		return &domain.ValidationError{
			Code: domain.CodeDailyLimitExceeded,
			Reason: fmt.Sprintf("daily trade limit reached: %d/%d",
				snap.TradesToday, limits.MaxDailyTrades),
		}
	}

	return nil
}
