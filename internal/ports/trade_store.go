package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// TradeStore persists trade rows through their lifecycle.
type TradeStore interface {
	// SaveTrade inserts a new pending trade.
	SaveTrade(ctx context.Context, t domain.Trade) error

	// MarkExecuting transitions a pending trade to executing.
	MarkExecuting(ctx context.Context, tradeID string, at time.Time) error

	// SettleTrade writes the terminal status and result fields exactly once.
	// Settling an already-terminal trade is an error.
	SettleTrade(ctx context.Context, t domain.Trade) error

	// GetTrade returns a trade by ID.
	GetTrade(ctx context.Context, tradeID string) (domain.Trade, error)

	// AssetExposure sums the successful acquisition value of an asset for an
	// agent (current position in USD).
	AssetExposure(ctx context.Context, agentID, asset string) (float64, error)

	// CountTradesSince counts trades submitted by an agent since the given
	// time (daily-limit window).
	CountTradesSince(ctx context.Context, agentID string, since time.Time) (int, error)

	// RecentTrades returns the latest trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error)
}
