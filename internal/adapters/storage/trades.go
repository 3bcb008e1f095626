package storage

// trades.go — trade rows and position limits.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// ErrTradeNotFound is returned when a trade ID does not exist.
var ErrTradeNotFound = errors.New("trade not found")

// ErrAlreadySettled is returned when settling a trade that already reached
// a terminal status. Terminal writes happen exactly once.
var ErrAlreadySettled = errors.New("trade already settled")

// SaveTrade inserts a new pending trade.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, agent_id, trade_type, protocol, input_asset, input_amount,
			 output_asset, expected_return, gas_cost_usd, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, string(t.Type), t.Protocol, t.InputAsset, t.InputAmount,
		t.OutputAsset, t.ExpectedReturn, t.GasCostUSD, string(t.Status), t.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// MarkExecuting transitions a pending trade to executing.
func (s *SQLiteStorage) MarkExecuting(ctx context.Context, tradeID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET status = ?, executed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.TradeExecuting), at.UTC(), tradeID, string(domain.TradePending),
	)
	if err != nil {
		return fmt.Errorf("storage.MarkExecuting: %s: %w", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.MarkExecuting: %s: %w", tradeID, ErrAlreadySettled)
	}
	return nil
}

// SettleTrade writes the terminal status and result fields. The status
// guard rejects a second settlement attempt instead of overwriting.
func (s *SQLiteStorage) SettleTrade(ctx context.Context, t domain.Trade) error {
	if !t.Terminal() {
		return fmt.Errorf("storage.SettleTrade: %s: status %q is not terminal", t.ID, t.Status)
	}

	var executedAt, failedAt any
	if t.ExecutedAt != nil {
		executedAt = t.ExecutedAt.UTC()
	}
	if t.FailedAt != nil {
		failedAt = t.FailedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, actual_return = ?, execution_price = ?, tx_hash = ?,
		    error_message = ?, executed_at = COALESCE(?, executed_at), failed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(t.Status), t.ActualReturn, t.ExecutionPrice, t.TxHash,
		t.ErrorMessage, executedAt, failedAt,
		t.ID, string(domain.TradePending), string(domain.TradeExecuting),
	)
	if err != nil {
		return fmt.Errorf("storage.SettleTrade: %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SettleTrade: %s: %w", t.ID, ErrAlreadySettled)
	}
	return nil
}

// GetTrade returns a trade by ID.
func (s *SQLiteStorage) GetTrade(ctx context.Context, tradeID string) (domain.Trade, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, trade_type, protocol, input_asset, input_amount,
		       output_asset, expected_return, gas_cost_usd, status, actual_return,
		       execution_price, tx_hash, error_message, submitted_at, executed_at, failed_at
		FROM trades WHERE id = ?`, tradeID)

	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("storage.GetTrade: %s: %w", tradeID, ErrTradeNotFound)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("storage.GetTrade: %s: %w", tradeID, err)
	}
	return t, nil
}

// AssetExposure sums the successful acquisition value of an asset for an
// agent: the current position in USD.
func (s *SQLiteStorage) AssetExposure(ctx context.Context, agentID, asset string) (float64, error) {
	var exposure float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(actual_return), 0)
		FROM trades
		WHERE agent_id = ? AND output_asset = ? AND status = ?`,
		agentID, asset, string(domain.TradeSuccess),
	).Scan(&exposure)
	if err != nil {
		return 0, fmt.Errorf("storage.AssetExposure: %s/%s: %w", agentID, asset, err)
	}
	return exposure, nil
}

// CountTradesSince counts trades submitted by an agent since the given time.
func (s *SQLiteStorage) CountTradesSince(ctx context.Context, agentID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE agent_id = ? AND submitted_at >= ?`,
		agentID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.CountTradesSince: %s: %w", agentID, err)
	}
	return n, nil
}

// RecentTrades returns the latest trades, newest first.
func (s *SQLiteStorage) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, trade_type, protocol, input_asset, input_amount,
		       output_asset, expected_return, gas_cost_usd, status, actual_return,
		       execution_price, tx_hash, error_message, submitted_at, executed_at, failed_at
		FROM trades ORDER BY submitted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.RecentTrades: scan: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SetPositionLimit upserts a limit row.
func (s *SQLiteStorage) SetPositionLimit(ctx context.Context, l domain.PositionLimit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_limits (agent_id, asset, max_position_usd, max_trade_size_usd, max_daily_trades)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, asset) DO UPDATE SET
			max_position_usd   = excluded.max_position_usd,
			max_trade_size_usd = excluded.max_trade_size_usd,
			max_daily_trades   = excluded.max_daily_trades`,
		l.AgentID, l.Asset, l.MaxPositionUSD, l.MaxTradeSizeUSD, l.MaxDailyTrades,
	)
	if err != nil {
		return fmt.Errorf("storage.SetPositionLimit: %s/%s: %w", l.AgentID, l.Asset, err)
	}
	return nil
}

// GetPositionLimit returns the limit for an agent/asset pair. The
// asset-specific row takes precedence over the agent-wide row (asset = '').
func (s *SQLiteStorage) GetPositionLimit(ctx context.Context, agentID, asset string) (domain.PositionLimit, bool, error) {
	var l domain.PositionLimit
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, asset, max_position_usd, max_trade_size_usd, max_daily_trades
		FROM position_limits
		WHERE agent_id = ? AND asset IN (?, '')
		ORDER BY asset DESC
		LIMIT 1`,
		agentID, asset,
	).Scan(&l.AgentID, &l.Asset, &l.MaxPositionUSD, &l.MaxTradeSizeUSD, &l.MaxDailyTrades)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PositionLimit{}, false, nil
	}
	if err != nil {
		return domain.PositionLimit{}, false, fmt.Errorf("storage.GetPositionLimit: %s/%s: %w", agentID, asset, err)
	}
	return l, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (domain.Trade, error) {
	var t domain.Trade
	var typ, status string
	var submittedAt time.Time
	var executedAt, failedAt sql.NullTime

	err := r.Scan(&t.ID, &t.AgentID, &typ, &t.Protocol, &t.InputAsset, &t.InputAmount,
		&t.OutputAsset, &t.ExpectedReturn, &t.GasCostUSD, &status, &t.ActualReturn,
		&t.ExecutionPrice, &t.TxHash, &t.ErrorMessage, &submittedAt, &executedAt, &failedAt)
	if err != nil {
		return domain.Trade{}, err
	}

	t.Type = domain.TradeType(typ)
	t.Status = domain.TradeStatus(status)
	t.SubmittedAt = submittedAt.UTC()
	if executedAt.Valid {
		at := executedAt.Time.UTC()
		t.ExecutedAt = &at
	}
	if failedAt.Valid {
		at := failedAt.Time.UTC()
		t.FailedAt = &at
	}
	return t, nil
}
