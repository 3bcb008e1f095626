package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEvent(id string, typ domain.EventType, agentID string, ts time.Time) domain.Event {
	return domain.Event{
		EventID:   id,
		Type:      typ,
		AgentID:   agentID,
		Timestamp: ts,
		Data:      map[string]any{"n": 1.0},
	}
}

func makeTrade(id, agentID string, submittedAt time.Time) domain.Trade {
	return domain.Trade{
		ID:          id,
		AgentID:     agentID,
		Type:        domain.TradeSwap,
		Protocol:    "simulation",
		InputAsset:  "USDC",
		InputAmount: 1_000,
		OutputAsset: "ETH",
		Status:      domain.TradePending,
		SubmittedAt: submittedAt,
	}
}

func TestEvents_AppendAndQuery(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, typ := range []domain.EventType{
		domain.EventAgentSpawned,
		domain.EventTradeSubmitted,
		domain.EventTradeSettled,
	} {
		ev := makeEvent(string(rune('a'+i)), typ, "agent-1", base.Add(time.Duration(i)*time.Second))
		_, err := s.Append(ctx, ev)
		require.NoError(t, err)
	}

	events, err := s.Query(ctx, ports.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventAgentSpawned, events[0].Type)
	assert.Equal(t, domain.EventTradeSettled, events[2].Type)
	assert.Equal(t, map[string]any{"n": 1.0}, events[0].Data)
}

// Events sharing a timestamp come back in insertion order.
func TestEvents_TimestampTiesBreakByInsertion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second", "third"} {
		_, err := s.Append(ctx, makeEvent(id, domain.EventAgentSpawned, "agent-1", ts))
		require.NoError(t, err)
	}

	events, err := s.Query(ctx, ports.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "first", events[0].EventID)
	assert.Equal(t, "second", events[1].EventID)
	assert.Equal(t, "third", events[2].EventID)
}

func TestEvents_QueryFilters(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Append(ctx, makeEvent("e1", domain.EventAgentSpawned, "a1", base))
	require.NoError(t, err)
	_, err = s.Append(ctx, makeEvent("e2", domain.EventAgentKilled, "a1", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Append(ctx, makeEvent("e3", domain.EventAgentSpawned, "a2", base.Add(2*time.Minute)))
	require.NoError(t, err)

	byType, err := s.Query(ctx, ports.EventFilter{Types: []domain.EventType{domain.EventAgentSpawned}})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byAgent, err := s.Query(ctx, ports.EventFilter{AgentID: "a1"})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	byWindow, err := s.Query(ctx, ports.EventFilter{
		From: base.Add(30 * time.Second),
		To:   base.Add(90 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, byWindow, 1)
	assert.Equal(t, "e2", byWindow[0].EventID)

	limited, err := s.Query(ctx, ports.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestEvents_CountByType(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, makeEvent(string(rune('a'+i)), domain.EventTradeSubmitted, "a1", base))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, makeEvent("z", domain.EventAgentSpawned, "a1", base))
	require.NoError(t, err)

	counts, err := s.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.EventTradeSubmitted])
	assert.Equal(t, 1, counts[domain.EventAgentSpawned])
}

func TestEvents_DuplicateEventIDRejected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	_, err := s.Append(ctx, makeEvent("dup", domain.EventAgentSpawned, "a1", ts))
	require.NoError(t, err)
	_, err = s.Append(ctx, makeEvent("dup", domain.EventAgentSpawned, "a1", ts))
	assert.Error(t, err)
}

func TestTrades_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	trade := makeTrade("t1", "a1", now)
	require.NoError(t, s.SaveTrade(ctx, trade))

	require.NoError(t, s.MarkExecuting(ctx, "t1", now.Add(time.Second)))

	trade.Status = domain.TradeSuccess
	trade.ActualReturn = 995
	trade.ExecutionPrice = 0.000398
	trade.TxHash = "0xabc"
	require.NoError(t, s.SettleTrade(ctx, trade))

	got, err := s.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSuccess, got.Status)
	assert.Equal(t, 995.0, got.ActualReturn)
	assert.Equal(t, "0xabc", got.TxHash)
	require.NotNil(t, got.ExecutedAt)
	assert.Nil(t, got.FailedAt)
}

func TestTrades_SettleExactlyOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	trade := makeTrade("t1", "a1", time.Now().UTC())
	require.NoError(t, s.SaveTrade(ctx, trade))

	trade.Status = domain.TradeSuccess
	trade.ActualReturn = 1_010
	require.NoError(t, s.SettleTrade(ctx, trade))

	// A second settlement, even with different numbers, must be rejected
	// and leave the first result intact.
	trade.ActualReturn = 9_999
	err := s.SettleTrade(ctx, trade)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	got, err := s.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1_010.0, got.ActualReturn)
}

func TestTrades_SettleRejectsNonTerminal(t *testing.T) {
	s := newTestStorage(t)
	trade := makeTrade("t1", "a1", time.Now().UTC())
	require.NoError(t, s.SaveTrade(context.Background(), trade))

	trade.Status = domain.TradeExecuting
	assert.Error(t, s.SettleTrade(context.Background(), trade))
}

func TestTrades_GetTradeNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetTrade(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestTrades_AssetExposureCountsOnlySuccess(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t1 := makeTrade("t1", "a1", now)
	require.NoError(t, s.SaveTrade(ctx, t1))
	t1.Status = domain.TradeSuccess
	t1.ActualReturn = 500
	require.NoError(t, s.SettleTrade(ctx, t1))

	t2 := makeTrade("t2", "a1", now)
	require.NoError(t, s.SaveTrade(ctx, t2))
	t2.Status = domain.TradeFailed
	t2.ErrorMessage = "slippage"
	require.NoError(t, s.SettleTrade(ctx, t2))

	// Pending trades and other agents don't count either.
	require.NoError(t, s.SaveTrade(ctx, makeTrade("t3", "a1", now)))
	other := makeTrade("t4", "a2", now)
	require.NoError(t, s.SaveTrade(ctx, other))

	exposure, err := s.AssetExposure(ctx, "a1", "ETH")
	require.NoError(t, err)
	assert.Equal(t, 500.0, exposure)

	none, err := s.AssetExposure(ctx, "a1", "BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)
}

func TestTrades_CountTradesSince(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	dayStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTrade(ctx, makeTrade("old", "a1", dayStart.Add(-time.Hour))))
	require.NoError(t, s.SaveTrade(ctx, makeTrade("t1", "a1", dayStart.Add(time.Hour))))
	require.NoError(t, s.SaveTrade(ctx, makeTrade("t2", "a1", dayStart.Add(2*time.Hour))))
	require.NoError(t, s.SaveTrade(ctx, makeTrade("t3", "a2", dayStart.Add(3*time.Hour))))

	n, err := s.CountTradesSince(ctx, "a1", dayStart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTrades_RecentTradesNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.SaveTrade(ctx, makeTrade(id, "a1", base.Add(time.Duration(i)*time.Minute))))
	}

	trades, err := s.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t3", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)
}

func TestLimits_AssetSpecificPrecedence(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	agentWide := domain.DefaultLimits("a1")
	require.NoError(t, s.SetPositionLimit(ctx, agentWide))

	ethLimit := domain.PositionLimit{
		AgentID:         "a1",
		Asset:           "ETH",
		MaxPositionUSD:  25_000,
		MaxTradeSizeUSD: 10_000,
		MaxDailyTrades:  20,
	}
	require.NoError(t, s.SetPositionLimit(ctx, ethLimit))

	got, ok, err := s.GetPositionLimit(ctx, "a1", "ETH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 25_000.0, got.MaxPositionUSD)

	// Other assets fall back to the agent-wide row.
	fallback, ok, err := s.GetPositionLimit(ctx, "a1", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "", fallback.Asset)
	assert.Equal(t, 100_000.0, fallback.MaxPositionUSD)

	_, ok, err = s.GetPositionLimit(ctx, "a2", "ETH")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimits_UpsertOverwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	limit := domain.DefaultLimits("a1")
	require.NoError(t, s.SetPositionLimit(ctx, limit))

	limit.MaxDailyTrades = 10
	require.NoError(t, s.SetPositionLimit(ctx, limit))

	got, ok, err := s.GetPositionLimit(ctx, "a1", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, got.MaxDailyTrades)
}
