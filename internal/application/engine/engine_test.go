package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/adapters/protocols"
	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// fakeBook is an in-memory AgentBook for engine tests.
type fakeBook struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func newFakeBook(agents ...domain.Agent) *fakeBook {
	b := &fakeBook{agents: make(map[string]domain.Agent)}
	for _, a := range agents {
		b.agents[a.ID] = a
	}
	return b
}

func (b *fakeBook) GetAgent(id string) (domain.Agent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.agents[id]
	return a, ok
}

func (b *fakeBook) ApplyTradeDelta(id string, delta float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.agents[id]
	if !ok {
		return errors.New("unknown agent")
	}
	a.Capital += delta
	b.agents[id] = a
	return nil
}

func (b *fakeBook) capital(id string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agents[id].Capital
}

// spyAdapter counts invocations and returns a canned result.
type spyAdapter struct {
	calls  atomic.Int64
	result domain.ExecutionResult
	block  bool // block until the context expires
}

func (s *spyAdapter) Name() string { return "spy" }

func (s *spyAdapter) call(ctx context.Context) domain.ExecutionResult {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return domain.ExecutionResult{Err: ctx.Err().Error()}
	}
	return s.result
}

func (s *spyAdapter) Deposit(ctx context.Context, _ string, _ float64) domain.ExecutionResult {
	return s.call(ctx)
}

func (s *spyAdapter) Withdraw(ctx context.Context, _ string, _ float64) domain.ExecutionResult {
	return s.call(ctx)
}

func (s *spyAdapter) Swap(ctx context.Context, _, _ string, _, _ float64) domain.ExecutionResult {
	return s.call(ctx)
}

func (s *spyAdapter) GetAPY(context.Context, string) (float64, error) { return 0, nil }

func newTestEngine(t *testing.T, book ports.AgentBook, adapters ...ports.ProtocolAdapter) (*Engine, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := New(book, store, store, store, adapters, Config{ExecutionTimeout: 2 * time.Second})
	return eng, store
}

func depositIntent(protocol string, amount float64) domain.TradeIntent {
	return domain.TradeIntent{
		Type:           domain.TradeDeposit,
		Protocol:       protocol,
		InputAsset:     "USDC",
		InputAmount:    amount,
		OutputAsset:    "USDC",
		ExpectedReturn: amount,
	}
}

func TestEngine_SubmitExecutesAndSettles(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	sim := protocols.NewSimulation(protocols.SimulationConfig{SuccessRate: 1.0, Seed: 42})
	eng, store := newTestEngine(t, book, sim)

	tradeID, err := eng.Submit(context.Background(), "a1", depositIntent("simulation", 5_000))
	require.NoError(t, err)
	require.NotEmpty(t, tradeID)

	eng.Close() // waits for execution and settlement

	trade, err := store.GetTrade(context.Background(), tradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSuccess, trade.Status)
	assert.NotEmpty(t, trade.TxHash)
	assert.Equal(t, 5_000.0, trade.ActualReturn)

	// Deposit returns its input, so the agent only pays gas.
	assert.InDelta(t, 20_000-3.50, book.capital("a1"), 1e-9)

	events, err := store.Query(context.Background(), ports.EventFilter{AgentID: "a1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTradeSubmitted, events[0].Type)
	assert.Equal(t, domain.EventTradeSettled, events[1].Type)
	assert.Equal(t, events[0].EventID, events[1].CausedBy)
}

func TestEngine_FailedTradeLeavesCapitalUntouched(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	spy := &spyAdapter{result: domain.ExecutionResult{Err: "venue rejected order"}}
	eng, store := newTestEngine(t, book, spy)

	tradeID, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))
	require.NoError(t, err)

	eng.Close()

	trade, err := store.GetTrade(context.Background(), tradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeFailed, trade.Status)
	assert.Equal(t, "venue rejected order", trade.ErrorMessage)
	assert.NotNil(t, trade.FailedAt)

	assert.Equal(t, 20_000.0, book.capital("a1"))
}

func TestEngine_EmergencyStopBlocksSubmission(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	spy := &spyAdapter{result: domain.ExecutionResult{Success: true, OutputAmount: 1}}
	eng, store := newTestEngine(t, book, spy)
	defer eng.Close()

	eng.EmergencyStop()
	assert.False(t, eng.Status().TradingEnabled)

	_, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)

	// Nothing reached the venue, storage or the event log.
	assert.Equal(t, int64(0), spy.calls.Load())
	trades, err := store.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

// The stop flag wins even for trades that would also fail validation.
func TestEngine_StopPrecedesValidation(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 100})
	eng, _ := newTestEngine(t, book, &spyAdapter{})
	defer eng.Close()

	eng.EmergencyStop()

	_, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 1_000_000))
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)

	var verr *domain.ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestEngine_ResumeRestoresSubmission(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	spy := &spyAdapter{result: domain.ExecutionResult{Success: true, OutputAmount: 5_000}}
	eng, _ := newTestEngine(t, book, spy)

	eng.EmergencyStop()
	_, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))
	require.ErrorIs(t, err, domain.ErrTradingDisabled)

	eng.EmergencyResume()
	assert.True(t, eng.Status().TradingEnabled)

	_, err = eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))
	require.NoError(t, err)

	eng.Close()
	assert.Equal(t, int64(1), spy.calls.Load())
}

func TestEngine_RejectedTradeNeverReachesVenue(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 100})
	spy := &spyAdapter{result: domain.ExecutionResult{Success: true}}
	eng, store := newTestEngine(t, book, spy)
	defer eng.Close()

	_, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeInsufficientCapital, verr.Code)

	assert.Equal(t, int64(0), spy.calls.Load())
	events, qerr := store.Query(context.Background(), ports.EventFilter{})
	require.NoError(t, qerr)
	assert.Empty(t, events)
}

func TestEngine_UnknownAgent(t *testing.T) {
	eng, _ := newTestEngine(t, newFakeBook(), &spyAdapter{})
	defer eng.Close()

	_, err := eng.Submit(context.Background(), "ghost", depositIntent("spy", 100))
	assert.Error(t, err)
}

func TestEngine_UnknownProtocolSettlesFailed(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	eng, store := newTestEngine(t, book, &spyAdapter{})

	tradeID, err := eng.Submit(context.Background(), "a1", depositIntent("nonexistent", 5_000))
	require.NoError(t, err)

	eng.Close()

	trade, err := store.GetTrade(context.Background(), tradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeFailed, trade.Status)
	assert.Contains(t, trade.ErrorMessage, "not configured")
}

func TestEngine_ExecutionTimeout(t *testing.T) {
	book := newFakeBook(domain.Agent{ID: "a1", Status: domain.StatusActive, Capital: 20_000})
	spy := &spyAdapter{block: true}

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	eng := New(book, store, store, store, []ports.ProtocolAdapter{spy}, Config{
		ExecutionTimeout: 50 * time.Millisecond,
	})

	tradeID, err := eng.Submit(context.Background(), "a1", depositIntent("spy", 5_000))
	require.NoError(t, err)

	eng.Close()

	trade, err := store.GetTrade(context.Background(), tradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeFailed, trade.Status)
	assert.True(t, strings.HasPrefix(trade.ErrorMessage, "TIMEOUT"), trade.ErrorMessage)
	assert.Equal(t, 20_000.0, book.capital("a1"))
}
