package engine

// engine.go — the trading safety engine.
//
// Submission path: stop-gate → validate → persist pending → TradeSubmitted
// event → return. Nothing touches a venue for a trade that failed either
// gate. Execution runs asynchronously with a bounded timeout; every result
// flows through a single settle loop, which is the only writer of terminal
// trade status and the only caller of the capital delta.

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

const (
	defaultExecutionTimeout = 30 * time.Second
	settleBuffer            = 64
)

// Config tunes the trading engine.
type Config struct {
	// ExecutionTimeout bounds one adapter call. A trade whose venue does
	// not answer in time settles failed with a TIMEOUT error.
	ExecutionTimeout time.Duration
}

// Status is the operator view of the engine.
type Status struct {
	TradingEnabled bool
	PendingTrades  int
	Protocols      []string
}

type settlement struct {
	trade    domain.Trade
	result   domain.ExecutionResult
	causedBy string // TradeSubmitted event_id
}

// Engine accepts trade intents and executes them under the safety
// invariants. It is the only component that mutates agent capital, and only
// through AgentBook.ApplyTradeDelta on settlement of a successful trade.
type Engine struct {
	book      ports.AgentBook
	trades    ports.TradeStore
	limits    ports.LimitStore
	events    ports.EventStore
	protocols map[string]ports.ProtocolAdapter
	cfg       Config

	enabled  atomic.Bool
	pending  atomic.Int64
	settleCh chan settlement
	loopDone chan struct{}
	execWG   sync.WaitGroup
	closing  atomic.Bool

	ulidMu sync.Mutex
}

// New creates a trading engine and starts its settle loop. Call Close to
// drain it.
func New(book ports.AgentBook, trades ports.TradeStore, limits ports.LimitStore, events ports.EventStore, adapters []ports.ProtocolAdapter, cfg Config) *Engine {
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}

	protocols := make(map[string]ports.ProtocolAdapter, len(adapters))
	for _, a := range adapters {
		protocols[a.Name()] = a
	}

	e := &Engine{
		book:      book,
		trades:    trades,
		limits:    limits,
		events:    events,
		protocols: protocols,
		cfg:       cfg,
		settleCh:  make(chan settlement, settleBuffer),
		loopDone:  make(chan struct{}),
	}
	e.enabled.Store(true)

	go e.settleLoop()

	slog.Info("trading engine started",
		"protocols", e.protocolNames(),
		"execution_timeout", cfg.ExecutionTimeout,
	)
	return e
}

// Submit validates and enqueues a trade. It returns after the pending row
// and TradeSubmitted event are durable; execution continues asynchronously
// and the caller polls the trade for final status.
//
// Rejections (stop, validation) happen before anything is persisted and
// never appear in the event log.
func (e *Engine) Submit(ctx context.Context, agentID string, intent domain.TradeIntent) (string, error) {
	// The stop flag pre-empts everything, including validation.
	if !e.enabled.Load() {
		return "", domain.ErrTradingDisabled
	}

	agent, ok := e.book.GetAgent(agentID)
	if !ok {
		return "", fmt.Errorf("engine.Submit: unknown agent %q", agentID)
	}

	limits, found, err := e.limits.GetPositionLimit(ctx, agentID, intent.OutputAsset)
	if err != nil {
		return "", fmt.Errorf("engine.Submit: load limits: %w", err)
	}
	if !found {
		slog.Warn("no position limits configured, using defaults", "agent", agentID, "asset", intent.OutputAsset)
		limits = domain.DefaultLimits(agentID)
	}

	snap, err := e.snapshot(ctx, agentID, intent.OutputAsset)
	if err != nil {
		return "", fmt.Errorf("engine.Submit: measure exposure: %w", err)
	}

	if verr := Validate(agent, intent, limits, snap); verr != nil {
		slog.Info("trade rejected", "agent", agentID, "code", verr.Code, "reason", verr.Reason)
		return "", verr
	}

	trade := domain.Trade{
		ID:             e.newTradeID(),
		AgentID:        agentID,
		Type:           intent.Type,
		Protocol:       intent.Protocol,
		InputAsset:     intent.InputAsset,
		InputAmount:    intent.InputAmount,
		OutputAsset:    intent.OutputAsset,
		ExpectedReturn: intent.ExpectedReturn,
		GasCostUSD:     intent.GasCostUSD,
		Status:         domain.TradePending,
		SubmittedAt:    time.Now().UTC(),
	}

	if err := e.trades.SaveTrade(ctx, trade); err != nil {
		return "", fmt.Errorf("engine.Submit: persist trade: %w", err)
	}

	submittedID, err := e.events.Append(ctx, domain.NewTradeSubmitted(trade))
	if err != nil {
		// A broken audit trail halts the writer: stop trading before
		// surfacing the error.
		e.EmergencyStop()
		return "", fmt.Errorf("engine.Submit: append TradeSubmitted: %w", err)
	}

	e.pending.Add(1)
	e.execWG.Add(1)
	go e.execute(trade, intent, submittedID)

	slog.Info("trade submitted", "trade", trade.ID, "agent", agentID,
		"type", intent.Type, "protocol", intent.Protocol, "amount", intent.InputAmount)
	return trade.ID, nil
}

// snapshot measures the mutable inputs of validation.
func (e *Engine) snapshot(ctx context.Context, agentID, asset string) (ValidationSnapshot, error) {
	exposure, err := e.trades.AssetExposure(ctx, agentID, asset)
	if err != nil {
		return ValidationSnapshot{}, err
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	count, err := e.trades.CountTradesSince(ctx, agentID, dayStart)
	if err != nil {
		return ValidationSnapshot{}, err
	}
	return ValidationSnapshot{AssetExposure: exposure, TradesToday: count}, nil
}

// execute runs the external side of one trade and hands the outcome to the
// settle loop. Runs in its own goroutine; the adapter call is the only
// suspension point after the trade is durably pending.
func (e *Engine) execute(trade domain.Trade, intent domain.TradeIntent, causedBy string) {
	defer e.execWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ExecutionTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := e.trades.MarkExecuting(ctx, trade.ID, now); err != nil {
		slog.Error("cannot mark trade executing", "trade", trade.ID, "err", err)
		e.pending.Add(-1)
		return
	}
	trade.Status = domain.TradeExecuting
	trade.ExecutedAt = &now

	result := e.dispatch(ctx, trade, intent)
	if !result.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Err = fmt.Sprintf("TIMEOUT: venue did not respond within %s", e.cfg.ExecutionTimeout)
	}

	e.settleCh <- settlement{trade: trade, result: result, causedBy: causedBy}
}

// dispatch routes the trade to the matching adapter capability. Unknown
// protocols and trade types settle failed like any venue failure.
func (e *Engine) dispatch(ctx context.Context, trade domain.Trade, intent domain.TradeIntent) domain.ExecutionResult {
	adapter, ok := e.protocols[trade.Protocol]
	if !ok {
		return domain.ExecutionResult{Err: fmt.Sprintf("protocol %q not configured", trade.Protocol)}
	}

	switch trade.Type {
	case domain.TradeDeposit:
		return adapter.Deposit(ctx, trade.OutputAsset, trade.InputAmount)
	case domain.TradeWithdraw:
		return adapter.Withdraw(ctx, trade.OutputAsset, trade.InputAmount)
	case domain.TradeSwap:
		return adapter.Swap(ctx, trade.InputAsset, trade.OutputAsset, trade.InputAmount, intent.MinOutput)
	default:
		return domain.ExecutionResult{Err: fmt.Sprintf("unknown trade type %q", trade.Type)}
	}
}

// settleLoop is the single writer of terminal trade state and capital
// deltas. One goroutine for the whole engine: settlements for the same
// agent can never race.
func (e *Engine) settleLoop() {
	defer close(e.loopDone)

	for s := range e.settleCh {
		e.settle(s)
		e.pending.Add(-1)
	}
}

func (e *Engine) settle(s settlement) {
	ctx := context.Background()
	trade := s.trade
	now := time.Now().UTC()

	if s.result.Success {
		trade.Status = domain.TradeSuccess
		trade.ActualReturn = s.result.OutputAmount
		trade.ExecutionPrice = s.result.ExecutionPrice
		trade.TxHash = s.result.TxHash
		if s.result.GasCostUSD > 0 {
			trade.GasCostUSD = s.result.GasCostUSD
		}
	} else {
		trade.Status = domain.TradeFailed
		trade.ErrorMessage = s.result.Err
		trade.FailedAt = &now
	}

	if err := e.trades.SettleTrade(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrAlreadySettled) {
			slog.Warn("trade settled twice, ignoring", "trade", trade.ID)
			return
		}
		slog.Error("cannot settle trade", "trade", trade.ID, "err", err)
		e.EmergencyStop()
		return
	}

	if _, err := e.events.Append(ctx, domain.NewTradeSettled(trade, s.causedBy)); err != nil {
		// Capital must not move without its audit event.
		slog.Error("cannot append TradeSettled, stopping trading", "trade", trade.ID, "err", err)
		e.EmergencyStop()
		return
	}

	if trade.Status == domain.TradeSuccess {
		delta := trade.CapitalDelta()
		if err := e.book.ApplyTradeDelta(trade.AgentID, delta); err != nil {
			slog.Error("cannot apply capital delta", "trade", trade.ID, "agent", trade.AgentID, "err", err)
			return
		}
		slog.Info("trade settled", "trade", trade.ID, "status", trade.Status, "delta", fmt.Sprintf("$%.2f", delta))
		return
	}

	slog.Info("trade settled", "trade", trade.ID, "status", trade.Status, "error", trade.ErrorMessage)
}

// EmergencyStop disables all new trade submissions immediately. Trades
// already past submission keep executing — external side effects cannot be
// recalled.
func (e *Engine) EmergencyStop() {
	if e.enabled.CompareAndSwap(true, false) {
		slog.Error("EMERGENCY STOP ACTIVATED", "pending_trades", e.pending.Load())
	}
}

// EmergencyResume re-enables trading. Nothing is re-validated.
func (e *Engine) EmergencyResume() {
	if e.enabled.CompareAndSwap(false, true) {
		slog.Warn("trading resumed after emergency stop")
	}
}

// Status returns the operator view of the engine.
func (e *Engine) Status() Status {
	return Status{
		TradingEnabled: e.enabled.Load(),
		PendingTrades:  int(e.pending.Load()),
		Protocols:      e.protocolNames(),
	}
}

// Close waits for in-flight executions and drains the settle loop.
func (e *Engine) Close() {
	if !e.closing.CompareAndSwap(false, true) {
		return
	}
	e.enabled.Store(false)
	e.execWG.Wait()
	close(e.settleCh)
	<-e.loopDone
}

func (e *Engine) protocolNames() []string {
	names := make([]string, 0, len(e.protocols))
	for name := range e.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newTradeID returns a ULID: unique and time-sortable, so trade rows sort
// by submission without a separate sequence.
func (e *Engine) newTradeID() string {
	e.ulidMu.Lock()
	defer e.ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}
