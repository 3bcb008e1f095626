package protocols

// simulation.go — virtual venue for the simulation tier and for tests.
// No network, configurable failure rate, deterministic under a fixed seed.

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

const (
	simGasDeposit  = 3.50
	simGasWithdraw = 4.00
	simGasSwap     = 12.50
)

// SimulationConfig tunes the virtual venue.
type SimulationConfig struct {
	SuccessRate float64       // 0..1, probability a call succeeds
	MinLatency  time.Duration // synthetic latency band, 0 = instant
	MaxLatency  time.Duration
	Seed        int64 // RNG seed; fixed seed → reproducible runs
}

// Simulation implements ports.ProtocolAdapter without touching any external
// system. Supports the full capability set.
type Simulation struct {
	cfg  SimulationConfig
	apys map[string]float64
	// rates maps "IN/OUT" pairs to a base exchange rate.
	rates map[string]float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulation creates the virtual venue. A zero SuccessRate is treated
// as the 0.95 default.
func NewSimulation(cfg SimulationConfig) *Simulation {
	if cfg.SuccessRate <= 0 {
		cfg.SuccessRate = 0.95
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Simulation{
		cfg: cfg,
		apys: map[string]float64{
			"USDC": 0.08,
			"ETH":  0.05,
			"BTC":  0.03,
			"DAI":  0.075,
		},
		rates: map[string]float64{
			"USDC/ETH": 0.0004,
			"ETH/USDC": 2500,
			"USDC/BTC": 0.000011,
			"BTC/USDC": 90000,
			"DAI/USDC": 0.9995,
			"USDC/DAI": 1.0005,
		},
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulation) Name() string { return "simulation" }

// Deposit simulates supplying an asset.
func (s *Simulation) Deposit(ctx context.Context, asset string, amount float64) domain.ExecutionResult {
	if err := s.wait(ctx); err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}
	if s.roll() {
		return domain.ExecutionResult{Err: "simulated network failure"}
	}
	return domain.ExecutionResult{
		Success:      true,
		TxHash:       s.txHash("deposit", asset),
		OutputAmount: amount,
		GasCostUSD:   simGasDeposit,
	}
}

// Withdraw simulates removing an asset.
func (s *Simulation) Withdraw(ctx context.Context, asset string, amount float64) domain.ExecutionResult {
	if err := s.wait(ctx); err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}
	if s.roll() {
		return domain.ExecutionResult{Err: "simulated insufficient liquidity"}
	}
	return domain.ExecutionResult{
		Success:      true,
		TxHash:       s.txHash("withdraw", asset),
		OutputAmount: amount,
		GasCostUSD:   simGasWithdraw,
	}
}

// Swap simulates a DEX swap with a 0.1%–0.5% slippage band.
func (s *Simulation) Swap(ctx context.Context, inputAsset, outputAsset string, inputAmount, minOutput float64) domain.ExecutionResult {
	if err := s.wait(ctx); err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}
	if s.roll() {
		return domain.ExecutionResult{Err: "simulated slippage exceeded tolerance"}
	}

	baseRate := s.rates[inputAsset+"/"+outputAsset]
	if baseRate == 0 {
		baseRate = 1.0
	}

	s.mu.Lock()
	slippage := 0.001 + s.rng.Float64()*0.004
	s.mu.Unlock()

	executionRate := baseRate * (1 - slippage)
	outputAmount := inputAmount * executionRate

	if minOutput > 0 && outputAmount < minOutput {
		return domain.ExecutionResult{
			SlippagePct: slippage * 100,
			Err:         fmt.Sprintf("output %.6f below minimum %.6f", outputAmount, minOutput),
		}
	}

	return domain.ExecutionResult{
		Success:        true,
		TxHash:         s.txHash("swap", inputAsset+"-"+outputAsset),
		OutputAmount:   outputAmount,
		ExecutionPrice: executionRate,
		SlippagePct:    slippage * 100,
		GasCostUSD:     simGasSwap,
	}
}

// GetAPY returns the mock yield for an asset.
func (s *Simulation) GetAPY(_ context.Context, asset string) (float64, error) {
	apy, ok := s.apys[asset]
	if !ok {
		return 0, fmt.Errorf("simulation: no APY for %q", asset)
	}
	return apy, nil
}

// roll returns true when the call should fail.
func (s *Simulation) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() > s.cfg.SuccessRate
}

// wait applies the synthetic latency band, honoring context cancellation.
func (s *Simulation) wait(ctx context.Context) error {
	if s.cfg.MaxLatency <= 0 {
		return nil
	}
	s.mu.Lock()
	span := s.cfg.MaxLatency - s.cfg.MinLatency
	d := s.cfg.MinLatency
	if span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.mu.Unlock()

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulation) txHash(op, detail string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("0xsim_%s_%s_%08x", op, detail, s.rng.Uint32())
}
