package protocols

// lending.go — adapter for a lending-style venue. Supports deposit,
// withdraw and APY lookup; swaps are declared unsupported. Without a
// signing key the adapter runs in read-only mode and every mutating call
// fails with a declared result, never a crash.

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// LendingConfig configures the lending venue adapter.
type LendingConfig struct {
	BaseURL    string
	SigningKey string  // empty → read-only mode
	ReqPerSec  float64 // venue rate limit
}

// Lending implements ports.ProtocolAdapter for a lending venue.
type Lending struct {
	client *venueClient
}

// NewLending creates the lending venue adapter.
func NewLending(cfg LendingConfig) *Lending {
	return &Lending{
		client: newVenueClient("lending", cfg.BaseURL, cfg.SigningKey, cfg.ReqPerSec),
	}
}

func (l *Lending) Name() string { return "lending" }

type lendingTxResponse struct {
	TxHash     string  `json:"tx_hash"`
	Amount     float64 `json:"amount"`
	GasCostUSD float64 `json:"gas_cost_usd"`
}

// Deposit supplies an asset to the lending pool.
func (l *Lending) Deposit(ctx context.Context, asset string, amount float64) domain.ExecutionResult {
	if l.client.readOnly() {
		return domain.ReadOnly("lending")
	}

	var resp lendingTxResponse
	err := l.client.postJSON(ctx, "/v1/deposits", map[string]any{
		"asset":  asset,
		"amount": amount,
	}, &resp)
	if err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}

	return domain.ExecutionResult{
		Success:      true,
		TxHash:       resp.TxHash,
		OutputAmount: resp.Amount,
		GasCostUSD:   resp.GasCostUSD,
	}
}

// Withdraw removes an asset from the lending pool.
func (l *Lending) Withdraw(ctx context.Context, asset string, amount float64) domain.ExecutionResult {
	if l.client.readOnly() {
		return domain.ReadOnly("lending")
	}

	var resp lendingTxResponse
	err := l.client.postJSON(ctx, "/v1/withdrawals", map[string]any{
		"asset":  asset,
		"amount": amount,
	}, &resp)
	if err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}

	return domain.ExecutionResult{
		Success:      true,
		TxHash:       resp.TxHash,
		OutputAmount: resp.Amount,
		GasCostUSD:   resp.GasCostUSD,
	}
}

// Swap is not offered by lending venues.
func (l *Lending) Swap(_ context.Context, _, _ string, _, _ float64) domain.ExecutionResult {
	return domain.Unsupported("lending", "swaps")
}

// GetAPY returns the current supply APY for an asset. Works in read-only
// mode: quoting requires no credential.
func (l *Lending) GetAPY(ctx context.Context, asset string) (float64, error) {
	var resp struct {
		APY float64 `json:"apy"`
	}
	if err := l.client.getJSON(ctx, "/v1/markets/"+asset+"/apy", &resp); err != nil {
		return 0, err
	}
	return resp.APY, nil
}
