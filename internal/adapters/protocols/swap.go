package protocols

// swap.go — adapter for a swap-style (DEX) venue. Supports swaps and
// output estimation only; deposits and withdrawals are declared
// unsupported. Same read-only discipline as the lending adapter.

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/arena/internal/domain"
)

// SwapConfig configures the swap venue adapter.
type SwapConfig struct {
	BaseURL    string
	SigningKey string  // empty → read-only mode
	ReqPerSec  float64 // venue rate limit
}

// Swapper implements ports.ProtocolAdapter for a DEX venue.
type Swapper struct {
	client *venueClient
}

// NewSwapper creates the swap venue adapter.
func NewSwapper(cfg SwapConfig) *Swapper {
	return &Swapper{
		client: newVenueClient("swap", cfg.BaseURL, cfg.SigningKey, cfg.ReqPerSec),
	}
}

func (s *Swapper) Name() string { return "swap" }

// Deposit is not offered by swap venues.
func (s *Swapper) Deposit(_ context.Context, _ string, _ float64) domain.ExecutionResult {
	return domain.Unsupported("swap", "deposits")
}

// Withdraw is not offered by swap venues.
func (s *Swapper) Withdraw(_ context.Context, _ string, _ float64) domain.ExecutionResult {
	return domain.Unsupported("swap", "withdrawals")
}

// Swap exchanges inputAsset for outputAsset on the venue.
func (s *Swapper) Swap(ctx context.Context, inputAsset, outputAsset string, inputAmount, minOutput float64) domain.ExecutionResult {
	if s.client.readOnly() {
		return domain.ReadOnly("swap")
	}

	var resp struct {
		TxHash         string  `json:"tx_hash"`
		OutputAmount   float64 `json:"output_amount"`
		ExecutionPrice float64 `json:"execution_price"`
		SlippagePct    float64 `json:"slippage_pct"`
		GasCostUSD     float64 `json:"gas_cost_usd"`
	}
	err := s.client.postJSON(ctx, "/v1/swaps", map[string]any{
		"input_asset":  inputAsset,
		"output_asset": outputAsset,
		"input_amount": inputAmount,
		"min_output":   minOutput,
	}, &resp)
	if err != nil {
		return domain.ExecutionResult{Err: err.Error()}
	}

	if minOutput > 0 && resp.OutputAmount < minOutput {
		return domain.ExecutionResult{
			SlippagePct: resp.SlippagePct,
			Err:         fmt.Sprintf("output %.6f below minimum %.6f", resp.OutputAmount, minOutput),
		}
	}

	return domain.ExecutionResult{
		Success:        true,
		TxHash:         resp.TxHash,
		OutputAmount:   resp.OutputAmount,
		ExecutionPrice: resp.ExecutionPrice,
		SlippagePct:    resp.SlippagePct,
		GasCostUSD:     resp.GasCostUSD,
	}
}

// EstimateOutput quotes the expected output for a swap without executing.
// Works in read-only mode.
func (s *Swapper) EstimateOutput(ctx context.Context, inputAsset, outputAsset string, inputAmount float64) (float64, error) {
	var resp struct {
		OutputAmount float64 `json:"output_amount"`
	}
	path := fmt.Sprintf("/v1/quote?in=%s&out=%s&amount=%s",
		url.QueryEscape(inputAsset), url.QueryEscape(outputAsset),
		url.QueryEscape(fmt.Sprintf("%f", inputAmount)))
	if err := s.client.getJSON(ctx, path, &resp); err != nil {
		return 0, err
	}
	return resp.OutputAmount, nil
}

// GetAPY is not offered by swap venues.
func (s *Swapper) GetAPY(_ context.Context, _ string) (float64, error) {
	return 0, fmt.Errorf("swap venue does not quote APY")
}
