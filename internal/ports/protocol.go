package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// ProtocolAdapter executes the external side of a trade on one venue.
// Venue failures — including declared "unsupported operation" and
// "read-only mode" — come back in the ExecutionResult, never as a Go error,
// so the engine's settlement path has a single uniform branch.
//
// Variants implement only the capabilities their venue offers and return
// an unsupported result for the rest.
type ProtocolAdapter interface {
	// Name identifies the venue ("simulation", "lending", "swap").
	Name() string

	// Deposit supplies an asset to the venue.
	Deposit(ctx context.Context, asset string, amount float64) domain.ExecutionResult

	// Withdraw removes a previously supplied asset.
	Withdraw(ctx context.Context, asset string, amount float64) domain.ExecutionResult

	// Swap exchanges inputAsset for outputAsset. minOutput > 0 enforces a
	// slippage floor.
	Swap(ctx context.Context, inputAsset, outputAsset string, inputAmount, minOutput float64) domain.ExecutionResult

	// GetAPY returns the current yield for an asset, if the venue quotes one.
	GetAPY(ctx context.Context, asset string) (float64, error)
}
