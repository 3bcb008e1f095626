package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// Notifier presents arena state to the operator.
type Notifier interface {
	// Notify renders the current stats and leaderboard.
	Notify(ctx context.Context, stats domain.ArenaStats) error
}
