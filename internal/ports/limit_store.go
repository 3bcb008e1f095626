package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// LimitStore holds externally configured position limits.
type LimitStore interface {
	// SetPositionLimit upserts a limit row.
	SetPositionLimit(ctx context.Context, l domain.PositionLimit) error

	// GetPositionLimit returns the limit for an agent/asset pair.
	// Asset-specific rows take precedence over the agent-wide row
	// (asset = ""). ok is false when nothing is configured.
	GetPositionLimit(ctx context.Context, agentID, asset string) (l domain.PositionLimit, ok bool, err error)
}
