package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// EventFilter narrows an event query. Zero values mean "no constraint".
type EventFilter struct {
	Types   []domain.EventType
	AgentID string
	From    time.Time
	To      time.Time
	Limit   int
}

// EventStore is the append-only audit log. There is deliberately no update
// or delete: events are immutable once appended. An append error is fatal
// to the caller — dependent writers must halt rather than continue without
// an audit trail.
type EventStore interface {
	// Append persists the event and returns its event_id.
	Append(ctx context.Context, ev domain.Event) (string, error)

	// Query returns matching events ordered by timestamp, ties broken by
	// insertion order.
	Query(ctx context.Context, f EventFilter) ([]domain.Event, error)

	// CountByType returns the number of stored events per type.
	CountByType(ctx context.Context) (map[domain.EventType]int, error)
}
