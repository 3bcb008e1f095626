package storage

// events.go — the append-only event log. INSERT is the only statement that
// touches the events table.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// Append persists an event and returns its event_id.
func (s *SQLiteStorage) Append(ctx context.Context, ev domain.Event) (string, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return "", fmt.Errorf("storage.Append: marshal data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, agent_id, timestamp, data, caused_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, string(ev.Type), ev.AgentID, ev.Timestamp.UTC(), string(data), ev.CausedBy,
	)
	if err != nil {
		return "", fmt.Errorf("storage.Append: insert event %s: %w", ev.Type, err)
	}
	return ev.EventID, nil
}

// Query returns events matching the filter, ordered by timestamp with ties
// broken by insertion order.
func (s *SQLiteStorage) Query(ctx context.Context, f ports.EventFilter) ([]domain.Event, error) {
	var conds []string
	var args []any

	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT event_id, event_type, agent_id, timestamp, data, caused_by FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp, seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var typ, data string
		var ts time.Time
		if err := rows.Scan(&ev.EventID, &typ, &ev.AgentID, &ts, &data, &ev.CausedBy); err != nil {
			return nil, fmt.Errorf("storage.Query: scan: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.Timestamp = ts.UTC()
		if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
			return nil, fmt.Errorf("storage.Query: unmarshal data for %s: %w", ev.EventID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByType returns the number of stored events per type.
func (s *SQLiteStorage) CountByType(ctx context.Context) (map[domain.EventType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("storage.CountByType: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("storage.CountByType: scan: %w", err)
		}
		counts[domain.EventType(typ)] = n
	}
	return counts, rows.Err()
}
