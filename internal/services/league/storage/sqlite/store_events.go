package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/storage"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// EventStore methods (append-only governance log)

// AppendEvent atomically allocates the next per-season sequence number and
// inserts the event, returning it with Seq and a millisecond-truncated
// timestamp set.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.ID) == "" {
		return event.Event{}, fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(evt.SeasonID) == "" {
		return event.Event{}, fmt.Errorf("season id is required")
	}
	if !evt.Type.IsValid() {
		return event.Event{}, fmt.Errorf("event type is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_seq (season_id, next_seq) VALUES (?, 1)`,
		evt.SeasonID,
	); err != nil {
		return event.Event{}, fmt.Errorf("init event seq: %w", err)
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM event_seq WHERE season_id = ?`,
		evt.SeasonID,
	).Scan(&seq); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = seq

	if _, err := tx.ExecContext(ctx,
		`UPDATE event_seq SET next_seq = next_seq + 1 WHERE season_id = ?`,
		evt.SeasonID,
	); err != nil {
		return event.Event{}, fmt.Errorf("increment event seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO events (
    id, season_id, seq, round, event_type, aggregate_type, aggregate_id,
    governor_id, team_id, timestamp, payload_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		evt.SeasonID,
		evt.Seq,
		evt.Round,
		string(evt.Type),
		string(evt.AggregateType),
		evt.AggregateID,
		evt.GovernorID,
		evt.TeamID,
		toMillis(evt.Timestamp),
		evt.PayloadJSON,
	); err != nil {
		if isConstraintError(err) {
			return event.Event{}, storage.ErrConflict
		}
		return event.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit tx: %w", err)
	}
	return evt, nil
}

const selectEventColumns = `
SELECT id, season_id, seq, round, event_type, aggregate_type, aggregate_id,
       governor_id, team_id, timestamp, payload_json
FROM events`

// ListEvents returns events for a season with seq greater than afterSeq, in
// sequence order. A non-positive limit returns everything.
func (s *Store) ListEvents(ctx context.Context, seasonID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	query := selectEventColumns + ` WHERE season_id = ? AND seq > ? ORDER BY seq`
	args := []any{seasonID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// ListEventsByType returns a season's events of one type in sequence order.
func (s *Store) ListEventsByType(ctx context.Context, seasonID string, eventType event.Type) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.queryEvents(ctx,
		selectEventColumns+` WHERE season_id = ? AND event_type = ? ORDER BY seq`,
		seasonID, string(eventType),
	)
}

// ListEventsByAggregate returns a season's events for one aggregate in
// sequence order.
func (s *Store) ListEventsByAggregate(ctx context.Context, seasonID, aggregateID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.queryEvents(ctx,
		selectEventColumns+` WHERE season_id = ? AND aggregate_id = ? ORDER BY seq`,
		seasonID, aggregateID,
	)
}

// LatestSeq returns the highest assigned sequence number for a season, zero
// when the log is empty.
func (s *Store) LatestSeq(ctx context.Context, seasonID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE season_id = ?`,
		seasonID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			evt           event.Event
			eventType     string
			aggregateType string
			timestamp     int64
		)
		if err := rows.Scan(
			&evt.ID, &evt.SeasonID, &evt.Seq, &evt.Round, &eventType,
			&aggregateType, &evt.AggregateID, &evt.GovernorID, &evt.TeamID,
			&timestamp, &evt.PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.AggregateType = event.AggregateType(aggregateType)
		evt.Timestamp = fromMillis(timestamp)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
