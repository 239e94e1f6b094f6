package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// LeagueStore methods

// PutLeague inserts or replaces a league row.
func (s *Store) PutLeague(ctx context.Context, l storage.LeagueRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("league id is required")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO leagues (id, name, created_at) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		l.ID, l.Name, toMillis(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put league: %w", err)
	}
	return nil
}

// GetLeague loads one league row.
func (s *Store) GetLeague(ctx context.Context, id string) (storage.LeagueRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LeagueRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LeagueRecord{}, fmt.Errorf("storage is not configured")
	}
	var (
		l         storage.LeagueRecord
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM leagues WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LeagueRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.LeagueRecord{}, fmt.Errorf("get league: %w", err)
	}
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

// PutSeason inserts or replaces a season row.
func (s *Store) PutSeason(ctx context.Context, rec storage.SeasonRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("season id is required")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO seasons (
    id, league_id, number, name, phase, current_round,
    starting_rules_json, current_rules_json, lifecycle_json,
    created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    phase = excluded.phase,
    current_round = excluded.current_round,
    current_rules_json = excluded.current_rules_json,
    lifecycle_json = excluded.lifecycle_json,
    updated_at = excluded.updated_at`,
		rec.ID, rec.LeagueID, rec.Number, rec.Name, rec.Phase, rec.CurrentRound,
		rec.StartingRulesJSON, rec.CurrentRulesJSON, rec.LifecycleJSON,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put season: %w", err)
	}
	return nil
}

const selectSeasonColumns = `
SELECT id, league_id, number, name, phase, current_round,
       starting_rules_json, current_rules_json, lifecycle_json,
       created_at, updated_at
FROM seasons`

// GetSeason loads one season row.
func (s *Store) GetSeason(ctx context.Context, id string) (storage.SeasonRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SeasonRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SeasonRecord{}, fmt.Errorf("storage is not configured")
	}
	return s.scanSeason(s.sqlDB.QueryRowContext(ctx, selectSeasonColumns+` WHERE id = ?`, id))
}

// GetActiveSeason returns the most recent season still in play, or the latest
// season when every season has completed.
func (s *Store) GetActiveSeason(ctx context.Context) (storage.SeasonRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SeasonRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SeasonRecord{}, fmt.Errorf("storage is not configured")
	}
	rec, err := s.scanSeason(s.sqlDB.QueryRowContext(ctx,
		selectSeasonColumns+` WHERE phase != 'COMPLETE' ORDER BY number DESC LIMIT 1`,
	))
	if errors.Is(err, storage.ErrNotFound) {
		return s.scanSeason(s.sqlDB.QueryRowContext(ctx,
			selectSeasonColumns+` ORDER BY number DESC LIMIT 1`,
		))
	}
	return rec, err
}

func (s *Store) scanSeason(row *sql.Row) (storage.SeasonRecord, error) {
	var (
		rec       storage.SeasonRecord
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.LeagueID, &rec.Number, &rec.Name, &rec.Phase, &rec.CurrentRound,
		&rec.StartingRulesJSON, &rec.CurrentRulesJSON, &rec.LifecycleJSON,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SeasonRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SeasonRecord{}, fmt.Errorf("scan season: %w", err)
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// ArchiveSeason stores the immutable snapshot of a completed season.
func (s *Store) ArchiveSeason(ctx context.Context, a storage.SeasonArchiveRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(a.SeasonID) == "" {
		return fmt.Errorf("season id is required")
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO season_archives (season_id, summary_json, archived_at)
VALUES (?, ?, ?)`,
		a.SeasonID, a.SummaryJSON, toMillis(a.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("archive season: %w", err)
	}
	return nil
}
