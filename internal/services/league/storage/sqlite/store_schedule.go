package sqlite

import (
	"context"
	"fmt"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// ScheduleStore methods

// PutScheduledGames inserts a batch of fixtures in one transaction.
func (s *Store) PutScheduledGames(ctx context.Context, games []storage.ScheduledGameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(games) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, g := range games {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO schedule (id, season_id, round, home_team_id, away_team_id, played)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    round = excluded.round,
    home_team_id = excluded.home_team_id,
    away_team_id = excluded.away_team_id`,
			g.ID, g.SeasonID, g.Round, g.HomeTeamID, g.AwayTeamID, boolToInt(g.Played),
		); err != nil {
			return fmt.Errorf("put scheduled game %s: %w", g.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListScheduledGames returns one round's fixtures, or the whole season's when
// round is negative.
func (s *Store) ListScheduledGames(ctx context.Context, seasonID string, round int) ([]storage.ScheduledGameRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	query := `
SELECT id, season_id, round, home_team_id, away_team_id, played
FROM schedule WHERE season_id = ?`
	args := []any{seasonID}
	if round >= 0 {
		query += ` AND round = ?`
		args = append(args, round)
	}
	query += ` ORDER BY round, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	var games []storage.ScheduledGameRecord
	for rows.Next() {
		var (
			g      storage.ScheduledGameRecord
			played int
		)
		if err := rows.Scan(&g.ID, &g.SeasonID, &g.Round, &g.HomeTeamID, &g.AwayTeamID, &played); err != nil {
			return nil, fmt.Errorf("scan scheduled game: %w", err)
		}
		g.Played = played != 0
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	return games, nil
}

// MarkScheduledGamePlayed flips a fixture's played flag.
func (s *Store) MarkScheduledGamePlayed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE schedule SET played = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark scheduled game played: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
