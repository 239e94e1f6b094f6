package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// GameStore methods

// PutGameResult persists a simulated game and its box score lines atomically.
func (s *Store) PutGameResult(ctx context.Context, g storage.GameResultRecord, boxScores []storage.BoxScoreRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("game id is required")
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO game_results (
    id, season_id, round, home_team_id, away_team_id,
    home_score, away_score, seed, result_json, presented, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.SeasonID, g.Round, g.HomeTeamID, g.AwayTeamID,
		g.HomeScore, g.AwayScore, g.Seed, g.ResultJSON, boolToInt(g.Presented),
		toMillis(g.CreatedAt),
	); err != nil {
		return fmt.Errorf("put game result: %w", err)
	}

	for _, line := range boxScores {
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO box_scores (game_id, player_id, team_id, line_json)
VALUES (?, ?, ?, ?)`,
			g.ID, line.PlayerID, line.TeamID, line.LineJSON,
		); err != nil {
			return fmt.Errorf("put box score %s: %w", line.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectGameResultColumns = `
SELECT id, season_id, round, home_team_id, away_team_id,
       home_score, away_score, seed, result_json, presented, created_at
FROM game_results`

// GetGameResult loads one game.
func (s *Store) GetGameResult(ctx context.Context, id string) (storage.GameResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.GameResultRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.GameResultRecord{}, fmt.Errorf("storage is not configured")
	}
	games, err := s.queryGameResults(ctx, selectGameResultColumns+` WHERE id = ?`, id)
	if err != nil {
		return storage.GameResultRecord{}, err
	}
	if len(games) == 0 {
		return storage.GameResultRecord{}, storage.ErrNotFound
	}
	return games[0], nil
}

// ListGameResults returns one round's games in ID order. A negative round
// returns the whole season ordered by round then ID.
func (s *Store) ListGameResults(ctx context.Context, seasonID string, round int) ([]storage.GameResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if round < 0 {
		return s.queryGameResults(ctx,
			selectGameResultColumns+` WHERE season_id = ? ORDER BY round, id`,
			seasonID)
	}
	return s.queryGameResults(ctx,
		selectGameResultColumns+` WHERE season_id = ? AND round = ? ORDER BY id`,
		seasonID, round)
}

// ListUnpresentedGames returns a round's games not yet replayed to spectators.
func (s *Store) ListUnpresentedGames(ctx context.Context, seasonID string, round int) ([]storage.GameResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.queryGameResults(ctx,
		selectGameResultColumns+` WHERE season_id = ? AND round = ? AND presented = 0 ORDER BY id`,
		seasonID, round)
}

func (s *Store) queryGameResults(ctx context.Context, query string, args ...any) ([]storage.GameResultRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query game results: %w", err)
	}
	defer rows.Close()

	var games []storage.GameResultRecord
	for rows.Next() {
		var (
			g         storage.GameResultRecord
			presented int
			createdAt int64
		)
		if err := rows.Scan(
			&g.ID, &g.SeasonID, &g.Round, &g.HomeTeamID, &g.AwayTeamID,
			&g.HomeScore, &g.AwayScore, &g.Seed, &g.ResultJSON, &presented, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan game result: %w", err)
		}
		g.Presented = presented != 0
		g.CreatedAt = fromMillis(createdAt)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game results: %w", err)
	}
	return games, nil
}

// MarkGamePresented flips a game's presented flag once replay completes.
func (s *Store) MarkGamePresented(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE game_results SET presented = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark game presented: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListBoxScores returns a game's stat lines.
func (s *Store) ListBoxScores(ctx context.Context, gameID string) ([]storage.BoxScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT game_id, player_id, team_id, line_json
FROM box_scores WHERE game_id = ? ORDER BY player_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query box scores: %w", err)
	}
	defer rows.Close()

	var lines []storage.BoxScoreRecord
	for rows.Next() {
		var line storage.BoxScoreRecord
		if err := rows.Scan(&line.GameID, &line.PlayerID, &line.TeamID, &line.LineJSON); err != nil {
			return nil, fmt.Errorf("scan box score: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate box scores: %w", err)
	}
	return lines, nil
}
