package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// RosterStore methods

// PutTeam inserts or replaces a team row.
func (s *Store) PutTeam(ctx context.Context, t storage.TeamRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("team id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO teams (id, season_id, name, emoji, venue_json, meta_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    emoji = excluded.emoji,
    venue_json = excluded.venue_json,
    meta_json = excluded.meta_json`,
		t.ID, t.SeasonID, t.Name, t.Emoji, t.VenueJSON, t.MetaJSON,
	)
	if err != nil {
		return fmt.Errorf("put team: %w", err)
	}
	return nil
}

// GetTeam loads one team row.
func (s *Store) GetTeam(ctx context.Context, id string) (storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamRecord{}, fmt.Errorf("storage is not configured")
	}
	teams, err := s.queryTeams(ctx,
		`SELECT id, season_id, name, emoji, venue_json, meta_json FROM teams WHERE id = ?`, id)
	if err != nil {
		return storage.TeamRecord{}, err
	}
	if len(teams) == 0 {
		return storage.TeamRecord{}, storage.ErrNotFound
	}
	return teams[0], nil
}

// ListTeams returns a season's teams ordered by name.
func (s *Store) ListTeams(ctx context.Context, seasonID string) ([]storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.queryTeams(ctx,
		`SELECT id, season_id, name, emoji, venue_json, meta_json FROM teams WHERE season_id = ? ORDER BY name`,
		seasonID)
}

func (s *Store) queryTeams(ctx context.Context, query string, args ...any) ([]storage.TeamRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []storage.TeamRecord
	for rows.Next() {
		var t storage.TeamRecord
		if err := rows.Scan(&t.ID, &t.SeasonID, &t.Name, &t.Emoji, &t.VenueJSON, &t.MetaJSON); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// UpdateTeamMeta replaces a team's governance overlay blob.
func (s *Store) UpdateTeamMeta(ctx context.Context, id string, metaJSON []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE teams SET meta_json = ? WHERE id = ?`, metaJSON, id)
	if err != nil {
		return fmt.Errorf("update team meta: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutPlayer inserts or replaces a player row.
func (s *Store) PutPlayer(ctx context.Context, p storage.PlayerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("player id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO players (
    id, team_id, season_id, name, archetype, backstory, roster_order,
    attributes_json, moves_json, meta_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    team_id = excluded.team_id,
    name = excluded.name,
    archetype = excluded.archetype,
    backstory = excluded.backstory,
    roster_order = excluded.roster_order,
    attributes_json = excluded.attributes_json,
    moves_json = excluded.moves_json,
    meta_json = excluded.meta_json`,
		p.ID, p.TeamID, p.SeasonID, p.Name, p.Archetype, p.Backstory, p.RosterOrder,
		p.AttributesJSON, p.MovesJSON, p.MetaJSON,
	)
	if err != nil {
		return fmt.Errorf("put player: %w", err)
	}
	return nil
}

// ListPlayers returns a team's players in roster order.
func (s *Store) ListPlayers(ctx context.Context, teamID string) ([]storage.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, team_id, season_id, name, archetype, backstory, roster_order,
       attributes_json, moves_json, meta_json
FROM players WHERE team_id = ? ORDER BY roster_order, id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	var players []storage.PlayerRecord
	for rows.Next() {
		var p storage.PlayerRecord
		if err := rows.Scan(
			&p.ID, &p.TeamID, &p.SeasonID, &p.Name, &p.Archetype, &p.Backstory,
			&p.RosterOrder, &p.AttributesJSON, &p.MovesJSON, &p.MetaJSON,
		); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return players, nil
}

// UpdatePlayerMeta replaces a player's per-season overlay blob.
func (s *Store) UpdatePlayerMeta(ctx context.Context, id string, metaJSON []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE players SET meta_json = ? WHERE id = ?`, metaJSON, id)
	if err != nil {
		return fmt.Errorf("update player meta: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutEnrollment inserts or replaces a governor's season enrollment.
func (s *Store) PutEnrollment(ctx context.Context, e storage.EnrollmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(e.GovernorID) == "" || strings.TrimSpace(e.SeasonID) == "" {
		return fmt.Errorf("governor id and season id are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO enrollments (governor_id, season_id, team_id, display_name, active, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (governor_id, season_id) DO UPDATE SET
    team_id = excluded.team_id,
    display_name = excluded.display_name,
    active = excluded.active`,
		e.GovernorID, e.SeasonID, e.TeamID, e.DisplayName, boolToInt(e.Active), toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put enrollment: %w", err)
	}
	return nil
}

// ListEnrollments returns a season's enrollments ordered by team then governor.
func (s *Store) ListEnrollments(ctx context.Context, seasonID string) ([]storage.EnrollmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT governor_id, season_id, team_id, display_name, active, created_at
FROM enrollments WHERE season_id = ? ORDER BY team_id, governor_id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []storage.EnrollmentRecord
	for rows.Next() {
		var (
			e         storage.EnrollmentRecord
			active    int
			createdAt int64
		)
		if err := rows.Scan(&e.GovernorID, &e.SeasonID, &e.TeamID, &e.DisplayName, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Active = active != 0
		e.CreatedAt = fromMillis(createdAt)
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return enrollments, nil
}
