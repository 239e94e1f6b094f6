package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// ReportStore methods

// PutReport persists one generated narrative artifact.
func (s *Store) PutReport(ctx context.Context, r storage.ReportRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("report id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO reports (
    id, season_id, round, kind, game_id, governor_id, body, mock, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SeasonID, r.Round, r.Kind, r.GameID, r.GovernorID, r.Body,
		boolToInt(r.Mock), toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	return nil
}

// ListReports returns one round's reports ordered by kind then ID.
func (s *Store) ListReports(ctx context.Context, seasonID string, round int) ([]storage.ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, season_id, round, kind, game_id, governor_id, body, mock, created_at
FROM reports WHERE season_id = ? AND round = ? ORDER BY kind, id`, seasonID, round)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []storage.ReportRecord
	for rows.Next() {
		var (
			r         storage.ReportRecord
			mock      int
			createdAt int64
		)
		if err := rows.Scan(
			&r.ID, &r.SeasonID, &r.Round, &r.Kind, &r.GameID, &r.GovernorID,
			&r.Body, &mock, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Mock = mock != 0
		r.CreatedAt = fromMillis(createdAt)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// EffectStore methods

// PutEffect mirrors a registered effect for fast active-set loads.
func (s *Store) PutEffect(ctx context.Context, e storage.EffectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("effect id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO effects_registry (
    id, season_id, proposal_id, spec_json, activation_round, expiration_round, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SeasonID, e.ProposalID, e.SpecJSON, e.ActivationRound,
		e.ExpirationRound, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put effect: %w", err)
	}
	return nil
}

// ListEffects returns a season's mirrored effects in ID order.
func (s *Store) ListEffects(ctx context.Context, seasonID string) ([]storage.EffectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, season_id, proposal_id, spec_json, activation_round, expiration_round, created_at
FROM effects_registry WHERE season_id = ? ORDER BY id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	var effects []storage.EffectRecord
	for rows.Next() {
		var (
			e         storage.EffectRecord
			createdAt int64
		)
		if err := rows.Scan(
			&e.ID, &e.SeasonID, &e.ProposalID, &e.SpecJSON,
			&e.ActivationRound, &e.ExpirationRound, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return effects, nil
}

// UsageStore methods

// PutAIUsage records one gateway call's accounting row.
func (s *Store) PutAIUsage(ctx context.Context, u storage.AIUsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("usage id is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ai_usage_log (
    id, purpose, model, input_tokens, output_tokens, cache_tokens,
    latency_ms, mock, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Purpose, u.Model, u.InputTokens, u.OutputTokens, u.CacheTokens,
		u.LatencyMS, boolToInt(u.Mock), toMillis(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put ai usage: %w", err)
	}
	return nil
}

// ListAIUsage returns the most recent usage rows, newest first.
func (s *Store) ListAIUsage(ctx context.Context, limit int) ([]storage.AIUsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, purpose, model, input_tokens, output_tokens, cache_tokens,
       latency_ms, mock, created_at
FROM ai_usage_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ai usage: %w", err)
	}
	defer rows.Close()

	var usages []storage.AIUsageRecord
	for rows.Next() {
		var (
			u         storage.AIUsageRecord
			mock      int
			createdAt int64
		)
		if err := rows.Scan(
			&u.ID, &u.Purpose, &u.Model, &u.InputTokens, &u.OutputTokens,
			&u.CacheTokens, &u.LatencyMS, &mock, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan ai usage: %w", err)
		}
		u.Mock = mock != 0
		u.CreatedAt = fromMillis(createdAt)
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ai usage: %w", err)
	}
	return usages, nil
}
