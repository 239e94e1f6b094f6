package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LeaseStore methods (bot_state singleton guard)

// AcquireLease takes or renews the named lease. It succeeds when the lease is
// unheld, expired, or already held by the same holder. The decision and the
// write happen in one transaction so two processes cannot both win.
func (s *Store) AcquireLease(ctx context.Context, key, holder string, ttl time.Duration, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(holder) == "" {
		return false, fmt.Errorf("lease key and holder are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		current   string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM bot_state WHERE lease_key = ?`, key,
	).Scan(&current, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No lease row yet; fall through and claim it.
	case err != nil:
		return false, fmt.Errorf("read lease: %w", err)
	default:
		if current != holder && fromMillis(expiresAt).After(now) {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO bot_state (lease_key, holder, expires_at)
VALUES (?, ?, ?)`,
		key, holder, toMillis(now.Add(ttl)),
	); err != nil {
		return false, fmt.Errorf("write lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// ReleaseLease drops the lease when held by holder. Releasing a lease held by
// someone else is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, key, holder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM bot_state WHERE lease_key = ? AND holder = ?`, key, holder,
	); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
