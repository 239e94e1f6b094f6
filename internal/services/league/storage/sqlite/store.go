// Package sqlite implements the league storage interfaces over a single
// embedded SQLite file. Migrations are bundled and applied at open, and the
// store heals known schema drift so older databases keep working after
// upgrades.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/longshot/internal/services/league/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Store implements league persistence over SQLite.
//
// One SQLite file backs the whole league so round processing can rely on the
// database's single-writer semantics instead of cross-store coordination.
type Store struct {
	sqlDB *sql.DB
}

// DB returns the raw database handle for diagnostic callers.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens the league SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := store.healSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("heal schema: %w", err)
	}

	return store, nil
}

// OpenInMemory opens a throwaway store backed by an in-memory database.
// Intended for tests and the dry-run CLI paths.
func OpenInMemory() (*Store, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The in-memory database vanishes when its last connection closes.
	sqlDB.SetMaxOpenConns(1)

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// runMigrations applies embedded DDL snapshots for known schema versions.
func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS)
}

// healSchema backfills columns added after a table's original migration so
// databases created by older builds keep working without manual surgery.
func (s *Store) healSchema() error {
	specs := map[string][]sqlitemigrate.ColumnSpec{
		"seasons": {
			{Name: "lifecycle_json", DDL: "BLOB"},
		},
		"game_results": {
			{Name: "presented", DDL: "INTEGER NOT NULL DEFAULT 0"},
		},
		"reports": {
			{Name: "mock", DDL: "INTEGER NOT NULL DEFAULT 0"},
		},
		"players": {
			{Name: "meta_json", DDL: "BLOB"},
		},
		"teams": {
			{Name: "meta_json", DDL: "BLOB"},
		},
	}
	for table, columns := range specs {
		if err := sqlitemigrate.EnsureColumns(s.sqlDB, table, columns); err != nil {
			return err
		}
	}
	return nil
}
