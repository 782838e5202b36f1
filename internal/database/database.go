// Package database implements sqlite persistence for categories and nav
// items. It uses database/sql with the mattn/go-sqlite3 driver; WAL mode
// plus a small lock-retry wrapper keep concurrent readers and the single
// writer goroutine from tripping over sqlite busy errors.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Common errors returned by the store.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("database: not found")

	// ErrCategoryNotEmpty is returned when deleting a category that still
	// has child categories.
	ErrCategoryNotEmpty = errors.New("database: category has child categories")
)

// Store is the sqlite-backed persistence layer.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the sqlite database at path and runs
// migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite allows a single writer; more connections only add lock churn.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: log.With().Str("component", "database").Logger(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("Database opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS nav_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nav_items_category ON nav_items(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nav_items_missing_desc ON nav_items(description) WHERE description = ''`,
		`CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const (
	execMaxRetries = 25
	execBaseDelay  = 10 * time.Millisecond
	execMaxDelay   = 100 * time.Millisecond
)

// isRetryableError checks for sqlite lock conflicts worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// exec runs a statement with retry on lock conflicts.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error

	delay := execBaseDelay
	for attempt := 0; attempt < execMaxRetries; attempt++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if !isRetryableError(err) {
			return res, err
		}

		s.logger.Debug().Int("attempt", attempt+1).Msg("sqlite locked, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > execMaxDelay {
			delay = execMaxDelay
		}
	}
	return res, err
}
