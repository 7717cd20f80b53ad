package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Typed failures callers branch on with errors.Is.
var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentExists        = errors.New("agent already exists")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// Store wraps the sqlite database holding agents, challenges and
// submissions.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		is_ai_agent INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		last_submission_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		scoring_description TEXT NOT NULL DEFAULT '',
		input_hash TEXT NOT NULL DEFAULT '',
		input_size_bytes INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		best_score INTEGER,
		best_agent_id TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		challenge_id TEXT NOT NULL REFERENCES challenges(id),
		compressed_size_bytes INTEGER NOT NULL DEFAULT 0,
		decompressor_size_bytes INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		error_code TEXT,
		breakdown TEXT,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		rank INTEGER,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_challenge_score
		ON submissions(challenge_id, score)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_agent_challenge
		ON submissions(agent_id, challenge_id)`,
}

// Open opens (creating if needed) the sqlite database at path and applies
// migrations.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite works best with a single connection; writes are serialized
	// here instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("path", path).Info("Database ready")
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// Ping reports database liveness for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
