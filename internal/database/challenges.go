package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-arena/agent-arena/internal/models"
)

// UpsertChallenge inserts a challenge row or refreshes its catalog fields.
// best_score and best_agent_id are owned by rank recomputation and are left
// untouched on update.
func (s *Store) UpsertChallenge(ctx context.Context, ch *models.Challenge) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges
			(id, title, description, scoring_description, input_hash, input_size_bytes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			scoring_description = excluded.scoring_description,
			input_hash = excluded.input_hash,
			input_size_bytes = excluded.input_size_bytes,
			is_active = excluded.is_active`,
		ch.ID, ch.Title, ch.Description, ch.ScoringDescription,
		ch.InputHash, ch.InputSizeBytes, ch.IsActive, ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert challenge %s: %w", ch.ID, err)
	}
	return nil
}

// GetChallenge fetches one challenge by id.
func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, scoring_description, input_hash,
		        input_size_bytes, is_active, best_score, best_agent_id, created_at
		 FROM challenges WHERE id = ?`, id)
	ch, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return ch, nil
}

// ListActiveChallenges returns all active challenges ordered by id.
func (s *Store) ListActiveChallenges(ctx context.Context) ([]models.Challenge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, scoring_description, input_hash,
		        input_size_bytes, is_active, best_score, best_agent_id, created_at
		 FROM challenges WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []models.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *ch)
	}
	return challenges, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChallenge(row rowScanner) (*models.Challenge, error) {
	var ch models.Challenge
	var bestScore sql.NullInt64
	var bestAgent sql.NullString
	err := row.Scan(&ch.ID, &ch.Title, &ch.Description, &ch.ScoringDescription,
		&ch.InputHash, &ch.InputSizeBytes, &ch.IsActive, &bestScore, &bestAgent, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}
	if bestScore.Valid {
		v := bestScore.Int64
		ch.BestScore = &v
	}
	if bestAgent.Valid {
		v := bestAgent.String
		ch.BestAgentID = &v
	}
	return &ch, nil
}
