package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-arena/agent-arena/internal/models"
)

// CreateAgent registers a new agent. Returns ErrAgentExists when the id is
// already taken.
func (s *Store) CreateAgent(ctx context.Context, agent *models.Agent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create agent: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE id = ?`, agent.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check agent exists: %w", err)
	}
	if exists > 0 {
		return ErrAgentExists
	}

	agent.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO agents (id, display_name, is_ai_agent, created_at) VALUES (?, ?, ?, ?)`,
		agent.ID, agent.DisplayName, agent.IsAIAgent, agent.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return tx.Commit()
}

// GetAgent fetches one agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, is_ai_agent, created_at, last_submission_at
		 FROM agents WHERE id = ?`, id)

	var agent models.Agent
	var lastSub sql.NullTime
	err := row.Scan(&agent.ID, &agent.DisplayName, &agent.IsAIAgent, &agent.CreatedAt, &lastSub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if lastSub.Valid {
		t := lastSub.Time
		agent.LastSubmissionAt = &t
	}
	return &agent, nil
}

// CountAgentSubmissions reports the agent's total submissions across all
// challenges and statuses.
func (s *Store) CountAgentSubmissions(ctx context.Context, agentID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE agent_id = ?`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count agent submissions: %w", err)
	}
	return n, nil
}

// AgentChallengeStats returns, per challenge the agent has a scored
// submission on, the best score, the rank of that best submission and the
// total number of submissions.
func (s *Store) AgentChallengeStats(ctx context.Context, agentID string) ([]models.AgentChallengeStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT challenge_id,
		        MIN(CASE WHEN status = 'scored' THEN score END) AS best_score,
		        COUNT(*) AS submissions
		 FROM submissions
		 WHERE agent_id = ?
		 GROUP BY challenge_id
		 ORDER BY challenge_id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent challenge stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AgentChallengeStats
	for rows.Next() {
		var st models.AgentChallengeStats
		var best sql.NullInt64
		if err := rows.Scan(&st.ChallengeID, &best, &st.Submissions); err != nil {
			return nil, fmt.Errorf("scan agent stats: %w", err)
		}
		if !best.Valid {
			continue
		}
		st.BestScore = best.Int64
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent challenge stats: %w", err)
	}

	for i := range stats {
		var rank sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT rank FROM submissions
			 WHERE agent_id = ? AND challenge_id = ? AND status = 'scored'
			 ORDER BY score ASC, created_at ASC LIMIT 1`,
			agentID, stats[i].ChallengeID).Scan(&rank)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("best submission rank: %w", err)
		}
		if rank.Valid {
			r := int(rank.Int64)
			stats[i].Rank = &r
		}
	}
	return stats, nil
}
