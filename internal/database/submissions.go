package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agent-arena/agent-arena/internal/models"
)

// CreateSubmission runs the submit transaction: agent upsert, trailing
// rate-limit window count, row insert and last_submission_at touch. The
// count and the insert share one transaction so concurrent bursts cannot
// slip past the limit. Returns ErrRateLimited when the window is full.
func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission, perWindow int, window time.Duration) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.Status = models.StatusPending

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO agents (id, display_name, is_ai_agent, created_at)
		 VALUES (?, ?, 1, ?) ON CONFLICT(id) DO NOTHING`,
		sub.AgentID, sub.AgentID, now)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}

	var recent int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions
		 WHERE agent_id = ? AND challenge_id = ? AND created_at > ?`,
		sub.AgentID, sub.ChallengeID, now.Add(-window)).Scan(&recent)
	if err != nil {
		return fmt.Errorf("count recent submissions: %w", err)
	}
	if recent >= perWindow {
		return ErrRateLimited
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions
			(id, agent_id, challenge_id, compressed_size_bytes, decompressor_size_bytes,
			 score, status, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?)`,
		sub.ID, sub.AgentID, sub.ChallengeID,
		sub.CompressedSizeBytes, sub.DecompressorSizeBytes,
		sub.Status, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE agents SET last_submission_at = ? WHERE id = ?`, now, sub.AgentID)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}

	return tx.Commit()
}

// CountRecentSubmissions reports how many submissions the agent has made
// against the challenge inside the trailing window. This is the cheap
// pre-insert check; CreateSubmission repeats the count atomically.
func (s *Store) CountRecentSubmissions(ctx context.Context, agentID, challengeID string, window time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions
		 WHERE agent_id = ? AND challenge_id = ? AND created_at > ?`,
		agentID, challengeID, time.Now().UTC().Add(-window)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent submissions: %w", err)
	}
	return n, nil
}

// GetSubmission fetches one submission by id.
func (s *Store) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, challenge_id, compressed_size_bytes, decompressor_size_bytes,
		        score, status, error_message, error_code, breakdown, execution_time_ms,
		        rank, created_at
		 FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ClaimProcessing transitions a pending submission to processing. The
// returned bool is false when the row is no longer pending, for example
// after a boot sweep marked it stuck.
func (s *Store) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`,
		models.StatusProcessing, id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim submission: %w", err)
	}
	return n == 1, nil
}

// CompleteSubmission writes a terminal state. Rows already terminal are
// left untouched; the returned bool reports whether the write landed.
func (s *Store) CompleteSubmission(ctx context.Context, id string, status models.SubmissionStatus,
	score int64, errMsg, errCode *string, breakdown map[string]interface{}, execMS int64) (bool, error) {

	if !status.IsTerminal() {
		return false, fmt.Errorf("complete submission: %q is not a terminal status", status)
	}

	var breakdownJSON sql.NullString
	if breakdown != nil {
		data, err := json.Marshal(breakdown)
		if err != nil {
			return false, fmt.Errorf("marshal breakdown: %w", err)
		}
		breakdownJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET status = ?, score = ?, error_message = ?, error_code = ?, breakdown = ?, execution_time_ms = ?
		 WHERE id = ? AND status IN (?, ?)`,
		status, score, errMsg, errCode, breakdownJSON, execMS,
		id, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("complete submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete submission: %w", err)
	}
	return n == 1, nil
}

// FailSubmission is CompleteSubmission for error outcomes.
func (s *Store) FailSubmission(ctx context.Context, id, errCode, errMsg string, execMS int64) (bool, error) {
	return s.CompleteSubmission(ctx, id, models.StatusError, 0, &errMsg, &errCode, nil, execMS)
}

// RecomputeRanks reassigns dense standard competition ranks for every
// scored submission of a challenge and refreshes the challenge's best
// score. Ordering is (score ASC, created_at ASC); equal scores share a
// rank; the next distinct score gets 1 + its position in the order.
// Callers serialize invocations per challenge.
func (s *Store) RecomputeRanks(ctx context.Context, challengeID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recompute ranks: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, agent_id, score FROM submissions
		 WHERE challenge_id = ? AND status = ?
		 ORDER BY score ASC, created_at ASC`,
		challengeID, models.StatusScored)
	if err != nil {
		return fmt.Errorf("select scored submissions: %w", err)
	}

	type rankedRow struct {
		id      string
		agentID string
		score   int64
		rank    int
	}
	var ranked []rankedRow
	var prevScore int64
	currentRank := 1
	index := 0
	for rows.Next() {
		var id, agentID string
		var score int64
		if err := rows.Scan(&id, &agentID, &score); err != nil {
			rows.Close()
			return fmt.Errorf("scan scored submission: %w", err)
		}
		if index > 0 && score > prevScore {
			currentRank = index + 1
		}
		ranked = append(ranked, rankedRow{id: id, agentID: agentID, score: score, rank: currentRank})
		prevScore = score
		index++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate scored submissions: %w", err)
	}
	rows.Close()

	for _, r := range ranked {
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET rank = ? WHERE id = ?`, r.rank, r.id); err != nil {
			return fmt.Errorf("update rank: %w", err)
		}
	}

	if len(ranked) > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE challenges SET best_score = ?, best_agent_id = ? WHERE id = ?`,
			ranked[0].score, ranked[0].agentID, challengeID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE challenges SET best_score = NULL, best_agent_id = NULL WHERE id = ?`,
			challengeID)
	}
	if err != nil {
		return fmt.Errorf("update challenge best: %w", err)
	}

	return tx.Commit()
}

// Leaderboard returns the top entries for a challenge: one row per agent
// holding that agent's minimum score, densely ranked.
func (s *Store) Leaderboard(ctx context.Context, challengeID string, limit int) (*models.Leaderboard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, score, compressed_size_bytes, decompressor_size_bytes, created_at
		 FROM submissions
		 WHERE challenge_id = ? AND status = ?
		 ORDER BY score ASC, created_at ASC`,
		challengeID, models.StatusScored)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	lb := &models.Leaderboard{ChallengeID: challengeID, Entries: []models.LeaderboardEntry{}}
	seen := make(map[string]bool)
	var prevScore int64
	currentRank := 1
	index := 0
	for rows.Next() {
		var agentID string
		var score, compressedSize, codeSize int64
		var createdAt time.Time
		if err := rows.Scan(&agentID, &score, &compressedSize, &codeSize, &createdAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		if seen[agentID] {
			continue
		}
		seen[agentID] = true
		if index > 0 && score > prevScore {
			currentRank = index + 1
		}
		if len(lb.Entries) < limit {
			lb.Entries = append(lb.Entries, models.LeaderboardEntry{
				Rank:                  currentRank,
				AgentID:               agentID,
				Score:                 score,
				CompressedSizeBytes:   compressedSize,
				DecompressorSizeBytes: codeSize,
				SubmittedAt:           createdAt,
			})
		}
		prevScore = score
		index++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT agent_id) FROM submissions WHERE challenge_id = ?`,
		challengeID).Scan(&lb.TotalSubmissions, &lb.UniqueAgents)
	if err != nil {
		return nil, fmt.Errorf("leaderboard totals: %w", err)
	}
	return lb, nil
}

// AgentSubmissions lists an agent's submissions, newest first, optionally
// filtered by challenge.
func (s *Store) AgentSubmissions(ctx context.Context, agentID, challengeID string, limit int) ([]models.Submission, error) {
	query := `SELECT id, agent_id, challenge_id, compressed_size_bytes, decompressor_size_bytes,
	                 score, status, error_message, error_code, breakdown, execution_time_ms,
	                 rank, created_at
	          FROM submissions WHERE agent_id = ?`
	args := []interface{}{agentID}
	if challengeID != "" {
		query += ` AND challenge_id = ?`
		args = append(args, challengeID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("agent submissions: %w", err)
	}
	defer rows.Close()

	subs := []models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// SweepStuck marks processing rows older than the threshold as errored.
// Evaluation artifacts live only in the worker queue, so rows orphaned by
// a crash can never finish and are failed with STUCK_EVALUATION on boot.
func (s *Store) SweepStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET status = ?, error_code = ?, error_message = ?
		 WHERE status = ? AND created_at < ?`,
		models.StatusError, models.ErrCodeStuckEvaluation,
		"evaluation did not complete before restart",
		models.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stuck submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep stuck submissions: %w", err)
	}
	if n > 0 {
		s.logger.WithField("count", n).Warn("Marked stuck submissions as errored")
	}
	return n, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var errMsg, errCode, breakdown sql.NullString
	var rank sql.NullInt64
	err := row.Scan(&sub.ID, &sub.AgentID, &sub.ChallengeID,
		&sub.CompressedSizeBytes, &sub.DecompressorSizeBytes,
		&sub.Score, &sub.Status, &errMsg, &errCode, &breakdown,
		&sub.ExecutionTimeMS, &rank, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		sub.ErrorMessage = &errMsg.String
	}
	if errCode.Valid {
		sub.ErrorCode = &errCode.String
	}
	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &sub.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	if rank.Valid {
		r := int(rank.Int64)
		sub.Rank = &r
	}
	return &sub, nil
}
