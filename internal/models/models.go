package models

import "time"

// SubmissionStatus is the lifecycle state of a submission. Transitions are
// strictly forward: pending -> processing -> scored | error.
type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusScored     SubmissionStatus = "scored"
	StatusError      SubmissionStatus = "error"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusScored || s == StatusError
}

// Error codes surfaced verbatim to clients in the error envelope and on
// submission rows.
const (
	ErrCodeInvalidBase64      = "INVALID_BASE64"
	ErrCodeEmptyCompressed    = "EMPTY_COMPRESSED"
	ErrCodeEmptyDecompressor  = "EMPTY_DECOMPRESSOR"
	ErrCodeCodeTooLarge       = "CODE_TOO_LARGE"
	ErrCodeCompressedTooLarge = "COMPRESSED_TOO_LARGE"
	ErrCodeChallengeNotFound  = "CHALLENGE_NOT_FOUND"
	ErrCodeSubmissionNotFound = "SUBMISSION_NOT_FOUND"
	ErrCodeAgentNotFound      = "AGENT_NOT_FOUND"
	ErrCodeAgentExists        = "AGENT_EXISTS"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeQueueFull          = "QUEUE_FULL"
	ErrCodeStuckEvaluation    = "STUCK_EVALUATION"
	ErrCodeWrongReturnType    = "WRONG_RETURN_TYPE"
	ErrCodeMismatch           = "DECOMPRESSION_MISMATCH"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// Agent is an identified submitter, human or automated.
type Agent struct {
	ID               string     `json:"agent_id" db:"id"`
	DisplayName      string     `json:"display_name" db:"display_name"`
	IsAIAgent        bool       `json:"is_ai_agent" db:"is_ai_agent"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	LastSubmissionAt *time.Time `json:"last_submission_at" db:"last_submission_at"`
}

// Challenge is the stored view of a challenge: catalog fields plus the
// best score tracked by the scheduler.
type Challenge struct {
	ID                 string    `json:"challenge_id" db:"id"`
	Title              string    `json:"title" db:"title"`
	Description        string    `json:"description" db:"description"`
	ScoringDescription string    `json:"scoring_description" db:"scoring_description"`
	InputHash          string    `json:"input_hash" db:"input_hash"`
	InputSizeBytes     int64     `json:"input_size_bytes" db:"input_size_bytes"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	BestScore          *int64    `json:"best_score" db:"best_score"`
	BestAgentID        *string   `json:"best_agent_id" db:"best_agent_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Submission is one (compressed blob, decompressor) pair attributed to an
// agent and a challenge. Score and rank are meaningful only once scored.
type Submission struct {
	ID                    string                 `json:"submission_id" db:"id"`
	AgentID               string                 `json:"agent_id" db:"agent_id"`
	ChallengeID           string                 `json:"challenge_id" db:"challenge_id"`
	CompressedSizeBytes   int64                  `json:"compressed_size_bytes" db:"compressed_size_bytes"`
	DecompressorSizeBytes int64                  `json:"decompressor_size_bytes" db:"decompressor_size_bytes"`
	Score                 int64                  `json:"score" db:"score"`
	Status                SubmissionStatus       `json:"status" db:"status"`
	ErrorMessage          *string                `json:"error,omitempty" db:"error_message"`
	ErrorCode             *string                `json:"error_code,omitempty" db:"error_code"`
	Breakdown             map[string]interface{} `json:"breakdown,omitempty" db:"breakdown"`
	ExecutionTimeMS       int64                  `json:"execution_time_ms" db:"execution_time_ms"`
	Rank                  *int                   `json:"rank,omitempty" db:"rank"`
	CreatedAt             time.Time              `json:"created_at" db:"created_at"`
}

// LeaderboardEntry is one row of a challenge leaderboard: an agent's best
// scored submission.
type LeaderboardEntry struct {
	Rank                  int       `json:"rank"`
	AgentID               string    `json:"agent_id"`
	Score                 int64     `json:"score"`
	CompressedSizeBytes   int64     `json:"compressed_size_bytes"`
	DecompressorSizeBytes int64     `json:"decompressor_size_bytes"`
	SubmittedAt           time.Time `json:"submitted_at"`
}

// Leaderboard is the full leaderboard view for a challenge.
type Leaderboard struct {
	ChallengeID      string             `json:"challenge_id"`
	Entries          []LeaderboardEntry `json:"entries"`
	TotalSubmissions int64              `json:"total_submissions"`
	UniqueAgents     int64              `json:"unique_agents"`
}

// AgentChallengeStats summarizes one agent's standing on one challenge.
type AgentChallengeStats struct {
	ChallengeID string `json:"challenge_id"`
	BestScore   int64  `json:"best_score"`
	Rank        *int   `json:"rank,omitempty"`
	Submissions int64  `json:"submissions"`
}
