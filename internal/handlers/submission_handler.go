package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/middleware"
	"github.com/agent-arena/agent-arena/internal/models"
	"github.com/agent-arena/agent-arena/internal/scheduler"
)

// errCodeInvalidRequest covers malformed request bodies; everything the
// arena core can diagnose has its own code.
const errCodeInvalidRequest = "INVALID_REQUEST"

// rateLimitRetrySeconds is what a 429 tells clients to wait.
const rateLimitRetrySeconds = 3600

// SubmissionHandler accepts solutions and serves their status while and
// after they are evaluated.
type SubmissionHandler struct {
	store     *database.Store
	scheduler *scheduler.Scheduler
	logger    *logrus.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(store *database.Store, sched *scheduler.Scheduler, logger *logrus.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		store:     store,
		scheduler: sched,
		logger:    logger,
	}
}

// SubmitRequest is the body of POST /challenges/:id/submit.
type SubmitRequest struct {
	AgentID      string `json:"agent_id" binding:"required"`
	Compressed   string `json:"compressed" binding:"required"`
	Decompressor string `json:"decompressor" binding:"required"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	PollURL      string `json:"poll_url"`
}

// SubmitSolution accepts a compressed blob plus decompressor source and
// queues the evaluation. The response returns immediately; clients poll
// GET /submissions/:id until the status is terminal.
// POST /challenges/:id/submit
func (h *SubmissionHandler) SubmitSolution(c *gin.Context) {
	challengeID := c.Param("id")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, errCodeInvalidRequest,
			fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if !agentIDPattern.MatchString(req.AgentID) {
		respondError(c, http.StatusBadRequest, errCodeInvalidRequest,
			"agent_id must be 1-64 characters of [A-Za-z0-9_-]")
		return
	}

	sub, err := h.scheduler.Submit(c.Request.Context(), challengeID, req.AgentID, req.Compressed, req.Decompressor)
	switch {
	case errors.Is(err, database.ErrChallengeNotFound):
		respondError(c, http.StatusNotFound, models.ErrCodeChallengeNotFound,
			fmt.Sprintf("Challenge '%s' not found", challengeID))
		return
	case errors.Is(err, database.ErrRateLimited):
		c.Header("Retry-After", fmt.Sprintf("%d", rateLimitRetrySeconds))
		respondErrorDetails(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
			"Rate limit exceeded. Try again later.",
			map[string]interface{}{"retry_after_seconds": rateLimitRetrySeconds})
		return
	case errors.Is(err, scheduler.ErrInvalidBase64):
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidBase64,
			fmt.Sprintf("Failed to decode compressed data: %v", err))
		return
	case errors.Is(err, scheduler.ErrQueueFull):
		details := map[string]interface{}{}
		if sub != nil {
			details["submission_id"] = sub.ID
		}
		respondErrorDetails(c, http.StatusServiceUnavailable, models.ErrCodeQueueFull,
			"Evaluation queue is full. Try again later.", details)
		return
	case err != nil:
		h.serverError(c, err, "submit solution")
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		SubmissionID: sub.ID,
		Status:       string(sub.Status),
		Message:      "Submission queued for evaluation",
		PollURL:      "/submissions/" + sub.ID,
	})
}

// GetSubmission reports the lifecycle state of one submission. Terminal
// rows carry the full result view; pending and processing rows only the
// identity fields.
// GET /submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.store.GetSubmission(c.Request.Context(), id)
	if errors.Is(err, database.ErrSubmissionNotFound) {
		respondError(c, http.StatusNotFound, models.ErrCodeSubmissionNotFound,
			"Submission not found")
		return
	}
	if err != nil {
		h.serverError(c, err, "get submission")
		return
	}

	resp := gin.H{
		"submission_id": sub.ID,
		"status":        sub.Status,
		"agent_id":      sub.AgentID,
		"challenge_id":  sub.ChallengeID,
		"created_at":    sub.CreatedAt,
	}

	if sub.Status.IsTerminal() {
		var score interface{}
		if sub.Status == models.StatusScored {
			score = sub.Score
		}
		breakdown := sub.Breakdown
		if breakdown == nil {
			breakdown = map[string]interface{}{
				"compressed_bytes":   sub.CompressedSizeBytes,
				"decompressor_bytes": sub.DecompressorSizeBytes,
			}
		}
		resp["score"] = score
		resp["rank"] = sub.Rank
		resp["breakdown"] = breakdown
		resp["execution_time_ms"] = sub.ExecutionTimeMS
		resp["error"] = sub.ErrorMessage
		resp["error_code"] = sub.ErrorCode
		resp["leaderboard_url"] = fmt.Sprintf("/challenges/%s/leaderboard", sub.ChallengeID)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubmissionHandler) serverError(c *gin.Context, err error, op string) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestIDFrom(c),
		"op":         op,
	}).Error("Submission request failed")
	respondError(c, http.StatusInternalServerError, models.ErrCodeInternal,
		"An unexpected error occurred")
}

// RegisterSubmissionRoutes wires the submission endpoints onto the router.
func RegisterSubmissionRoutes(r *gin.Engine, h *SubmissionHandler) {
	r.POST("/challenges/:id/submit", h.SubmitSolution)
	r.GET("/submissions/:id", h.GetSubmission)
}
