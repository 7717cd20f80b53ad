package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/middleware"
	"github.com/agent-arena/agent-arena/internal/models"
)

// agentIDPattern restricts ids to URL- and filename-safe characters.
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const (
	maxDisplayNameLength = 128

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// AgentHandler manages agent registration and history lookups.
type AgentHandler struct {
	store  *database.Store
	logger *logrus.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(store *database.Store, logger *logrus.Logger) *AgentHandler {
	return &AgentHandler{store: store, logger: logger}
}

// RegisterAgentRequest is the body of POST /agents. Registration is
// optional; the first submission creates the agent implicitly.
// is_ai_agent defaults to true because humans are the exception here.
type RegisterAgentRequest struct {
	AgentID     string `json:"agent_id" binding:"required"`
	DisplayName string `json:"display_name"`
	IsAIAgent   *bool  `json:"is_ai_agent"`
}

// AgentInfoResponse is the detail view of one agent.
type AgentInfoResponse struct {
	models.Agent
	SubmissionCount int64                        `json:"submission_count"`
	Challenges      []models.AgentChallengeStats `json:"challenges"`
}

// AgentSubmissionsResponse lists an agent's submission history.
type AgentSubmissionsResponse struct {
	AgentID     string              `json:"agent_id"`
	Submissions []models.Submission `json:"submissions"`
	Count       int                 `json:"count"`
}

// RegisterAgent creates an agent record up front, reserving the id.
// POST /agents
func (h *AgentHandler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
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
	if len(req.DisplayName) > maxDisplayNameLength {
		respondError(c, http.StatusBadRequest, errCodeInvalidRequest,
			fmt.Sprintf("display_name must be at most %d characters", maxDisplayNameLength))
		return
	}

	agent := &models.Agent{
		ID:          req.AgentID,
		DisplayName: req.DisplayName,
		IsAIAgent:   true,
	}
	if agent.DisplayName == "" {
		agent.DisplayName = req.AgentID
	}
	if req.IsAIAgent != nil {
		agent.IsAIAgent = *req.IsAIAgent
	}

	err := h.store.CreateAgent(c.Request.Context(), agent)
	if errors.Is(err, database.ErrAgentExists) {
		respondError(c, http.StatusConflict, models.ErrCodeAgentExists,
			fmt.Sprintf("Agent '%s' is already registered", req.AgentID))
		return
	}
	if err != nil {
		h.serverError(c, err, "register agent")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"agent_id":    agent.ID,
		"is_ai_agent": agent.IsAIAgent,
	}).Info("Agent registered")

	c.JSON(http.StatusCreated, agent)
}

// GetAgent returns agent info plus per-challenge standing.
// GET /agents/:id
func (h *AgentHandler) GetAgent(c *gin.Context) {
	id := c.Param("id")

	agent, err := h.store.GetAgent(c.Request.Context(), id)
	if errors.Is(err, database.ErrAgentNotFound) {
		respondError(c, http.StatusNotFound, models.ErrCodeAgentNotFound,
			fmt.Sprintf("Agent '%s' not found", id))
		return
	}
	if err != nil {
		h.serverError(c, err, "get agent")
		return
	}

	count, err := h.store.CountAgentSubmissions(c.Request.Context(), id)
	if err != nil {
		h.serverError(c, err, "count agent submissions")
		return
	}
	stats, err := h.store.AgentChallengeStats(c.Request.Context(), id)
	if err != nil {
		h.serverError(c, err, "agent challenge stats")
		return
	}
	if stats == nil {
		stats = []models.AgentChallengeStats{}
	}

	c.JSON(http.StatusOK, AgentInfoResponse{
		Agent:           *agent,
		SubmissionCount: count,
		Challenges:      stats,
	})
}

// GetAgentSubmissions returns the agent's submissions, newest first.
// Supports ?challenge_id= to narrow and ?limit= (default 50, max 100).
// GET /agents/:id/submissions
func (h *AgentHandler) GetAgentSubmissions(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.store.GetAgent(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrAgentNotFound) {
			respondError(c, http.StatusNotFound, models.ErrCodeAgentNotFound,
				fmt.Sprintf("Agent '%s' not found", id))
			return
		}
		h.serverError(c, err, "get agent")
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, errCodeInvalidRequest,
				"limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	subs, err := h.store.AgentSubmissions(c.Request.Context(), id, c.Query("challenge_id"), limit)
	if err != nil {
		h.serverError(c, err, "agent submissions")
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}

	c.JSON(http.StatusOK, AgentSubmissionsResponse{
		AgentID:     id,
		Submissions: subs,
		Count:       len(subs),
	})
}

func (h *AgentHandler) serverError(c *gin.Context, err error, op string) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestIDFrom(c),
		"op":         op,
	}).Error("Agent request failed")
	respondError(c, http.StatusInternalServerError, models.ErrCodeInternal,
		"An unexpected error occurred")
}

// RegisterAgentRoutes wires the agent endpoints onto the router.
func RegisterAgentRoutes(r *gin.Engine, h *AgentHandler) {
	agents := r.Group("/agents")
	{
		agents.POST("", h.RegisterAgent)
		agents.GET("/:id", h.GetAgent)
		agents.GET("/:id/submissions", h.GetAgentSubmissions)
	}
}
