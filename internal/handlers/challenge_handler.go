package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/challenges"
	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/middleware"
	"github.com/agent-arena/agent-arena/internal/models"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

// ChallengeHandler serves the challenge catalog, reference inputs and
// leaderboards.
type ChallengeHandler struct {
	store    *database.Store
	registry *challenges.Registry
	logger   *logrus.Logger
}

// NewChallengeHandler creates a new challenge handler.
func NewChallengeHandler(store *database.Store, registry *challenges.Registry, logger *logrus.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// ChallengeListResponse lists the active challenges.
type ChallengeListResponse struct {
	Challenges []models.Challenge `json:"challenges"`
	Count      int                `json:"count"`
}

// ListChallenges returns all active challenges.
// GET /challenges
func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	list, err := h.store.ListActiveChallenges(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "list challenges")
		return
	}

	c.JSON(http.StatusOK, ChallengeListResponse{
		Challenges: list,
		Count:      len(list),
	})
}

// GetChallenge returns one challenge with its stored best score.
// GET /challenges/:id
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	id := c.Param("id")

	challenge, err := h.store.GetChallenge(c.Request.Context(), id)
	if errors.Is(err, database.ErrChallengeNotFound) {
		respondError(c, http.StatusNotFound, models.ErrCodeChallengeNotFound,
			fmt.Sprintf("Challenge '%s' not found", id))
		return
	}
	if err != nil {
		h.serverError(c, err, "get challenge")
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// GetChallengeInput streams the reference input bytes.
// GET /challenges/:id/input
func (h *ChallengeHandler) GetChallengeInput(c *gin.Context) {
	id := c.Param("id")

	challenge, ok := h.registry.Get(id)
	if !ok {
		respondError(c, http.StatusNotFound, models.ErrCodeChallengeNotFound,
			fmt.Sprintf("Challenge '%s' not found", id))
		return
	}

	data, err := challenge.InputData()
	if err != nil {
		h.serverError(c, err, "load challenge input")
		return
	}
	hash, err := challenge.InputHash()
	if err != nil {
		h.serverError(c, err, "hash challenge input")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-input.bin", id))
	c.Header("X-Input-Hash", hash)
	c.Header("X-Input-Size", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// InputHashResponse describes the reference input without shipping it.
type InputHashResponse struct {
	ChallengeID string `json:"challenge_id"`
	Hash        string `json:"hash"`
	Algorithm   string `json:"algorithm"`
	SizeBytes   int64  `json:"size_bytes"`
}

// GetChallengeInputHash returns the reference input digest for
// client-side verification.
// GET /challenges/:id/input/hash
func (h *ChallengeHandler) GetChallengeInputHash(c *gin.Context) {
	id := c.Param("id")

	challenge, ok := h.registry.Get(id)
	if !ok {
		respondError(c, http.StatusNotFound, models.ErrCodeChallengeNotFound,
			fmt.Sprintf("Challenge '%s' not found", id))
		return
	}

	data, err := challenge.InputData()
	if err != nil {
		h.serverError(c, err, "load challenge input")
		return
	}
	hash, err := challenge.InputHash()
	if err != nil {
		h.serverError(c, err, "hash challenge input")
		return
	}

	c.JSON(http.StatusOK, InputHashResponse{
		ChallengeID: id,
		Hash:        hash,
		Algorithm:   "sha256",
		SizeBytes:   int64(len(data)),
	})
}

// GetLeaderboard returns the top agents for a challenge, one entry per
// agent holding that agent's best score.
// GET /challenges/:id/leaderboard?limit=N
func (h *ChallengeHandler) GetLeaderboard(c *gin.Context) {
	id := c.Param("id")

	if _, ok := h.registry.Get(id); !ok {
		respondError(c, http.StatusNotFound, models.ErrCodeChallengeNotFound,
			fmt.Sprintf("Challenge '%s' not found", id))
		return
	}

	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	board, err := h.store.Leaderboard(c.Request.Context(), id, limit)
	if err != nil {
		h.serverError(c, err, "build leaderboard")
		return
	}

	c.JSON(http.StatusOK, board)
}

func (h *ChallengeHandler) serverError(c *gin.Context, err error, op string) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestIDFrom(c),
		"op":         op,
	}).Error("Challenge request failed")
	respondError(c, http.StatusInternalServerError, models.ErrCodeInternal,
		"An unexpected error occurred")
}

// RegisterChallengeRoutes wires the challenge endpoints onto the router.
func RegisterChallengeRoutes(r *gin.Engine, h *ChallengeHandler) {
	group := r.Group("/challenges")
	{
		group.GET("", h.ListChallenges)
		group.GET("/:id", h.GetChallenge)
		group.GET("/:id/input", h.GetChallengeInput)
		group.GET("/:id/input/hash", h.GetChallengeInputHash)
		group.GET("/:id/leaderboard", h.GetLeaderboard)
	}
}
