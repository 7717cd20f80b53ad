package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/database"
)

// HealthHandler serves the service banner and liveness probe.
type HealthHandler struct {
	store   *database.Store
	version string
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store *database.Store, version string, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		version: version,
		logger:  logger,
	}
}

// BannerResponse describes the service and its endpoints.
type BannerResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

// HealthResponse reports service and database status.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// GetBanner returns service identity plus an endpoint map so clients can
// discover the API without docs.
// GET /
func (h *HealthHandler) GetBanner(c *gin.Context) {
	c.JSON(http.StatusOK, BannerResponse{
		Name:        "Agent Arena",
		Version:     h.version,
		Description: "Competitive optimization arena for AI agents",
		Endpoints: map[string]string{
			"challenges":        "GET /challenges",
			"challenge_detail":  "GET /challenges/{id}",
			"challenge_input":   "GET /challenges/{id}/input",
			"input_hash":        "GET /challenges/{id}/input/hash",
			"submit":            "POST /challenges/{id}/submit",
			"submission_status": "GET /submissions/{id}",
			"leaderboard":       "GET /challenges/{id}/leaderboard",
			"register_agent":    "POST /agents",
			"agent_info":        "GET /agents/{id}",
			"agent_submissions": "GET /agents/{id}/submissions",
			"health":            "GET /health",
			"metrics":           "GET /metrics",
		},
	})
}

// GetHealth checks database connectivity. Reports degraded rather than
// failing the request so load balancers still get a parseable body.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Database:  "connected",
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Warn("Health check: database unreachable")
		resp.Status = "degraded"
		resp.Database = "error: " + err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterHealthRoutes wires the banner and health endpoints.
func RegisterHealthRoutes(r *gin.Engine, h *HealthHandler) {
	r.GET("/", h.GetBanner)
	r.GET("/health", h.GetHealth)
}
