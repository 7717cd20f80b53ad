package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/challenges"
	"github.com/agent-arena/agent-arena/internal/config"
	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/handlers"
	"github.com/agent-arena/agent-arena/internal/metrics"
	"github.com/agent-arena/agent-arena/internal/middleware"
	"github.com/agent-arena/agent-arena/internal/scheduler"
)

// Dependencies carries everything the HTTP surface needs. Built once in
// main and handed to SetupRouter.
type Dependencies struct {
	Store     *database.Store
	Scheduler *scheduler.Scheduler
	Registry  *challenges.Registry
	Metrics   *metrics.Collector
	Logger    *logrus.Logger
}

// SetupRouter creates and configures the main HTTP router.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.CORS())

	// API routes
	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(deps.Store, config.Version, deps.Logger))
	handlers.RegisterChallengeRoutes(r, handlers.NewChallengeHandler(deps.Store, deps.Registry, deps.Logger))
	handlers.RegisterSubmissionRoutes(r, handlers.NewSubmissionHandler(deps.Store, deps.Scheduler, deps.Logger))
	handlers.RegisterAgentRoutes(r, handlers.NewAgentHandler(deps.Store, deps.Logger))

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Status:    "error",
			ErrorCode: "NOT_FOUND",
			Message:   fmt.Sprintf("Route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})

	return r
}
