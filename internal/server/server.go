package server

import (
	"errors"
	"log/slog"
	"net/http"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence"
	"github.com/kode4food/cadence/internal/engine"
	"github.com/kode4food/cadence/internal/monitor"
	"github.com/kode4food/cadence/internal/reconcile"
	"github.com/kode4food/cadence/pkg/api"
)

// Server implements the HTTP API
type Server struct {
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	monitor    *monitor.Monitor
	logger     *slog.Logger
}

var (
	ErrAccountHealthNotFound = errors.New("no health recorded for account")
	ErrCampaignsRequired     = errors.New("at least one campaign is required")
)

// NewServer creates a new HTTP API server
func NewServer(
	eng *engine.Engine, rec *reconcile.Reconciler, mon *monitor.Monitor,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:     eng,
		reconciler: rec,
		monitor:    mon,
		logger:     logger,
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// Agent notifications
	router.POST("/webhook", s.handleWebhook)

	eng := router.Group("/engine")
	{
		// Account health
		eng.GET("/health", s.handleEngineHealth)
		eng.GET("/health/:accountID", s.handleEngineHealthByID)
		eng.GET("/accounts/:accountID/stats", s.handleAccountStats)
		eng.GET("/accounts/:accountID/queue", s.handleAccountQueue)

		// Campaign operations
		eng.POST("/campaigns/:campaignID/enroll", s.handleEnroll)
		eng.POST("/campaigns/:campaignID/run", s.handleRunCampaign)
		eng.POST("/run", s.handleRun)
		eng.POST("/dispatch", s.handleDispatch)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: cadence.Name,
		Version: cadence.Version,
		HealthState: api.HealthState{
			Status: api.HealthHealthy,
		},
	})
}

func (s *Server) respondError(c *gin.Context, status int, err error) {
	c.JSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}
