package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/internal/monitor"
	"github.com/kode4food/cadence/pkg/api"
)

func (s *Server) handleEngineHealth(c *gin.Context) {
	health := s.monitor.Snapshot()
	c.JSON(http.StatusOK, api.HealthListResponse{
		Health: health,
		Count:  len(health),
	})
}

func (s *Server) handleEngineHealthByID(c *gin.Context) {
	id := api.AccountID(c.Param("accountID"))
	health, ok := s.monitor.Health(id)
	if !ok {
		s.respondError(c, http.StatusNotFound,
			fmt.Errorf("%w: %s", ErrAccountHealthNotFound, id))
		return
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleAccountStats(c *gin.Context) {
	id := api.AccountID(c.Param("accountID"))
	stats, err := s.monitor.Stats(c.Request.Context(), id)
	switch {
	case errors.Is(err, monitor.ErrUnknownAccount):
		s.respondError(c, http.StatusNotFound, err)
		return
	case err != nil:
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAccountQueue(c *gin.Context) {
	id := api.AccountID(c.Param("accountID"))
	q, err := s.monitor.QueueHealth(c.Request.Context(), id)
	switch {
	case errors.Is(err, monitor.ErrUnknownAccount):
		s.respondError(c, http.StatusNotFound, err)
	case err != nil:
		s.respondError(c, http.StatusBadGateway, err)
	default:
		c.JSON(http.StatusOK, q)
	}
}
