package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/internal/engine"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

var ErrInvalidRequest = errors.New("invalid request")

func (s *Server) handleEnroll(c *gin.Context) {
	id := api.CampaignID(c.Param("campaignID"))

	var req api.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest,
			fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	sum, err := s.engine.Enroll(c.Request.Context(), id, req.ContactIDs)
	if err != nil {
		s.campaignError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleRunCampaign(c *gin.Context) {
	id := api.CampaignID(c.Param("campaignID"))
	sum, err := s.engine.RunCampaigns(c.Request.Context(), id)
	if err != nil {
		s.campaignError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleRun(c *gin.Context) {
	var req api.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest,
			fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	if len(req.CampaignIDs) == 0 {
		s.respondError(c, http.StatusBadRequest, ErrCampaignsRequired)
		return
	}

	sum, err := s.engine.RunCampaigns(c.Request.Context(), req.CampaignIDs...)
	if err != nil {
		s.campaignError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleDispatch(c *gin.Context) {
	sum, err := s.engine.DispatchDue(c.Request.Context())
	if err != nil {
		s.logger.Error("Dispatch failed", log.Error(err))
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) campaignError(c *gin.Context, id api.CampaignID, err error) {
	switch {
	case errors.Is(err, engine.ErrCampaignNotFound):
		s.respondError(c, http.StatusNotFound, err)
	case errors.Is(err, api.ErrInvalidSequence):
		s.respondError(c, http.StatusBadRequest, err)
	default:
		s.logger.Error("Campaign operation failed",
			log.CampaignID(id), log.Error(err))
		s.respondError(c, http.StatusInternalServerError, err)
	}
}
