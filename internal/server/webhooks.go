package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/cadence/internal/reconcile"
	"github.com/kode4food/cadence/pkg/log"
)

var ErrReadBody = errors.New("failed to read request body")

func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.respondError(c, http.StatusBadRequest,
			fmt.Errorf("%w: %w", ErrReadBody, err))
		return
	}

	res, err := s.reconciler.Reconcile(c.Request.Context(), raw)
	switch {
	case errors.Is(err, reconcile.ErrInvalidPayload):
		s.logger.Warn("Invalid webhook payload", log.Error(err))
		s.respondError(c, http.StatusBadRequest, err)
	case err != nil:
		s.logger.Error("Failed to reconcile webhook", log.Error(err))
		s.respondError(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, res)
	}
}
