// Package learners provides read and repair endpoints for learner progression.
package learners

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// PortfolioRepository interface for progression reads.
type PortfolioRepository interface {
	GetByLearner(learnerID uint) (*models.PortfolioProgression, error)
}

// ProgressionEngine interface for tier reconciliation.
type ProgressionEngine interface {
	ReconcileTier(ctx context.Context, learnerID uint) (string, error)
}

// Handler handles learner progression requests.
type Handler struct {
	portfolios PortfolioRepository
	engine     ProgressionEngine
	log        *logger.Logger
}

// NewHandler creates a new learner handler.
func NewHandler(portfolios PortfolioRepository, engine ProgressionEngine, log *logger.Logger) *Handler {
	return &Handler{portfolios: portfolios, engine: engine, log: log}
}

// GetProgression returns a learner's progression record.
// GET /api/v1/learners/:id/progression.
func (h *Handler) GetProgression(c *gin.Context) {
	learnerID, err := h.parseLearnerID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	progression, err := h.portfolios.GetByLearner(learnerID)
	if err != nil {
		if errors.Is(err, repository.ErrProgressionNotFound) {
			h.errorResponse(c, http.StatusNotFound, "Progression record not found")
		} else {
			h.log.Error().Err(err).Uint("learner_id", learnerID).Msg("Failed to get progression")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve progression")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progression":  progression,
		"generated_at": time.Now().UTC(),
	})
}

// ReconcileTier re-copies the progression tier onto the denormalized profile
// field. The two must agree after every successful cascade; this is the
// explicit repair path for drift.
// POST /api/v1/learners/:id/reconcile-tier.
func (h *Handler) ReconcileTier(c *gin.Context) {
	learnerID, err := h.parseLearnerID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	tier, err := h.engine.ReconcileTier(c.Request.Context(), learnerID)
	if err != nil {
		if errors.Is(err, repository.ErrProgressionNotFound) {
			h.errorResponse(c, http.StatusNotFound, "Progression record not found")
		} else {
			h.log.Error().Err(err).Uint("learner_id", learnerID).Msg("Failed to reconcile tier")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to reconcile tier")
		}
		return
	}

	h.log.Info().Uint("learner_id", learnerID).Str("tier", tier).Msg("Learner tier reconciled")

	c.JSON(http.StatusOK, gin.H{
		"learner_id":   learnerID,
		"tier":         tier,
		"generated_at": time.Now().UTC(),
	})
}

// parseLearnerID extracts and validates the learner ID from the URL parameter.
func (h *Handler) parseLearnerID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid learner ID: %s", idStr)
	}
	return uint(id), nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
