// Package reviews provides the REST endpoint for reviewer decisions on
// project engagements.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/internal/service/verification"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// Orchestrator interface for decision processing.
type Orchestrator interface {
	Process(ctx context.Context, d verification.Decision) (*verification.Result, error)
}

// Handler handles review decision requests.
type Handler struct {
	orchestrator Orchestrator
	log          *logger.Logger
}

// NewHandler creates a new review handler.
func NewHandler(orchestrator Orchestrator, log *logger.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, log: log}
}

// decisionRequest is the request body for a review decision.
type decisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Scores   struct {
		Functionality float64 `json:"functionality" binding:"required"`
		CodeQuality   float64 `json:"code_quality" binding:"required"`
		Documentation float64 `json:"documentation" binding:"required"`
		Testing       float64 `json:"testing" binding:"required"`
	} `json:"scores" binding:"required"`
	Comment string `json:"comment"`
}

// SubmitDecision records a reviewer's terminal decision on an engagement.
// POST /api/v1/engagements/:id/review.
//
// Caller identity and the reviewer role are established upstream; the handler
// trusts the X-Reviewer-ID header set by the auth boundary.
func (h *Handler) SubmitDecision(c *gin.Context) {
	engagementID, err := h.parseEngagementID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	reviewerID, err := strconv.ParseUint(c.GetHeader("X-Reviewer-ID"), 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "missing or invalid reviewer id")
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orchestrator.Process(c.Request.Context(), verification.Decision{
		EngagementID:       engagementID,
		ReviewerID:         uint(reviewerID),
		Outcome:            req.Decision,
		FunctionalityScore: req.Scores.Functionality,
		CodeQualityScore:   req.Scores.CodeQuality,
		DocumentationScore: req.Scores.Documentation,
		TestingScore:       req.Scores.Testing,
		Comment:            req.Comment,
	})
	if err != nil {
		h.decisionError(c, engagementID, err)
		return
	}

	h.log.Info().
		Uint("engagement_id", engagementID).
		Uint("reviewer_id", uint(reviewerID)).
		Str("decision", result.Decision).
		Msg("Review decision processed")

	c.JSON(http.StatusOK, gin.H{
		"result":       result,
		"generated_at": time.Now().UTC(),
	})
}

// decisionError maps orchestrator errors to HTTP status codes.
func (h *Handler) decisionError(c *gin.Context, engagementID uint, err error) {
	switch {
	case errors.Is(err, verification.ErrInvalidDecision), errors.Is(err, verification.ErrInvalidScore):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrEngagementNotFound):
		h.errorResponse(c, http.StatusNotFound, "Engagement not found")
	case errors.Is(err, verification.ErrInvalidState):
		h.errorResponse(c, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Uint("engagement_id", engagementID).Msg("Failed to process review decision")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to process review decision")
	}
}

// parseEngagementID extracts and validates the engagement ID from the URL parameter.
func (h *Handler) parseEngagementID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid engagement ID: %s", idStr)
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
