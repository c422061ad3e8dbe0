// Package orders provides the order-lifecycle endpoints that trigger seller
// reputation recomputation.
package orders

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

// OrderRepository interface for order lifecycle operations.
type OrderRepository interface {
	GetByID(id uint) (*models.Order, error)
	MarkDelivered(orderID uint, deliveredAt time.Time) error
	ConfirmDelivery(orderID uint, confirmedAt time.Time) error
	CreateRating(rating *models.Rating) error
}

// TrustEngine interface for reputation recomputation.
type TrustEngine interface {
	Recompute(ctx context.Context, sellerID uint)
}

// Handler handles order lifecycle requests.
type Handler struct {
	orders OrderRepository
	trust  TrustEngine
	log    *logger.Logger
}

// NewHandler creates a new order handler.
func NewHandler(orders OrderRepository, trust TrustEngine, log *logger.Logger) *Handler {
	return &Handler{orders: orders, trust: trust, log: log}
}

// MarkDelivered records the seller's delivery of an order.
// POST /api/v1/orders/:id/deliver.
func (h *Handler) MarkDelivered(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	if order.PaymentStatus != models.PaymentPaid {
		h.errorResponse(c, http.StatusConflict, "order is not paid")
		return
	}
	if order.FulfillmentStatus != models.FulfillmentInProgress {
		h.errorResponse(c, http.StatusConflict, fmt.Sprintf("order is %s", order.FulfillmentStatus))
		return
	}

	if err := h.orders.MarkDelivered(order.ID, time.Now().UTC()); err != nil {
		h.log.Error().Err(err).Uint("order_id", order.ID).Msg("Failed to mark order delivered")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to mark order delivered")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":     order.ID,
		"status":       models.FulfillmentDelivered,
		"generated_at": time.Now().UTC(),
	})
}

// ConfirmDelivery records the buyer's confirmation, the terminal fulfillment
// state, and triggers a reputation recompute for the seller.
// POST /api/v1/orders/:id/confirm-delivery.
func (h *Handler) ConfirmDelivery(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	if order.PaymentStatus != models.PaymentPaid {
		h.errorResponse(c, http.StatusConflict, "order is not paid")
		return
	}
	if order.IsFulfillmentTerminal() {
		h.errorResponse(c, http.StatusConflict, fmt.Sprintf("order is already %s", order.FulfillmentStatus))
		return
	}

	if err := h.orders.ConfirmDelivery(order.ID, time.Now().UTC()); err != nil {
		h.log.Error().Err(err).Uint("order_id", order.ID).Msg("Failed to confirm delivery")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to confirm delivery")
		return
	}

	// Derived-state update runs in the request but never fails it.
	h.trust.Recompute(c.Request.Context(), order.SellerID)

	c.JSON(http.StatusOK, gin.H{
		"order_id":     order.ID,
		"status":       models.FulfillmentConfirmed,
		"generated_at": time.Now().UTC(),
	})
}

// ratingRequest is the request body for a rating submission.
type ratingRequest struct {
	Stars   int    `json:"stars" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// SubmitRating stores the buyer's rating for a completed order and triggers
// a reputation recompute for the seller.
// POST /api/v1/orders/:id/rating.
func (h *Handler) SubmitRating(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	if order.FulfillmentStatus != models.FulfillmentConfirmed {
		h.errorResponse(c, http.StatusConflict, "order is not completed")
		return
	}

	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rating := &models.Rating{
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		BuyerID:   order.BuyerID,
		Stars:     req.Stars,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.orders.CreateRating(rating); err != nil {
		h.log.Error().Err(err).Uint("order_id", order.ID).Msg("Failed to create rating")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to create rating")
		return
	}

	h.trust.Recompute(c.Request.Context(), order.SellerID)

	c.JSON(http.StatusCreated, gin.H{
		"rating_id":    rating.ID,
		"order_id":     order.ID,
		"generated_at": time.Now().UTC(),
	})
}

// loadOrder resolves the :id parameter to an order, writing the error
// response itself on failure.
func (h *Handler) loadOrder(c *gin.Context) (*models.Order, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid order ID: %s", idStr))
		return nil, false
	}

	order, err := h.orders.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.errorResponse(c, http.StatusNotFound, "Order not found")
		} else {
			h.log.Error().Err(err).Uint("order_id", uint(id)).Msg("Failed to load order")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to load order")
		}
		return nil, false
	}
	return order, true
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
