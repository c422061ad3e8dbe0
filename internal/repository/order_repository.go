package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kwalimwa/craftlink/internal/models"
)

// ErrOrderNotFound is returned when no order matches the given lookup.
var ErrOrderNotFound = errors.New("order not found")

// ErrReceiptAlreadySettled is returned when a settlement write finds the
// order already carries a receipt number, or the receipt number is already
// claimed by another order.
var ErrReceiptAlreadySettled = errors.New("receipt already settled")

// OrderRepository handles order-related database operations.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return &order, nil
}

// GetByCheckoutRequestID retrieves an order by its payment-initiation correlation id.
func (r *OrderRepository) GetByCheckoutRequestID(checkoutRequestID string) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("checkout_request_id = ?", checkoutRequestID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by checkout request %s: %w", checkoutRequestID, err)
	}
	return &order, nil
}

// ExistsByReceiptNumber reports whether any order already bears the given
// settlement receipt number.
func (r *OrderRepository) ExistsByReceiptNumber(receipt string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Order{}).Where("receipt_number = ?", receipt).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check receipt %s: %w", receipt, err)
	}
	return count > 0, nil
}

// MarkPaymentFailed sets the order's payment status to failed.
func (r *OrderRepository) MarkPaymentFailed(orderID uint) error {
	err := r.db.Model(&models.Order{}).Where("id = ?", orderID).
		Update("payment_status", models.PaymentFailed).Error
	if err != nil {
		return fmt.Errorf("failed to mark order %d payment failed: %w", orderID, err)
	}
	return nil
}

// SettlePayment applies the single reconciliation write: payment status paid,
// fulfillment advanced, receipt number stored, paid timestamp stamped.
//
// The write is conditional on the order not yet carrying a receipt number, so
// concurrent duplicate deliveries collapse to one winner. The unique index on
// receipt_number backstops the race at the storage level; a unique-constraint
// violation is reported as ErrReceiptAlreadySettled.
func (r *OrderRepository) SettlePayment(orderID uint, receipt string, paidAt time.Time) error {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND receipt_number IS NULL", orderID).
		Updates(map[string]interface{}{
			"payment_status":     models.PaymentPaid,
			"fulfillment_status": models.FulfillmentInProgress,
			"receipt_number":     receipt,
			"paid_at":            paidAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrReceiptAlreadySettled
		}
		return fmt.Errorf("failed to settle payment for order %d: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReceiptAlreadySettled
	}
	return nil
}

// MarkDelivered records the seller's delivery of the order.
func (r *OrderRepository) MarkDelivered(orderID uint, deliveredAt time.Time) error {
	err := r.db.Model(&models.Order{}).Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"fulfillment_status": models.FulfillmentDelivered,
			"delivered_at":       deliveredAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark order %d delivered: %w", orderID, err)
	}
	return nil
}

// ConfirmDelivery records the buyer's confirmation, the terminal fulfillment state.
func (r *OrderRepository) ConfirmDelivery(orderID uint, confirmedAt time.Time) error {
	err := r.db.Model(&models.Order{}).Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"fulfillment_status": models.FulfillmentConfirmed,
			"confirmed_at":       confirmedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to confirm delivery for order %d: %w", orderID, err)
	}
	return nil
}

// CreateRating stores a buyer's rating for an order.
func (r *OrderRepository) CreateRating(rating *models.Rating) error {
	if err := r.db.Create(rating).Error; err != nil {
		return fmt.Errorf("failed to create rating for order %d: %w", rating.OrderID, err)
	}
	return nil
}
