package models

import (
	"time"
)

// Order represents a purchase of a seller's service by a buyer.
//
// CheckoutRequestID is the correlation id assigned when the mobile-money
// payment is initiated. ReceiptNumber is the provider's settlement receipt,
// assigned at most once; the unique index on it is the idempotency guarantee
// for duplicate callback deliveries.
type Order struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	BuyerID           uint       `gorm:"not null;index" json:"buyer_id"`
	Buyer             *User      `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	SellerID          uint       `gorm:"not null;index" json:"seller_id"`
	Seller            *User      `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Description       string     `gorm:"type:text" json:"description"`
	Amount            float64    `gorm:"not null" json:"amount"`
	Currency          string     `gorm:"size:3;default:KES" json:"currency"`
	PaymentStatus     string     `gorm:"size:20;index;default:pending" json:"payment_status"`
	FulfillmentStatus string     `gorm:"size:20;index;default:pending" json:"fulfillment_status"`
	CheckoutRequestID string     `gorm:"size:100;index" json:"checkout_request_id"`
	MerchantRequestID string     `gorm:"size:100" json:"merchant_request_id"`
	ReceiptNumber     *string    `gorm:"size:50;uniqueIndex" json:"receipt_number"`
	PayerPhone        string     `gorm:"size:20" json:"payer_phone"`
	PaidAt            *time.Time `json:"paid_at"`
	DeliveredAt       *time.Time `json:"delivered_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Order model.
func (Order) TableName() string {
	return "orders"
}

// PaymentStatus constants.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// FulfillmentStatus constants.
const (
	FulfillmentPending    = "pending"
	FulfillmentInProgress = "in_progress"
	FulfillmentDelivered  = "delivered"
	FulfillmentConfirmed  = "confirmed"
	FulfillmentCancelled  = "cancelled"
)

// IsFulfillmentTerminal reports whether the order has reached a terminal fulfillment state.
func (o *Order) IsFulfillmentTerminal() bool {
	return o.FulfillmentStatus == FulfillmentConfirmed || o.FulfillmentStatus == FulfillmentCancelled
}

// Rating represents a buyer's rating of a completed order.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;uniqueIndex" json:"order_id"`
	Order     *Order    `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	SellerID  uint      `gorm:"not null;index" json:"seller_id"`
	BuyerID   uint      `gorm:"not null" json:"buyer_id"`
	Stars     int       `gorm:"not null" json:"stars"` // 1..5
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Rating model.
func (Rating) TableName() string {
	return "ratings"
}

// Dispute represents a buyer-raised dispute against an order.
//
// RuledAgainst is only set by an adjudication step; a freshly opened dispute
// does not count as a ruling against the seller.
type Dispute struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	SellerID     uint      `gorm:"not null;index" json:"seller_id"`
	Status       string    `gorm:"size:20;default:open" json:"status"` // 'open', 'resolved'
	RuledAgainst bool      `gorm:"default:false" json:"ruled_against"`
	Reason       string    `gorm:"type:text" json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Dispute model.
func (Dispute) TableName() string {
	return "disputes"
}
