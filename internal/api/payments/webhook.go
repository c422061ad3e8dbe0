// Package payments provides the mobile-money callback endpoint that
// reconciles asynchronous payment confirmations against pending orders.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	prommetrics "github.com/kwalimwa/craftlink/internal/metrics"
	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/notify"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// SignatureHeader carries the provider's HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Callback-Signature"

// receiptItemName is the metadata item carrying the settlement receipt id.
// Extraction is by name lookup, never by position.
const receiptItemName = "MpesaReceiptNumber"

// Result codes in the acknowledgement body. The provider retries forever on
// anything it perceives as non-success, so everything except an authenticity
// failure acknowledges with resultAccepted.
const (
	resultAccepted = 0
	resultRejected = 1
)

// OrderRepository interface for order reconciliation operations.
type OrderRepository interface {
	GetByCheckoutRequestID(checkoutRequestID string) (*models.Order, error)
	ExistsByReceiptNumber(receipt string) (bool, error)
	MarkPaymentFailed(orderID uint) error
	SettlePayment(orderID uint, receipt string, paidAt time.Time) error
}

// Notifier interface for outbound notifications.
type Notifier interface {
	Dispatch(msg *notify.Message)
}

// Handler handles payment provider callbacks.
type Handler struct {
	orders   OrderRepository
	notifier Notifier
	secret   string
	log      *logger.Logger
}

// NewHandler creates a new payment webhook handler.
func NewHandler(orders *repository.OrderRepository, notifier Notifier, secret string, log *logger.Logger) *Handler {
	return &Handler{orders: orders, notifier: notifier, secret: secret, log: log}
}

// NewHandlerWithInterfaces creates a new handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(orders OrderRepository, notifier Notifier, secret string, log *logger.Logger) *Handler {
	return &Handler{orders: orders, notifier: notifier, secret: secret, log: log}
}

// callbackEnvelope mirrors the provider's nested STK callback body.
type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type metadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// HandleCallback processes one provider callback delivery.
// POST /api/v1/payments/callback.
//
// The response is always HTTP 200; only the resultCode varies. resultCode 1
// is reserved for authenticity failure and tells the provider to stop
// retrying; every other path acknowledges so a retry storm cannot start.
func (h *Handler) HandleCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read callback body")
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	// 1. Authenticity. The only rejection in the contract.
	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		h.log.Warn().Str("remote", c.ClientIP()).Msg("Callback signature verification failed")
		prommetrics.RecordPaymentCallback("rejected")
		h.respond(c, resultRejected, "Rejected")
		return
	}

	// 2. Payload structure. Malformed payloads are acknowledged and dropped.
	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.log.Warn().Err(err).Msg("Failed to parse callback payload")
		prommetrics.RecordPaymentCallback("malformed")
		h.respond(c, resultAccepted, "Accepted")
		return
	}
	callback := envelope.Body.StkCallback
	if callback.CheckoutRequestID == "" {
		h.log.Warn().Msg("Callback missing checkout request id")
		prommetrics.RecordPaymentCallback("malformed")
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	// 3. Order lookup by initiation-time correlation id.
	order, err := h.orders.GetByCheckoutRequestID(callback.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.log.Warn().Str("checkout_request_id", callback.CheckoutRequestID).Msg("No order for callback")
			prommetrics.RecordPaymentCallback("not_found")
		} else {
			h.log.Error().Err(err).Str("checkout_request_id", callback.CheckoutRequestID).Msg("Failed to look up order")
			prommetrics.RecordPaymentCallback("lookup_failed")
		}
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	// 4. Provider-reported failure.
	if callback.ResultCode != 0 {
		if err := h.orders.MarkPaymentFailed(order.ID); err != nil {
			h.log.Error().Err(err).Uint("order_id", order.ID).Msg("Failed to mark payment failed")
		}
		h.log.Info().
			Uint("order_id", order.ID).
			Int("result_code", callback.ResultCode).
			Str("result_desc", callback.ResultDesc).
			Msg("Payment failed at provider")
		prommetrics.RecordPaymentCallback("payment_failed")
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	// 5. Settlement receipt id, extracted by name.
	receipt := extractReceipt(callback.CallbackMetadata.Item)
	if receipt == "" {
		h.log.Error().
			Uint("order_id", order.ID).
			Str("checkout_request_id", callback.CheckoutRequestID).
			Msg("Successful callback without receipt number, no write applied")
		prommetrics.RecordPaymentCallback("missing_receipt")
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	// 6. Duplicate delivery of an already-processed settlement.
	settled, err := h.orders.ExistsByReceiptNumber(receipt)
	if err != nil {
		h.log.Error().Err(err).Str("receipt", receipt).Msg("Failed to check receipt")
		prommetrics.RecordPaymentCallback("lookup_failed")
		h.respond(c, resultAccepted, "Accepted")
		return
	}
	if settled {
		prommetrics.RecordPaymentCallback("duplicate")
		h.respond(c, resultAccepted, "Already processed")
		return
	}

	// 7. The single reconciliation write. The conditional update plus the
	// unique index on receipt_number decide concurrent duplicates; losing
	// the race is the duplicate case, not an error.
	if err := h.orders.SettlePayment(order.ID, receipt, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrReceiptAlreadySettled) {
			prommetrics.RecordPaymentCallback("duplicate")
			h.respond(c, resultAccepted, "Already processed")
			return
		}
		h.log.Error().Err(err).Uint("order_id", order.ID).Msg("Failed to settle payment")
		prommetrics.RecordPaymentCallback("settle_failed")
		h.respond(c, resultAccepted, "Accepted")
		return
	}

	h.log.Info().
		Uint("order_id", order.ID).
		Str("receipt", receipt).
		Msg("Payment reconciled")
	prommetrics.RecordPaymentCallback("settled")

	// 8. Fire-and-forget notifications to both parties.
	h.notifier.Dispatch(&notify.Message{
		UserID: order.BuyerID,
		Kind:   notify.KindOrderPaid,
		Title:  "Payment received",
		Body:   fmt.Sprintf("Your payment of %.2f %s was received. Receipt: %s", order.Amount, order.Currency, receipt),
	})
	h.notifier.Dispatch(&notify.Message{
		UserID: order.SellerID,
		Kind:   notify.KindPaymentReceived,
		Title:  "Order paid",
		Body:   fmt.Sprintf("Order #%d has been paid. You can start work.", order.ID),
	})

	h.respond(c, resultAccepted, "Accepted")
}

// verifySignature checks the HMAC-SHA256 of the raw body in constant time.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// extractReceipt finds the settlement receipt id in the metadata items.
func extractReceipt(items []metadataItem) string {
	for _, item := range items {
		if item.Name != receiptItemName {
			continue
		}
		if s, ok := item.Value.(string); ok {
			return s
		}
		if item.Value != nil {
			return fmt.Sprintf("%v", item.Value)
		}
	}
	return ""
}

// respond sends the provider acknowledgement. Always HTTP 200.
func (h *Handler) respond(c *gin.Context, code int, description string) {
	c.JSON(http.StatusOK, gin.H{
		"resultCode":        code,
		"resultDescription": description,
	})
}
