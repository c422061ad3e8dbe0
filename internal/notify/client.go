// Package notify provides the outbound notification client.
//
// Delivery is fire-and-forget and at-most-once: failures are logged and never
// affect the transaction that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kwalimwa/craftlink/internal/config"
	prommetrics "github.com/kwalimwa/craftlink/internal/metrics"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// Client sends notifications through the messaging gateway.
type Client struct {
	gatewayURL string
	enabled    bool
	log        *logger.Logger
}

// NewClient creates a new notification client.
func NewClient(cfg *config.NotificationsConfig, log *logger.Logger) *Client {
	return &Client{
		gatewayURL: cfg.GatewayURL,
		enabled:    cfg.Enabled,
		log:        log,
	}
}

// Message represents an outbound notification payload.
type Message struct {
	UserID  uint   `json:"user_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// Notification kinds.
const (
	KindProjectVerified  = "project_verified"
	KindRevisionRequired = "revision_required"
	KindPaymentReceived  = "payment_received"
	KindOrderPaid        = "order_paid"
)

// Send posts a message to the gateway synchronously.
func (c *Client) Send(msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications disabled, skipping message")
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.gatewayURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Uint("user_id", msg.UserID).
		Str("kind", msg.Kind).
		Msg("Sent notification")

	return nil
}

// Dispatch sends a message in the background. The sole decoupled operation in
// the core: the caller's response never waits on, or fails because of, it.
func (c *Client) Dispatch(msg *Message) {
	go func() {
		if err := c.Send(msg); err != nil {
			prommetrics.RecordNotificationFailed(msg.Kind)
			c.log.Error().
				Err(err).
				Uint("user_id", msg.UserID).
				Str("kind", msg.Kind).
				Msg("Failed to send notification")
		}
	}()
}
