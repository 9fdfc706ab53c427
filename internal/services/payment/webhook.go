package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
)

const webhookMaxBodyBytes = 65536

// OrderPayments is the persistence surface webhook events drive.
type OrderPayments interface {
	MarkOrderPaid(ctx context.Context, orderID int64, intentID string) error
	MarkOrderPaymentFailed(ctx context.Context, orderID int64) error
	MarkOrderRefundedByIntent(ctx context.Context, intentID string) (int64, error)
}

// AlertPublisher publishes operational alerts that need human follow-up.
type AlertPublisher interface {
	PublishOpsAlert(ctx context.Context, routingKey string, msg interface{}) error
}

// WebhookHandler receives and verifies gateway event callbacks. The raw
// body is never parsed before its signature is verified.
type WebhookHandler struct {
	secret string
	orders OrderPayments
	alerts AlertPublisher
	logger *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(secret string, orders OrderPayments, alerts AlertPublisher, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		orders: orders,
		alerts: alerts,
		logger: log,
	}
}

// HandleWebhook handles POST /webhooks/payment requests.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBodyBytes))
	if err != nil {
		h.logger.Error("webhook_read_failed", "Failed to read webhook body", requestID, err, nil)
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	// The opaque payload is authenticated before anything inspects it.
	// A bad signature is an auth failure, not a retryable server error.
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		h.logger.Error("webhook_signature_invalid", "Webhook signature verification failed", requestID, err, map[string]interface{}{
			"remote_addr": r.RemoteAddr,
		})
		http.Error(w, `{"error":"signature verification failed"}`, http.StatusUnauthorized)
		return
	}

	handled, err := h.dispatch(r.Context(), &event, requestID)
	if err != nil {
		h.logger.Error("webhook_handling_failed", "Failed to process webhook event", requestID, err, map[string]interface{}{
			"event_type": string(event.Type),
		})
		http.Error(w, `{"error":"event processing failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received": true,
		"handled":  handled,
	})
}

func (h *WebhookHandler) dispatch(ctx context.Context, event *stripe.Event, requestID string) (bool, error) {
	switch string(event.Type) {
	case "payment_intent.succeeded":
		return true, h.handleIntentSucceeded(ctx, event, requestID)
	case "payment_intent.payment_failed":
		return true, h.handleIntentFailed(ctx, event, requestID)
	case "charge.refunded":
		return true, h.handleChargeRefunded(ctx, event, requestID)
	case "charge.dispute.created":
		return true, h.handleDisputeCreated(ctx, event, requestID)
	default:
		h.logger.Debug("webhook_event_ignored", "Unrecognized webhook event type", requestID, map[string]interface{}{
			"event_type": string(event.Type),
		})
		return false, nil
	}
}

func (h *WebhookHandler) handleIntentSucceeded(ctx context.Context, event *stripe.Event, requestID string) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return err
	}

	orderID, ok := orderIDFromMetadata(intent.Metadata)
	if !ok {
		h.logger.Warn("webhook_missing_order", "Payment intent carries no order metadata", requestID, map[string]interface{}{
			"intent_id": intent.ID,
		})
		return nil
	}

	if err := h.orders.MarkOrderPaid(ctx, orderID, intent.ID); err != nil {
		return err
	}
	h.logger.Info("payment_confirmed", "Order marked paid from webhook", requestID, map[string]interface{}{
		"order_id":  orderID,
		"intent_id": intent.ID,
	})
	return nil
}

func (h *WebhookHandler) handleIntentFailed(ctx context.Context, event *stripe.Event, requestID string) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return err
	}

	orderID, ok := orderIDFromMetadata(intent.Metadata)
	if !ok {
		return nil
	}

	if err := h.orders.MarkOrderPaymentFailed(ctx, orderID); err != nil {
		return err
	}
	// Failed captures are recorded, never retried automatically.
	h.logger.Warn("payment_failed", "Order payment failed", requestID, map[string]interface{}{
		"order_id":  orderID,
		"intent_id": intent.ID,
	})
	return nil
}

func (h *WebhookHandler) handleChargeRefunded(ctx context.Context, event *stripe.Event, requestID string) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return err
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return nil
	}

	orderID, err := h.orders.MarkOrderRefundedByIntent(ctx, charge.PaymentIntent.ID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			// A refund for an intent we never recorded is logged and
			// swallowed; the webhook response stays 200.
			h.logger.Warn("refund_order_missing", "No order matches refunded intent", requestID, map[string]interface{}{
				"intent_id": charge.PaymentIntent.ID,
			})
			return nil
		}
		return err
	}

	h.logger.Info("payment_refunded", "Order marked refunded from webhook", requestID, map[string]interface{}{
		"order_id":  orderID,
		"intent_id": charge.PaymentIntent.ID,
	})
	return nil
}

func (h *WebhookHandler) handleDisputeCreated(ctx context.Context, event *stripe.Event, requestID string) error {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return err
	}

	// Disputes require human follow-up; no automatic state change.
	h.logger.Error("dispute_created", "Chargeback dispute opened", requestID, nil, map[string]interface{}{
		"dispute_id": dispute.ID,
	})
	if h.alerts != nil {
		alert := map[string]interface{}{
			"dispute_id": dispute.ID,
			"opened_at":  time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.alerts.PublishOpsAlert(ctx, "payment.dispute_created", alert); err != nil {
			h.logger.Error("alert_publish_failed", "Failed to publish dispute alert", requestID, err, nil)
		}
	}
	return nil
}

func orderIDFromMetadata(metadata map[string]string) (int64, bool) {
	raw, ok := metadata["order_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
