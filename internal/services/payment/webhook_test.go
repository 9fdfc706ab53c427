package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v78"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
)

const testWebhookSecret = "whsec_test_secret"

type fakeOrderPayments struct {
	paidOrderID    int64
	paidIntentID   string
	failedOrderID  int64
	refundedIntent string
	refundErr      error
}

func (f *fakeOrderPayments) MarkOrderPaid(_ context.Context, orderID int64, intentID string) error {
	f.paidOrderID = orderID
	f.paidIntentID = intentID
	return nil
}

func (f *fakeOrderPayments) MarkOrderPaymentFailed(_ context.Context, orderID int64) error {
	f.failedOrderID = orderID
	return nil
}

func (f *fakeOrderPayments) MarkOrderRefundedByIntent(_ context.Context, intentID string) (int64, error) {
	f.refundedIntent = intentID
	if f.refundErr != nil {
		return 0, f.refundErr
	}
	return 42, nil
}

type fakeAlerts struct {
	routingKeys []string
}

func (f *fakeAlerts) PublishOpsAlert(_ context.Context, routingKey string, _ interface{}) error {
	f.routingKeys = append(f.routingKeys, routingKey)
	return nil
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventType string, object map[string]interface{}) []byte {
	raw, _ := json.Marshal(object)
	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]interface{}{"object": json.RawMessage(raw)},
	})
	return payload
}

func postEvent(t *testing.T, h *WebhookHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	orders := &fakeOrderPayments{}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_test_1",
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": "7"},
	})

	rec := postEvent(t, h, payload, signPayload(payload, "whsec_wrong_secret"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if orders.paidOrderID != 0 {
		t.Fatal("order state changed despite invalid signature")
	}
}

func TestHandleWebhook_IntentSucceeded(t *testing.T) {
	orders := &fakeOrderPayments{}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_test_1",
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": "7"},
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if orders.paidOrderID != 7 || orders.paidIntentID != "pi_test_1" {
		t.Fatalf("marked paid (%d, %q), want (7, pi_test_1)", orders.paidOrderID, orders.paidIntentID)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["handled"] != true {
		t.Fatalf("handled = %v, want true", resp["handled"])
	}
}

func TestHandleWebhook_IntentFailed(t *testing.T) {
	orders := &fakeOrderPayments{}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("payment_intent.payment_failed", map[string]interface{}{
		"id":       "pi_test_2",
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": "9"},
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if orders.failedOrderID != 9 {
		t.Fatalf("failed order = %d, want 9", orders.failedOrderID)
	}
}

func TestHandleWebhook_ChargeRefunded(t *testing.T) {
	orders := &fakeOrderPayments{}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("charge.refunded", map[string]interface{}{
		"id":             "ch_test_1",
		"object":         "charge",
		"payment_intent": "pi_test_3",
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if orders.refundedIntent != "pi_test_3" {
		t.Fatalf("refunded intent = %q, want pi_test_3", orders.refundedIntent)
	}
}

func TestHandleWebhook_RefundForUnknownIntentIsSwallowed(t *testing.T) {
	orders := &fakeOrderPayments{refundErr: domain.NotFound("order")}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("charge.refunded", map[string]interface{}{
		"id":             "ch_test_2",
		"object":         "charge",
		"payment_intent": "pi_unknown",
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleWebhook_DisputePublishesAlert(t *testing.T) {
	orders := &fakeOrderPayments{}
	alerts := &fakeAlerts{}
	h := NewWebhookHandler(testWebhookSecret, orders, alerts, logger.New("payment-test"))

	payload := eventPayload("charge.dispute.created", map[string]interface{}{
		"id":     "dp_test_1",
		"object": "dispute",
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(alerts.routingKeys) != 1 || alerts.routingKeys[0] != "payment.dispute_created" {
		t.Fatalf("alerts = %v, want [payment.dispute_created]", alerts.routingKeys)
	}
	if orders.paidOrderID != 0 || orders.failedOrderID != 0 || orders.refundedIntent != "" {
		t.Fatal("dispute must not change order state")
	}
}

func TestHandleWebhook_UnrecognizedEventIsAcknowledged(t *testing.T) {
	orders := &fakeOrderPayments{}
	h := NewWebhookHandler(testWebhookSecret, orders, nil, logger.New("payment-test"))

	payload := eventPayload("customer.updated", map[string]interface{}{
		"id":     "cus_test_1",
		"object": "customer",
	})

	rec := postEvent(t, h, payload, signPayload(payload, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["handled"] != false {
		t.Fatalf("handled = %v, want false", resp["handled"])
	}
}
