package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/Merlin1A/cafe-backend/internal/config"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// Gateway wraps the payment processor API: customer records, payment
// intents, capture and refunds. It never exposes raw processor errors to
// callers; use FriendlyMessage to translate them.
type Gateway struct {
	api      *client.API
	currency string
	cfg      config.PaymentConfig
	logger   *logger.Logger
}

// NewGateway creates a gateway from the configured API credential.
func NewGateway(cfg config.PaymentConfig, log *logger.Logger) *Gateway {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	return &Gateway{
		api:      api,
		currency: cfg.Currency,
		cfg:      cfg,
		logger:   log,
	}
}

// MinorUnits converts a 2-decimal amount to integer minor units (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// EnsureCustomer resolves the durable processor-side customer record for
// a user, recreating it if the stored reference points at a deleted
// record. The returned id must be persisted by the caller when it
// differs from the stored one.
func (g *Gateway) EnsureCustomer(ctx context.Context, user *models.User, requestID string) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		cust, err := g.api.Customers.Get(*user.StripeCustomerID, params)
		if err == nil && !cust.Deleted {
			return cust.ID, nil
		}
		g.logger.Warn("customer_lookup_failed",
			"Stored customer record is missing, recreating", requestID,
			map[string]interface{}{"user_id": user.ID})
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.DisplayName()),
	}
	params.Context = ctx
	params.AddMetadata("user_id", fmt.Sprintf("%d", user.ID))

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return cust.ID, nil
}

// CreateIntent creates a payment intent tagged with the order id for
// traceability. The idempotency key is derived from the order id so a
// naive retry of the same order cannot double-charge.
func (g *Gateway) CreateIntent(ctx context.Context, amountMinor int64, orderID, userID int64, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(g.currency),
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(fmt.Sprintf("order-%d-intent", orderID))
	params.AddMetadata("order_id", fmt.Sprintf("%d", orderID))
	params.AddMetadata("user_id", fmt.Sprintf("%d", userID))

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intent.ID, nil
}

// ConfirmIntent attempts to capture funds immediately with the given
// payment method and returns the resulting intent status. The call has a
// bounded timeout and is never retried here: a blind retry of a capture
// risks a double charge.
func (g *Gateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx

	intent, err := g.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return "", fmt.Errorf("failed to confirm payment intent: %w", err)
	}
	return string(intent.Status), nil
}

// IntentSucceeded reports whether a confirm status means funds were
// captured. Anything else is treated as payment failure by the pipeline.
func IntentSucceeded(status string) bool {
	return status == string(stripe.PaymentIntentStatusSucceeded)
}

// RefundIntent refunds a captured intent: the full amount when
// amountMinor is nil, otherwise a partial refund.
func (g *Gateway) RefundIntent(ctx context.Context, intentID string, amountMinor *int64, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if amountMinor != nil {
		params.Amount = stripe.Int64(*amountMinor)
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}
	return refund.ID, nil
}
