package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Merlin1A/cafe-backend/internal/database"
	"github.com/Merlin1A/cafe-backend/internal/domain"
)

// Repository persists the order payment-state changes driven by gateway
// webhook events.
type Repository struct {
	db *database.DB
}

// NewRepository creates a payment repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// MarkOrderPaid records a successful capture: payment status paid plus
// the external intent reference.
func (r *Repository) MarkOrderPaid(ctx context.Context, orderID int64, intentID string) error {
	if err := r.db.Exec(ctx, database.MarkOrderPaidSQL, orderID, intentID); err != nil {
		return fmt.Errorf("failed to mark order %d paid: %w", orderID, err)
	}
	return nil
}

// MarkOrderPaymentFailed records a failed capture.
func (r *Repository) MarkOrderPaymentFailed(ctx context.Context, orderID int64) error {
	if err := r.db.Exec(ctx, database.MarkOrderPaymentFailedSQL, orderID); err != nil {
		return fmt.Errorf("failed to mark order %d payment failed: %w", orderID, err)
	}
	return nil
}

// MarkOrderRefundedByIntent flags the order holding the given intent
// reference as refunded and returns its id. Returns a not-found error
// when no order matches.
func (r *Repository) MarkOrderRefundedByIntent(ctx context.Context, intentID string) (int64, error) {
	var orderID int64
	err := r.db.QueryRow(ctx, database.MarkOrderRefundedByIntentSQL, intentID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NotFound("order for payment intent")
		}
		return 0, fmt.Errorf("failed to mark refund for intent %s: %w", intentID, err)
	}
	return orderID, nil
}
