package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
	"github.com/Merlin1A/cafe-backend/internal/services/payment"
)

// Store is the persistence surface the pipeline drives.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.ValidatedOrderItem) error
	MarkOrderConfirmed(ctx context.Context, orderID int64, intentID string) error
	DeleteProvisionalOrder(ctx context.Context, orderID int64) error
	TransitionStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, paymentStatus *models.PaymentStatus, actualReadyAt *time.Time, changedBy string) error
	MarkOrderRefunded(ctx context.Context, orderID int64, changedBy string) error
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	GetActiveOrders(ctx context.Context, limit int) ([]models.Order, error)
	ListOrders(ctx context.Context, status *models.OrderStatus, limit, offset int) ([]models.Order, int, error)
	StatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusChange, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SetUserCustomerID(ctx context.Context, userID int64, customerID string) error
}

// Pricer validates a cart and prices it.
type Pricer interface {
	ValidateCart(ctx context.Context, items []models.CartItemInput) ([]models.ValidatedOrderItem, error)
	OrderTotals(items []models.ValidatedOrderItem) models.OrderTotals
}

// PaymentGateway is the slice of the processor adapter the pipeline uses.
type PaymentGateway interface {
	EnsureCustomer(ctx context.Context, user *models.User, requestID string) (string, error)
	CreateIntent(ctx context.Context, amountMinor int64, orderID, userID int64, customerID string) (string, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (string, error)
	RefundIntent(ctx context.Context, intentID string, amountMinor *int64, reason string) (string, error)
}

// PrintDispatcher fans a confirmed order out to station printers.
type PrintDispatcher interface {
	CreateJobs(ctx context.Context, order *models.Order, items []models.ValidatedOrderItem, customerName string, requestID string)
}

// Notifier publishes order status change messages.
type Notifier interface {
	PublishOrderUpdate(ctx context.Context, msg interface{}) error
}

// Service is the order pipeline orchestrator: cart validation, pricing,
// payment capture, confirmation, print fan-out and lifecycle transitions.
type Service struct {
	store      Store
	pricer     Pricer
	estimator  *Estimator
	gateway    PaymentGateway
	dispatcher PrintDispatcher
	notifier   Notifier
	pageSize   int
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates the order pipeline.
func NewService(store Store, pricer Pricer, estimator *Estimator, gateway PaymentGateway, dispatcher PrintDispatcher, notifier Notifier, pageSize int, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		pricer:     pricer,
		estimator:  estimator,
		gateway:    gateway,
		dispatcher: dispatcher,
		notifier:   notifier,
		pageSize:   pageSize,
		logger:     log,
		now:        time.Now,
	}
}

// CreateOrder runs the creation flow: validate, price, persist a
// provisional order, capture payment, confirm, dispatch print jobs.
// Payment capture never happens before the provisional order persists,
// and print jobs never dispatch before payment success.
func (s *Service) CreateOrder(ctx context.Context, userID int64, req models.CreateOrderRequest, requestID string) (*models.Order, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.pricer.ValidateCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	totals := s.pricer.OrderTotals(items)
	readyAt := s.estimator.EstimateReadyTime(ctx, items, requestID)

	ord := &models.Order{
		UserID:           userID,
		Status:           models.OrderPending,
		PaymentStatus:    models.PaymentPending,
		Subtotal:         totals.Subtotal,
		TaxAmount:        totals.TaxAmount,
		TotalAmount:      totals.TotalAmount,
		EstimatedReadyAt: &readyAt,
	}
	if req.SpecialInstructions != "" {
		ord.SpecialInstructions = &req.SpecialInstructions
	}

	if err := s.store.CreateOrder(ctx, ord, items); err != nil {
		return nil, err
	}

	s.logger.Info("order_created", "Provisional order persisted", requestID, map[string]interface{}{
		"order_id":     ord.ID,
		"order_number": ord.Number,
		"total":        ord.TotalAmount.String(),
	})

	intentID, err := s.capturePayment(ctx, ord, user, req.PaymentMethodID, requestID)
	if err != nil {
		s.compensate(ctx, ord, intentID, requestID)
		return nil, err
	}

	if err := s.store.MarkOrderConfirmed(ctx, ord.ID, intentID); err != nil {
		s.compensate(ctx, ord, intentID, requestID)
		return nil, fmt.Errorf("confirming order %d: %w", ord.ID, err)
	}
	ord.Status = models.OrderConfirmed
	ord.PaymentStatus = models.PaymentPaid
	ord.PaymentIntentID = &intentID

	s.dispatcher.CreateJobs(ctx, ord, items, user.DisplayName(), requestID)
	s.publishStatusChange(ctx, ord, models.OrderPending, models.OrderConfirmed, "system", requestID)

	confirmed, err := s.store.GetOrder(ctx, ord.ID)
	if err != nil {
		// The order is confirmed and paid; a read failure here must not
		// look like a failed purchase.
		s.logger.Error("order_reload_failed", "Confirmed order could not be reloaded", requestID, err, map[string]interface{}{
			"order_id": ord.ID,
		})
		return ord, nil
	}
	return confirmed, nil
}

// capturePayment creates and confirms the intent for a provisional
// order. It returns the intent id even on failure so the caller can
// decide whether a refund is needed.
func (s *Service) capturePayment(ctx context.Context, ord *models.Order, user *models.User, paymentMethodID, requestID string) (string, error) {
	customerID, err := s.gateway.EnsureCustomer(ctx, user, requestID)
	if err != nil {
		return "", domain.Payment(payment.FriendlyMessage(err), err)
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID != customerID {
		if err := s.store.SetUserCustomerID(ctx, user.ID, customerID); err != nil {
			s.logger.Warn("customer_id_persist_failed", "Could not store processor customer id", requestID, map[string]interface{}{
				"user_id": user.ID,
				"error":   err.Error(),
			})
		}
	}

	intentID, err := s.gateway.CreateIntent(ctx, payment.MinorUnits(ord.TotalAmount), ord.ID, user.ID, customerID)
	if err != nil {
		return "", domain.Payment(payment.FriendlyMessage(err), err)
	}

	status, err := s.gateway.ConfirmIntent(ctx, intentID, paymentMethodID)
	if err != nil {
		return intentID, domain.Payment(payment.FriendlyMessage(err), err)
	}
	if !payment.IntentSucceeded(status) {
		return intentID, domain.Payment("Payment was not completed. Please try a different payment method.",
			fmt.Errorf("payment intent %s finished with status %q", intentID, status))
	}
	return intentID, nil
}

// compensate unwinds a failed creation: refund anything that may have
// been captured, then remove the provisional order so it does not linger
// as an orphaned pending record. Compensation failures are logged for
// manual reconciliation, never escalated into a retry loop.
func (s *Service) compensate(ctx context.Context, ord *models.Order, intentID, requestID string) {
	if intentID != "" {
		if _, err := s.gateway.RefundIntent(ctx, intentID, nil, "requested_by_customer"); err != nil {
			s.logger.Error("compensation_refund_failed", "Refund of failed order needs manual reconciliation", requestID, err, map[string]interface{}{
				"order_id":  ord.ID,
				"intent_id": intentID,
			})
		}
	}
	if err := s.store.DeleteProvisionalOrder(ctx, ord.ID); err != nil {
		s.logger.Error("compensation_cleanup_failed", "Provisional order could not be removed", requestID, err, map[string]interface{}{
			"order_id": ord.ID,
		})
	}
}

// UpdateOrderStatus applies a staff-driven lifecycle transition. The
// write is a compare-and-set keyed on the status the transition was
// validated against, so two concurrent transitions from the same state
// cannot both win.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus models.OrderStatus, changedBy, requestID string) (*models.Order, error) {
	if !newStatus.IsValid() {
		return nil, domain.Validationf("status", "unknown status %q", newStatus)
	}

	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !ord.Status.CanTransitionTo(newStatus) {
		return nil, domain.Conflict("cannot transition order from %s to %s", ord.Status, newStatus)
	}

	var paymentStatus *models.PaymentStatus
	if newStatus == models.OrderCancelled && ord.PaymentStatus == models.PaymentPaid {
		// Cancelling a paid order refunds the full total before the new
		// status is persisted.
		if ord.PaymentIntentID == nil {
			return nil, domain.Conflict("order is paid but has no payment reference to refund")
		}
		if _, err := s.gateway.RefundIntent(ctx, *ord.PaymentIntentID, nil, "requested_by_customer"); err != nil {
			return nil, domain.Payment(payment.FriendlyMessage(err), err)
		}
		refunded := models.PaymentRefunded
		paymentStatus = &refunded
	}

	var actualReadyAt *time.Time
	if newStatus == models.OrderReady {
		now := s.now()
		actualReadyAt = &now
	}

	if err := s.store.TransitionStatus(ctx, orderID, ord.Status, newStatus, paymentStatus, actualReadyAt, changedBy); err != nil {
		return nil, err
	}

	s.logger.Info("order_status_changed", "Order transitioned", requestID, map[string]interface{}{
		"order_id":   orderID,
		"old_status": string(ord.Status),
		"new_status": string(newStatus),
		"changed_by": changedBy,
	})
	oldStatus := ord.Status
	updated, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, updated, oldStatus, newStatus, changedBy, requestID)
	return updated, nil
}

// RefundOrder refunds a paid order, fully when amount is nil, and
// cancels it.
func (s *Service) RefundOrder(ctx context.Context, orderID int64, amount *decimal.Decimal, changedBy, requestID string) (*models.Order, error) {
	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if ord.PaymentIntentID == nil || *ord.PaymentIntentID == "" {
		return nil, domain.Conflict("order has no payment to refund")
	}
	if ord.PaymentStatus == models.PaymentRefunded {
		return nil, domain.Conflict("order is already refunded")
	}

	var amountMinor *int64
	if amount != nil {
		if amount.GreaterThan(ord.TotalAmount) {
			return nil, domain.Conflict("refund amount %s exceeds order total %s", amount.String(), ord.TotalAmount.String())
		}
		minor := payment.MinorUnits(*amount)
		amountMinor = &minor
	}

	if _, err := s.gateway.RefundIntent(ctx, *ord.PaymentIntentID, amountMinor, "requested_by_customer"); err != nil {
		return nil, domain.Payment(payment.FriendlyMessage(err), err)
	}

	if err := s.store.MarkOrderRefunded(ctx, orderID, changedBy); err != nil {
		s.logger.Error("refund_persist_failed", "Refund issued but order state not updated", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}

	s.logger.Info("order_refunded", "Order refunded", requestID, map[string]interface{}{
		"order_id":   orderID,
		"changed_by": changedBy,
	})
	updated, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, updated, ord.Status, updated.Status, changedBy, requestID)
	return updated, nil
}

// GetOrder returns an order with its items. When restrictToUser is
// non-zero the order must belong to that user; a foreign order reads as
// not found rather than forbidden.
func (s *Service) GetOrder(ctx context.Context, orderID int64, restrictToUser int64) (*models.Order, error) {
	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if restrictToUser != 0 && ord.UserID != restrictToUser {
		return nil, domain.NotFound("order")
	}
	return ord, nil
}

// GetUserOrders returns a page of the user's orders, newest first.
func (s *Service) GetUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.GetUserOrders(ctx, userID, limit, offset)
}

// GetActiveOrders returns confirmed and preparing orders oldest-first
// for the kitchen display.
func (s *Service) GetActiveOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.GetActiveOrders(ctx, s.pageSize)
}

// ListOrders returns a filtered page of all orders plus the total count.
func (s *Service) ListOrders(ctx context.Context, status *models.OrderStatus, limit, offset int) ([]models.Order, int, error) {
	if status != nil && !status.IsValid() {
		return nil, 0, domain.Validationf("status", "unknown status %q", *status)
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOrders(ctx, status, limit, offset)
}

// GetOrderStatus returns the lightweight polling view for an order
// number, with its transition history.
func (s *Service) GetOrderStatus(ctx context.Context, number string) (*models.OrderStatusResponse, []models.OrderStatusChange, error) {
	ord, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.store.StatusHistory(ctx, ord.ID)
	if err != nil {
		return nil, nil, err
	}
	resp := &models.OrderStatusResponse{
		OrderNumber:      ord.Number,
		Status:           ord.Status,
		PaymentStatus:    ord.PaymentStatus,
		EstimatedReadyAt: ord.EstimatedReadyAt,
		ActualReadyAt:    ord.ActualReadyAt,
		UpdatedAt:        ord.UpdatedAt,
	}
	return resp, history, nil
}

func (s *Service) publishStatusChange(ctx context.Context, ord *models.Order, from, to models.OrderStatus, changedBy, requestID string) {
	if s.notifier == nil {
		return
	}
	msg := models.OrderStatusNotification{
		OrderID:     ord.ID,
		OrderNumber: ord.Number,
		OldStatus:   from,
		NewStatus:   to,
		ChangedBy:   changedBy,
		Timestamp:   s.now().UTC(),
	}
	if err := s.notifier.PublishOrderUpdate(ctx, msg); err != nil {
		s.logger.Warn("notification_publish_failed", "Order update not published", requestID, map[string]interface{}{
			"order_id": ord.ID,
			"error":    err.Error(),
		})
	}
}
