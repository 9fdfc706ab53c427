package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Merlin1A/cafe-backend/internal/config"
	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

type refundCall struct {
	intentID string
	amount   *int64
}

type fakeGateway struct {
	customerID    string
	intentID      string
	confirmStatus string
	confirmErr    error
	createErr     error
	refunds       []refundCall
	refundErr     error
}

func (g *fakeGateway) EnsureCustomer(_ context.Context, _ *models.User, _ string) (string, error) {
	return g.customerID, nil
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ int64, _, _ int64, _ string) (string, error) {
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.intentID, nil
}

func (g *fakeGateway) ConfirmIntent(_ context.Context, _, _ string) (string, error) {
	if g.confirmErr != nil {
		return "", g.confirmErr
	}
	return g.confirmStatus, nil
}

func (g *fakeGateway) RefundIntent(_ context.Context, intentID string, amountMinor *int64, _ string) (string, error) {
	g.refunds = append(g.refunds, refundCall{intentID: intentID, amount: amountMinor})
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "re_1", nil
}

type fakeStore struct {
	orders      map[int64]*models.Order
	nextID      int64
	confirmed   []int64
	deleted     []int64
	transitions []models.OrderStatus
	refunded    []int64
	user        *models.User
	createErr   error
	confirmErr  error
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	email := "alex@example.com"
	s := &fakeStore{
		orders: make(map[int64]*models.Order),
		nextID: 100,
		user:   &models.User{ID: 1, Email: email},
	}
	for _, ord := range orders {
		s.orders[ord.ID] = ord
	}
	return s
}

func (s *fakeStore) CreateOrder(_ context.Context, ord *models.Order, _ []models.ValidatedOrderItem) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	ord.ID = s.nextID
	ord.Number = "CAF-20260829-0007"
	ord.CreatedAt = time.Now()
	s.orders[ord.ID] = ord
	return nil
}

func (s *fakeStore) MarkOrderConfirmed(_ context.Context, orderID int64, intentID string) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = append(s.confirmed, orderID)
	ord := s.orders[orderID]
	ord.Status = models.OrderConfirmed
	ord.PaymentStatus = models.PaymentPaid
	ord.PaymentIntentID = &intentID
	return nil
}

func (s *fakeStore) DeleteProvisionalOrder(_ context.Context, orderID int64) error {
	s.deleted = append(s.deleted, orderID)
	delete(s.orders, orderID)
	return nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, orderID int64, _, to models.OrderStatus, paymentStatus *models.PaymentStatus, actualReadyAt *time.Time, _ string) error {
	s.transitions = append(s.transitions, to)
	ord := s.orders[orderID]
	ord.Status = to
	if paymentStatus != nil {
		ord.PaymentStatus = *paymentStatus
	}
	if actualReadyAt != nil {
		ord.ActualReadyAt = actualReadyAt
	}
	return nil
}

func (s *fakeStore) MarkOrderRefunded(_ context.Context, orderID int64, _ string) error {
	s.refunded = append(s.refunded, orderID)
	ord := s.orders[orderID]
	ord.PaymentStatus = models.PaymentRefunded
	ord.Status = models.OrderCancelled
	return nil
}

func (s *fakeStore) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	ord, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order")
	}
	copied := *ord
	return &copied, nil
}

func (s *fakeStore) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	for _, ord := range s.orders {
		if ord.Number == number {
			copied := *ord
			return &copied, nil
		}
	}
	return nil, domain.NotFound("order")
}

func (s *fakeStore) GetUserOrders(_ context.Context, _ int64, _, _ int) ([]models.Order, error) {
	return nil, nil
}

func (s *fakeStore) GetActiveOrders(_ context.Context, _ int) ([]models.Order, error) {
	return nil, nil
}

func (s *fakeStore) ListOrders(_ context.Context, _ *models.OrderStatus, _, _ int) ([]models.Order, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) StatusHistory(_ context.Context, _ int64) ([]models.OrderStatusChange, error) {
	return nil, nil
}

func (s *fakeStore) GetUser(_ context.Context, userID int64) (*models.User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, domain.NotFound("user")
	}
	return s.user, nil
}

func (s *fakeStore) SetUserCustomerID(_ context.Context, _ int64, customerID string) error {
	s.user.StripeCustomerID = &customerID
	return nil
}

type fakePricer struct {
	items []models.ValidatedOrderItem
	err   error
}

func (p *fakePricer) ValidateCart(_ context.Context, _ []models.CartItemInput) ([]models.ValidatedOrderItem, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.items, nil
}

func (p *fakePricer) OrderTotals(items []models.ValidatedOrderItem) models.OrderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal).Round(2)
	}
	tax := subtotal.Mul(decimal.RequireFromString("0.0635")).Round(2)
	return models.OrderTotals{
		Subtotal:    subtotal,
		TaxAmount:   tax,
		TotalAmount: subtotal.Add(tax).Round(2),
	}
}

type fakeDispatcher struct {
	calls int
}

func (d *fakeDispatcher) CreateJobs(_ context.Context, _ *models.Order, _ []models.ValidatedOrderItem, _ string, _ string) {
	d.calls++
}

type fakeNotifier struct {
	published []models.OrderStatusNotification
}

func (n *fakeNotifier) PublishOrderUpdate(_ context.Context, msg interface{}) error {
	if status, ok := msg.(models.OrderStatusNotification); ok {
		n.published = append(n.published, status)
	}
	return nil
}

type fixedCounter struct {
	count int
	err   error
}

func (c fixedCounter) CountInflightItems(_ context.Context) (int, error) {
	return c.count, c.err
}

func testOrdersConfig() config.OrdersConfig {
	return config.OrdersConfig{
		TaxRate:                decimal.RequireFromString("0.0635"),
		BasePrepMinutes:        5,
		QueueBatchSize:         5,
		QueueBatchDelayMinutes: 2,
		ReadyTimeRoundMinutes:  5,
		ActivePageSize:         50,
	}
}

func validatedLatte() []models.ValidatedOrderItem {
	return []models.ValidatedOrderItem{{
		MenuItemID:  1,
		Name:        "Latte",
		UnitPrice:   decimal.RequireFromString("9.70"),
		LineTotal:   decimal.RequireFromString("19.40"),
		Quantity:    2,
		PrepMinutes: 4,
		Station:     models.StationBeverage,
	}}
}

func newTestService(store *fakeStore, gateway *fakeGateway, dispatcher *fakeDispatcher, notifier *fakeNotifier) *Service {
	log := logger.New("order-test")
	estimator := NewEstimator(fixedCounter{count: 0}, testOrdersConfig(), log)
	pricer := &fakePricer{items: validatedLatte()}
	// A nil *fakeNotifier must become a nil interface, not a typed nil
	// the service would call through.
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	return NewService(store, pricer, estimator, gateway, dispatcher, n, 50, log)
}

func createRequest() models.CreateOrderRequest {
	return models.CreateOrderRequest{
		Items:           []models.CartItemInput{{MenuItemID: 1, Quantity: 2}},
		PaymentMethodID: "pm_card_visa",
	}
}

func TestCreateOrder_Success(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{customerID: "cus_1", intentID: "pi_1", confirmStatus: "succeeded"}
	dispatcher := &fakeDispatcher{}
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, dispatcher, notifier)

	ord, err := svc.CreateOrder(context.Background(), 1, createRequest(), "req-1")
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	if ord.Status != models.OrderConfirmed {
		t.Fatalf("status = %s, want confirmed", ord.Status)
	}
	if ord.PaymentStatus != models.PaymentPaid {
		t.Fatalf("payment status = %s, want paid", ord.PaymentStatus)
	}
	if ord.TotalAmount.String() != "20.63" {
		t.Fatalf("total = %s, want 20.63", ord.TotalAmount.String())
	}
	if dispatcher.calls != 1 {
		t.Fatalf("print dispatch calls = %d, want 1", dispatcher.calls)
	}
	if len(gateway.refunds) != 0 {
		t.Fatalf("refunds = %d, want 0", len(gateway.refunds))
	}
	if len(notifier.published) != 1 || notifier.published[0].NewStatus != models.OrderConfirmed {
		t.Fatalf("notifications = %+v", notifier.published)
	}
}

func TestCreateOrder_ValidationFailureHasNoSideEffects(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{customerID: "cus_1", intentID: "pi_1", confirmStatus: "succeeded"}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(store, gateway, dispatcher, nil)
	svc.pricer = &fakePricer{err: domain.Validation("items", "cart must contain at least one item")}

	_, err := svc.CreateOrder(context.Background(), 1, createRequest(), "req-1")
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(store.orders) != 0 {
		t.Fatal("provisional order persisted despite validation failure")
	}
	if dispatcher.calls != 0 {
		t.Fatal("print jobs dispatched despite validation failure")
	}
}

func TestCreateOrder_FailedConfirmCleansUp(t *testing.T) {
	// A confirm that does not come back succeeded refunds the intent,
	// deletes the provisional order and creates no print jobs.
	store := newFakeStore()
	gateway := &fakeGateway{customerID: "cus_1", intentID: "pi_1", confirmStatus: "requires_payment_method"}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(store, gateway, dispatcher, nil)

	_, err := svc.CreateOrder(context.Background(), 1, createRequest(), "req-1")
	if domain.KindOf(err) != domain.KindPayment {
		t.Fatalf("err = %v, want payment error", err)
	}

	if len(store.orders) != 0 {
		t.Fatal("provisional order still present after failed confirm")
	}
	if len(store.deleted) != 1 {
		t.Fatalf("deletions = %d, want 1", len(store.deleted))
	}
	if len(gateway.refunds) != 1 || gateway.refunds[0].intentID != "pi_1" {
		t.Fatalf("refunds = %+v, want one for pi_1", gateway.refunds)
	}
	if dispatcher.calls != 0 {
		t.Fatal("print jobs dispatched for a failed order")
	}
}

func TestCreateOrder_IntentCreationFailureSkipsRefund(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{customerID: "cus_1", createErr: errors.New("gateway unreachable")}
	svc := newTestService(store, gateway, &fakeDispatcher{}, nil)

	_, err := svc.CreateOrder(context.Background(), 1, createRequest(), "req-1")
	if err == nil {
		t.Fatal("CreateOrder() error = nil, want failure")
	}
	if len(gateway.refunds) != 0 {
		t.Fatalf("refunds = %d, want 0 when no intent exists", len(gateway.refunds))
	}
	if len(store.deleted) != 1 {
		t.Fatalf("deletions = %d, want 1", len(store.deleted))
	}
}

func paidOrder(id int64, status models.OrderStatus) *models.Order {
	intent := "pi_paid"
	return &models.Order{
		ID:              id,
		UserID:          1,
		Number:          "CAF-20260829-0001",
		Status:          status,
		PaymentStatus:   models.PaymentPaid,
		Subtotal:        decimal.RequireFromString("19.40"),
		TaxAmount:       decimal.RequireFromString("1.23"),
		TotalAmount:     decimal.RequireFromString("20.63"),
		PaymentIntentID: &intent,
	}
}

func TestUpdateOrderStatus_CancelPaidOrderRefundsOnce(t *testing.T) {
	store := newFakeStore(paidOrder(5, models.OrderPreparing))
	gateway := &fakeGateway{}
	svc := newTestService(store, gateway, &fakeDispatcher{}, nil)

	ord, err := svc.UpdateOrderStatus(context.Background(), 5, models.OrderCancelled, "user:9", "req-1")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}

	if len(gateway.refunds) != 1 {
		t.Fatalf("refunds = %d, want exactly 1", len(gateway.refunds))
	}
	if gateway.refunds[0].intentID != "pi_paid" || gateway.refunds[0].amount != nil {
		t.Fatalf("refund = %+v, want full refund of pi_paid", gateway.refunds[0])
	}
	if ord.Status != models.OrderCancelled {
		t.Fatalf("status = %s, want cancelled", ord.Status)
	}
	if ord.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("payment status = %s, want refunded", ord.PaymentStatus)
	}
}

func TestUpdateOrderStatus_RefundFailureBlocksCancellation(t *testing.T) {
	store := newFakeStore(paidOrder(5, models.OrderPreparing))
	gateway := &fakeGateway{refundErr: errors.New("gateway unreachable")}
	svc := newTestService(store, gateway, &fakeDispatcher{}, nil)

	_, err := svc.UpdateOrderStatus(context.Background(), 5, models.OrderCancelled, "user:9", "req-1")
	if domain.KindOf(err) != domain.KindPayment {
		t.Fatalf("err = %v, want payment error", err)
	}
	if len(store.transitions) != 0 {
		t.Fatal("status persisted despite refund failure")
	}
}

func TestUpdateOrderStatus_ReadyStampsActualReadyTime(t *testing.T) {
	store := newFakeStore(paidOrder(5, models.OrderPreparing))
	svc := newTestService(store, &fakeGateway{}, &fakeDispatcher{}, nil)
	fixed := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	ord, err := svc.UpdateOrderStatus(context.Background(), 5, models.OrderReady, "user:9", "req-1")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	if ord.ActualReadyAt == nil || !ord.ActualReadyAt.Equal(fixed) {
		t.Fatalf("actual ready at = %v, want %v", ord.ActualReadyAt, fixed)
	}
}

func TestUpdateOrderStatus_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from models.OrderStatus
		to   models.OrderStatus
	}{
		{models.OrderCompleted, models.OrderPreparing},
		{models.OrderCancelled, models.OrderConfirmed},
		{models.OrderPending, models.OrderReady},
		{models.OrderReady, models.OrderPreparing},
		{models.OrderConfirmed, models.OrderCompleted},
	}

	for _, tt := range tests {
		store := newFakeStore(paidOrder(5, tt.from))
		svc := newTestService(store, &fakeGateway{}, &fakeDispatcher{}, nil)

		_, err := svc.UpdateOrderStatus(context.Background(), 5, tt.to, "user:9", "req-1")
		if domain.KindOf(err) != domain.KindConflict {
			t.Errorf("%s -> %s: err = %v, want conflict", tt.from, tt.to, err)
		}
	}
}

func TestRefundOrder(t *testing.T) {
	amountOver := decimal.RequireFromString("25.00")
	amountPartial := decimal.RequireFromString("5.00")

	tests := []struct {
		name     string
		order    *models.Order
		amount   *decimal.Decimal
		wantKind domain.Kind
	}{
		{name: "full refund", order: paidOrder(5, models.OrderConfirmed)},
		{name: "partial refund", order: paidOrder(5, models.OrderConfirmed), amount: &amountPartial},
		{
			name: "no payment to refund",
			order: &models.Order{
				ID: 5, UserID: 1, Status: models.OrderPending,
				PaymentStatus: models.PaymentPending,
				TotalAmount:   decimal.RequireFromString("20.63"),
			},
			wantKind: domain.KindConflict,
		},
		{
			name: "already refunded",
			order: func() *models.Order {
				ord := paidOrder(5, models.OrderCancelled)
				ord.PaymentStatus = models.PaymentRefunded
				return ord
			}(),
			wantKind: domain.KindConflict,
		},
		{name: "exceeds total", order: paidOrder(5, models.OrderConfirmed), amount: &amountOver, wantKind: domain.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(tt.order)
			gateway := &fakeGateway{}
			svc := newTestService(store, gateway, &fakeDispatcher{}, nil)

			ord, err := svc.RefundOrder(context.Background(), 5, tt.amount, "user:9", "req-1")
			if tt.wantKind != "" {
				if domain.KindOf(err) != tt.wantKind {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				if len(gateway.refunds) != 0 {
					t.Fatal("gateway refund called for rejected request")
				}
				return
			}
			if err != nil {
				t.Fatalf("RefundOrder() error = %v", err)
			}
			if len(gateway.refunds) != 1 {
				t.Fatalf("refunds = %d, want 1", len(gateway.refunds))
			}
			if ord.PaymentStatus != models.PaymentRefunded || ord.Status != models.OrderCancelled {
				t.Fatalf("order = %s/%s, want cancelled/refunded", ord.Status, ord.PaymentStatus)
			}
		})
	}
}

func TestRefundOrder_PublishesCancellation(t *testing.T) {
	store := newFakeStore(paidOrder(5, models.OrderConfirmed))
	notifier := &fakeNotifier{}
	svc := newTestService(store, &fakeGateway{}, &fakeDispatcher{}, notifier)

	if _, err := svc.RefundOrder(context.Background(), 5, nil, "user:9", "req-1"); err != nil {
		t.Fatalf("RefundOrder() error = %v", err)
	}
	if len(notifier.published) != 1 {
		t.Fatalf("published = %d, want 1", len(notifier.published))
	}
	msg := notifier.published[0]
	if msg.OldStatus != models.OrderConfirmed || msg.NewStatus != models.OrderCancelled {
		t.Fatalf("notification = %s -> %s, want confirmed -> cancelled", msg.OldStatus, msg.NewStatus)
	}
}

func TestUpdateOrderStatus_NoNotifierConfigured(t *testing.T) {
	store := newFakeStore(paidOrder(6, models.OrderPreparing))
	svc := newTestService(store, &fakeGateway{}, &fakeDispatcher{}, nil)

	ord, err := svc.UpdateOrderStatus(context.Background(), 6, models.OrderReady, "system", "req-1")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	if ord.Status != models.OrderReady {
		t.Fatalf("status = %s, want ready", ord.Status)
	}
}

func TestGetOrder_RestrictsToOwner(t *testing.T) {
	store := newFakeStore(paidOrder(5, models.OrderConfirmed))
	svc := newTestService(store, &fakeGateway{}, &fakeDispatcher{}, nil)

	if _, err := svc.GetOrder(context.Background(), 5, 1); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	_, err := svc.GetOrder(context.Background(), 5, 2)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign read err = %v, want not found", err)
	}
}
