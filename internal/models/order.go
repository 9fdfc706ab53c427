package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentStatus represents the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// allowedTransitions is the complete order status transition table.
// COMPLETED and CANCELLED are terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderCompleted, OrderCancelled},
	OrderCompleted: {},
	OrderCancelled: {},
}

// CanTransitionTo reports whether the transition from s to next is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// CartItemInput is one client-submitted cart line. It is never persisted
// as-is; validation derives a ValidatedOrderItem from it.
type CartItemInput struct {
	MenuItemID          int64   `json:"menu_item_id"`
	Quantity            int     `json:"quantity"`
	ModifierIDs         []int64 `json:"modifier_ids,omitempty"`
	SpecialInstructions string  `json:"special_instructions,omitempty"`
}

// ValidatedModifier is a modifier snapshot taken at validation time.
type ValidatedModifier struct {
	ModifierID      int64           `json:"modifier_id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// ValidatedOrderItem is the authoritative pricing input for one cart line:
// a snapshot of item identity, price, prep time and station at validation
// time, decoupled from subsequent catalog mutation.
type ValidatedOrderItem struct {
	MenuItemID          int64               `json:"menu_item_id"`
	Name                string              `json:"name"`
	BasePrice           decimal.Decimal     `json:"base_price"`
	UnitPrice           decimal.Decimal     `json:"unit_price"`
	LineTotal           decimal.Decimal     `json:"line_total"`
	Quantity            int                 `json:"quantity"`
	PrepMinutes         int                 `json:"preparation_minutes"`
	Station             Station             `json:"station"`
	SpecialInstructions string              `json:"special_instructions,omitempty"`
	Modifiers           []ValidatedModifier `json:"modifiers,omitempty"`
}

// OrderTotals holds the money-exact order-level amounts.
type OrderTotals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderItemModifier is a persisted modifier snapshot on an order item.
type OrderItemModifier struct {
	ID              int64           `json:"id,omitempty"`
	OrderItemID     int64           `json:"order_item_id,omitempty"`
	ModifierID      int64           `json:"modifier_id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// OrderItem is a persisted line of an order, snapshotting the menu item
// at order time.
type OrderItem struct {
	ID                  int64               `json:"id,omitempty"`
	OrderID             int64               `json:"order_id,omitempty"`
	MenuItemID          int64               `json:"menu_item_id"`
	Name                string              `json:"name"`
	Quantity            int                 `json:"quantity"`
	UnitPrice           decimal.Decimal     `json:"unit_price"`
	LineTotal           decimal.Decimal     `json:"line_total"`
	Station             Station             `json:"station"`
	SpecialInstructions *string             `json:"special_instructions,omitempty"`
	Modifiers           []OrderItemModifier `json:"modifiers,omitempty"`
}

// Order is a customer order.
type Order struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	Number              string          `json:"order_number"`
	Status              OrderStatus     `json:"status"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaymentIntentID     *string         `json:"payment_intent_id,omitempty"`
	EstimatedReadyAt    *time.Time      `json:"estimated_ready_at,omitempty"`
	ActualReadyAt       *time.Time      `json:"actual_ready_at,omitempty"`
	SpecialInstructions *string         `json:"special_instructions,omitempty"`
	Items               []OrderItem     `json:"items,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// OrderStatusChange is one entry in an order's status audit log.
type OrderStatusChange struct {
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changed_by"`
	Notes     *string     `json:"notes,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

// CreateOrderRequest is the request body for placing an order.
type CreateOrderRequest struct {
	Items               []CartItemInput `json:"items"`
	PaymentMethodID     string          `json:"payment_method_id"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// OrderStatusResponse is the lightweight status view for polling clients.
type OrderStatusResponse struct {
	OrderNumber      string        `json:"order_number"`
	Status           OrderStatus   `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	EstimatedReadyAt *time.Time    `json:"estimated_ready_at,omitempty"`
	ActualReadyAt    *time.Time    `json:"actual_ready_at,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// OrderStatusNotification is published on the notifications exchange when
// an order changes state.
type OrderStatusNotification struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OldStatus   OrderStatus `json:"old_status"`
	NewStatus   OrderStatus `json:"new_status"`
	ChangedBy   string      `json:"changed_by"`
	Timestamp   time.Time   `json:"timestamp"`
}
