package order

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// Handler exposes the order pipeline over HTTP. Authentication is the
// boundary's concern: the caller identity arrives in the X-User-ID
// header set by the fronting layer.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates an order handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes mounts the order endpoints on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.GetUserOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{number}/status", h.GetOrderStatus).Methods(http.MethodGet)

	r.HandleFunc("/admin/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/admin/orders/active", h.GetActiveOrders).Methods(http.MethodGet)
	r.HandleFunc("/admin/orders/{id:[0-9]+}/status", h.UpdateStatus).Methods(http.MethodPost)
	r.HandleFunc("/admin/orders/{id:[0-9]+}/refund", h.Refund).Methods(http.MethodPost)
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validation("", "invalid JSON body"), requestID)
		return
	}
	if req.PaymentMethodID == "" {
		h.writeError(w, domain.Validation("payment_method_id", "a payment method is required"), requestID)
		return
	}

	ord, err := h.service.CreateOrder(r.Context(), userID, req, requestID)
	if err != nil {
		h.logError(requestID, "order_create_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, ord)
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}
	orderID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	ord, err := h.service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		h.logError(requestID, "order_get_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

// GetUserOrders handles GET /orders.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	userID, err := callerID(r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}
	limit, offset := pagination(r)

	orders, err := h.service.GetUserOrders(r.Context(), userID, limit, offset)
	if err != nil {
		h.logError(requestID, "orders_list_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// GetOrderStatus handles GET /orders/{number}/status.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	number := mux.Vars(r)["number"]

	status, history, err := h.service.GetOrderStatus(r.Context(), number)
	if err != nil {
		h.logError(requestID, "order_status_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"history": history,
	})
}

// ListOrders handles GET /admin/orders?status=confirmed.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var status *models.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.OrderStatus(raw)
		status = &s
	}
	limit, offset := pagination(r)

	orders, total, err := h.service.ListOrders(r.Context(), status, limit, offset)
	if err != nil {
		h.logError(requestID, "orders_list_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  total,
	})
}

// GetActiveOrders handles GET /admin/orders/active.
func (h *Handler) GetActiveOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orders, err := h.service.GetActiveOrders(r.Context())
	if err != nil {
		h.logError(requestID, "active_orders_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// UpdateStatus handles POST /admin/orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	orderID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validation("", "invalid JSON body"), requestID)
		return
	}

	ord, err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status, actor(r), requestID)
	if err != nil {
		h.logError(requestID, "status_update_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

// Refund handles POST /admin/orders/{id}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	orderID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req struct {
		Amount *decimal.Decimal `json:"amount,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validation("", "invalid JSON body"), requestID)
		return
	}

	ord, err := h.service.RefundOrder(r.Context(), orderID, req.Amount, actor(r), requestID)
	if err != nil {
		h.logError(requestID, "refund_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

func callerID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, domain.Unauthorized("caller identity is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Unauthorized("caller identity is invalid")
	}
	return id, nil
}

func actor(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return "user:" + id
	}
	return "system"
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func (h *Handler) logError(requestID, action string, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		h.logger.Error(action, "Order operation failed", requestID, err, nil)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domain.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      domain.UserMessage(err),
		"request_id": requestID,
	})
}
