package printing

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// Handler exposes the print agent protocol and the operator retry
// endpoints over HTTP.
type Handler struct {
	dispatcher *Dispatcher
	agentToken string
	logger     *logger.Logger
}

// NewHandler creates a printing handler.
func NewHandler(dispatcher *Dispatcher, agentToken string, log *logger.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		agentToken: agentToken,
		logger:     log,
	}
}

// RegisterRoutes mounts the printing endpoints on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	agent := r.PathPrefix("/print-agent").Subrouter()
	agent.Use(h.agentAuth)
	agent.HandleFunc("/jobs", h.PullJobs).Methods(http.MethodGet)
	agent.HandleFunc("/jobs/{id:[0-9]+}/ack", h.AcknowledgeJob).Methods(http.MethodPost)

	r.HandleFunc("/admin/print-jobs/retry", h.RetryFailed).Methods(http.MethodPost)
	r.HandleFunc("/admin/print-jobs/{id:[0-9]+}/retry", h.RetryOne).Methods(http.MethodPost)
	r.HandleFunc("/admin/orders/{id:[0-9]+}/print-jobs", h.OrderJobs).Methods(http.MethodGet)
}

// agentAuth requires the shared agent token on every print agent call.
// The comparison is constant time.
func (h *Handler) agentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Print-Agent-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.agentToken)) != 1 {
			h.writeError(w, domain.Unauthorized("invalid print agent token"), logger.GenerateRequestID())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PullJobs handles GET /print-agent/jobs?station=kitchen&limit=10.
// Omitting station pulls pending jobs for every station.
func (h *Handler) PullJobs(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	station := models.Station(r.URL.Query().Get("station"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, domain.Validation("limit", "limit must be an integer"), requestID)
			return
		}
		limit = parsed
	}

	jobs, err := h.dispatcher.PullJobs(r.Context(), station, limit)
	if err != nil {
		h.logError(requestID, "print_jobs_pull_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// AcknowledgeJob handles POST /print-agent/jobs/{id}/ack.
func (h *Handler) AcknowledgeJob(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	jobID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var ack models.PrintJobAck
	if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
		h.writeError(w, domain.Validation("", "invalid JSON body"), requestID)
		return
	}

	if err := h.dispatcher.AcknowledgeJob(r.Context(), jobID, ack); err != nil {
		h.logError(requestID, "print_job_ack_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.logger.Info("print_job_acknowledged", "Print job acknowledged", requestID, map[string]interface{}{
		"job_id": jobID,
		"status": string(ack.Status),
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
}

// RetryFailed handles POST /admin/print-jobs/retry.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	count, err := h.dispatcher.RetryFailedJobs(r.Context(), requestID)
	if err != nil {
		h.logError(requestID, "print_jobs_retry_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": count})
}

// RetryOne handles POST /admin/print-jobs/{id}/retry.
func (h *Handler) RetryOne(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	jobID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if err := h.dispatcher.RetryJob(r.Context(), jobID); err != nil {
		h.logError(requestID, "print_job_retry_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": true})
}

// OrderJobs handles GET /admin/orders/{id}/print-jobs.
func (h *Handler) OrderJobs(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	orderID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	jobs, err := h.dispatcher.JobsForOrder(r.Context(), orderID)
	if err != nil {
		h.logError(requestID, "print_jobs_query_failed", err)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *Handler) logError(requestID, action string, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		h.logger.Error(action, "Print job operation failed", requestID, err, nil)
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
