package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
)

// Handler exposes the public menu read path.
type Handler struct {
	reader *Reader
	logger *logger.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(reader *Reader, log *logger.Logger) *Handler {
	return &Handler{reader: reader, logger: log}
}

// RegisterRoutes mounts the catalog endpoints on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/menu", h.GetMenu).Methods(http.MethodGet)
	r.HandleFunc("/admin/menu/cache", h.InvalidateMenu).Methods(http.MethodDelete)
}

// GetMenu handles GET /menu. The response is served from the read cache
// when fresh; order validation never goes through this path.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	menu, err := h.reader.Menu(r.Context())
	if err != nil {
		h.logger.Error("menu_load_failed", "Failed to load menu", requestID, err, nil)
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": menu})
}

// InvalidateMenu handles DELETE /admin/menu/cache, dropping the cached
// menu after catalog edits.
func (h *Handler) InvalidateMenu(w http.ResponseWriter, r *http.Request) {
	h.reader.InvalidateMenu()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"invalidated": true})
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
