package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Handler provides HTTP endpoints for settings management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new settings HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns the routes mounted under /admin/settings.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	return r
}

// Get returns every stored setting.
// GET /admin/settings
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	values, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(values); err != nil {
		h.logger.Error("failed to encode settings", "error", err)
	}
}

// Update merges the body into stored settings. Structured values are
// validated before anything is written; an empty string removes a key.
// PUT /admin/settings
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if v := req[KeyBusinessHours]; v != "" {
		if _, err := booking.ParseWeeklySchedule([]byte(v)); err != nil {
			http.Error(w, `{"error": "invalid business_hours"}`, http.StatusBadRequest)
			return
		}
	}
	if err := h.store.SetMany(r.Context(), req); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
		return
	}
	h.logger.Info("settings updated", "keys", len(req))
	h.Get(w, r)
}
