package reminders

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

type bookingLister interface {
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Message, error)
}

// Handler exposes scheduled messages of a booking to admins.
type Handler struct {
	store  bookingLister
	logger *logging.Logger
}

// NewHandler creates a scheduled message HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{logger: logger}
	if store != nil {
		h.store = store
	}
	return h
}

// Routes is mounted under /admin/scheduled-messages.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{bookingID}", h.listMessages)
	return r
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	msgs, err := h.store.ListByBooking(r.Context(), bookingID)
	if err != nil {
		h.logger.Error("reminders handler: list messages", "error", err, "booking_id", bookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}
