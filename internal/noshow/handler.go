package noshow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Recorder records a missed appointment.
type Recorder interface {
	RecordNoShow(ctx context.Context, bookingID, contactID uuid.UUID) (*Record, error)
}

// BookingReader loads the booking being marked.
type BookingReader interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
}

// Handler exposes POST /admin/no-shows/{bookingID}.
type Handler struct {
	recorder Recorder
	bookings BookingReader
	logger   *logging.Logger
}

// NewHandler creates a no-show HTTP handler.
func NewHandler(recorder Recorder, bookings BookingReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{recorder: recorder, bookings: bookings, logger: logger}
}

// Routes returns the routes mounted under /admin/no-shows.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{bookingID}", h.Record)
	return r
}

// Record marks a confirmed booking as a no-show.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking id"})
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), bookingID)
	if err == nil {
		var rec *Record
		rec, err = h.recorder.RecordNoShow(r.Context(), bookingID, b.ContactID)
		if err == nil {
			h.logger.Info("no-show recorded",
				"booking_id", bookingID,
				"contact_id", b.ContactID,
				"strike_count", rec.StrikeCount,
				"suspended", rec.SuspendedUntil != nil,
			)
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	if errors.Is(err, booking.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "confirmed booking not found"})
		return
	}
	h.logger.Error("failed to record no-show", "booking_id", bookingID, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
