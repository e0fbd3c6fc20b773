package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-crm/pkg/logging"
)

// Workflow is the booking surface exposed over HTTP. *Engine implements it.
type Workflow interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, error)
	CreateBatchBooking(ctx context.Context, req BatchBookingRequest) (*BatchBookingResult, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) (*CancellationResult, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetAvailability(ctx context.Context, start, end time.Time) ([]TimeSlot, error)
	GetBookingStats(ctx context.Context, start, end *time.Time) (*Stats, error)
}

// Handler provides the admin booking endpoints.
type Handler struct {
	workflow Workflow
	logger   *logging.Logger
}

// NewHandler creates a booking HTTP handler.
func NewHandler(workflow Workflow, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{workflow: workflow, logger: logger}
}

// Routes returns the routes mounted under /admin/bookings.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/batch", h.CreateBatch)
	r.Get("/stats", h.Stats)
	r.Get("/{bookingID}", h.Get)
	r.Post("/{bookingID}/cancel", h.Cancel)
	return r
}

// Create handles POST /admin/bookings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateBookingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	b, err := h.workflow.CreateBooking(r.Context(), in)
	if err != nil {
		h.fail(w, "create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// CreateBatch handles POST /admin/bookings/batch
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	res, err := h.workflow.CreateBatchBooking(r.Context(), req)
	if err != nil {
		if res == nil || !IsPolicyViolation(err) {
			h.fail(w, "batch booking", err)
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /admin/bookings/{bookingID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body", "")
			return
		}
	}
	res, err := h.workflow.CancelBooking(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Get handles GET /admin/bookings/{bookingID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}
	b, err := h.workflow.GetBooking(r.Context(), id)
	if err != nil {
		h.fail(w, "get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Availability handles GET /admin/availability?start=&end=
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil || start == nil {
		writeError(w, http.StatusBadRequest, "start must be an RFC3339 timestamp", "")
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil || end == nil {
		writeError(w, http.StatusBadRequest, "end must be an RFC3339 timestamp", "")
		return
	}
	slots, err := h.workflow.GetAvailability(r.Context(), *start, *end)
	if err != nil {
		h.fail(w, "get availability", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// Stats handles GET /admin/bookings/stats?start=&end=
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be an RFC3339 timestamp", "")
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be an RFC3339 timestamp", "")
		return
	}
	stats, err := h.workflow.GetBookingStats(r.Context(), start, end)
	if err != nil {
		h.fail(w, "get booking stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if v, ok := AsPolicyViolation(err); ok {
		writeError(w, status, v.Message, v.Rule)
		return
	}
	if status == http.StatusNotFound {
		writeError(w, status, "booking not found", "")
		return
	}
	h.logger.Error(op+" failed", "error", err)
	writeError(w, status, "internal server error", "")
}

func statusFor(err error) int {
	switch {
	case IsPolicyViolation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func bookingIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id", "")
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeError(w http.ResponseWriter, status int, msg, rule string) {
	body := map[string]string{"error": msg}
	if rule != "" {
		body["rule"] = rule
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
