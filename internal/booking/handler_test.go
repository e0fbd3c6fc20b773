package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(f.engine, f.engine.logger)
	r := chi.NewRouter()
	r.Mount("/admin/bookings", h.Routes())
	r.Get("/admin/availability", h.Availability)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndCancel(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/admin/bookings", f.input(at(3, 10, 0), at(3, 11, 0)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusConfirmed, created.Status)

	rec = doJSON(t, router, http.MethodGet, "/admin/bookings/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/admin/bookings/"+created.ID.String()+"/cancel", cancelRequest{Reason: "moved away"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res CancellationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Late)

	rec = doJSON(t, router, http.MethodPost, "/admin/bookings/"+created.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerMapsPolicyViolationTo422(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/admin/bookings", f.input(at(3, 11, 30), at(3, 13, 30)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, RuleOutsideHours, body["rule"])
	assert.Contains(t, body["error"], "09:00-12:00")
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/admin/bookings", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/admin/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/admin/bookings/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/admin/availability?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerBatchReturnsResultOnRejection(t *testing.T) {
	f := newFixture()
	f.seedBooking("Existing peel", at(10, 10, 0), at(10, 11, 0), nil)
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/admin/bookings/batch", f.batchRequest(weeklySessions(3)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var res BatchBookingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "session 2")
}

func TestHandlerBatchHidesInfrastructureErrors(t *testing.T) {
	f := newFixture()
	f.store.insertErr = errors.New("pq: connection to 10.0.3.7:5432 refused")
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/admin/bookings/batch", f.batchRequest(weeklySessions(2)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.3.7")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestHandlerAvailabilityAndStats(t *testing.T) {
	f := newFixture()
	f.calendar.busy = []TimeSlot{{Start: at(3, 10, 0), End: at(3, 11, 0)}}
	router := newTestRouter(f)

	q := "?start=" + at(3, 9, 0).Format(time.RFC3339) + "&end=" + at(3, 12, 0).Format(time.RFC3339)
	rec := doJSON(t, router, http.MethodGet, "/admin/availability"+q, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Slots []TimeSlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Slots, 3)

	f.seedBooking("Peel", at(3, 10, 0), at(3, 11, 0), nil)
	rec = doJSON(t, router, http.MethodGet, "/admin/bookings/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
}
