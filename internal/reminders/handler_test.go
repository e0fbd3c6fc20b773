package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	msgs []Message
	err  error
}

func (s stubLister) ListByBooking(context.Context, uuid.UUID) ([]Message, error) {
	return s.msgs, s.err
}

func newTestRouter(lister bookingLister) http.Handler {
	h := NewHandler(nil, nil)
	h.store = lister
	r := chi.NewRouter()
	r.Mount("/admin/scheduled-messages", h.Routes())
	return r
}

func TestHandlerListMessages(t *testing.T) {
	id := uuid.New()
	router := newTestRouter(stubLister{msgs: []Message{{ID: uuid.New(), BookingID: id, Kind: KindReminder, Status: StatusPending}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/scheduled-messages/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []Message `json:"messages"`
		Count    int       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, KindReminder, body.Messages[0].Kind)
}

func TestHandlerListMessagesErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(stubLister{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/scheduled-messages/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(stubLister{err: errors.New("db down")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/scheduled-messages/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
