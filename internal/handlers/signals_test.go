package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucptrace/ucptrace/pkg/tracker"
	"github.com/ucptrace/ucptrace/pkg/writer"
)

type captureDest struct {
	mu   sync.Mutex
	rows []map[string]interface{}
}

func (d *captureDest) EnsureSchema(ctx context.Context) error { return nil }

func (d *captureDest) Write(ctx context.Context, rows []map[string]interface{}) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = append(d.rows, rows...)
	return nil, nil
}

func (d *captureDest) Close() error { return nil }

func newTestHandler(t *testing.T) (*SignalHandler, *tracker.Tracker, *captureDest) {
	t.Helper()
	dest := &captureDest{}
	w := writer.New(dest, writer.Config{BatchSize: 1000, BufferCapacity: 1000}, nil)
	trk := tracker.New(w, tracker.Config{AppName: "collector"}, nil)
	return NewSignalHandler(trk, nil, 1<<20, nil), trk, dest
}

func TestHandleSignalsBatch(t *testing.T) {
	h, trk, dest := newTestHandler(t)

	body := `{"signals":[
		{"method":"POST","path":"/checkout-sessions","status_code":201,
		 "response_body":{"id":"cs_1","status":"incomplete"}},
		{"tool_name":"get_cart","transport":"mcp","status_code":200}
	]}`
	req := httptest.NewRequest("POST", "/api/v1/signals", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleSignals(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":2}`, rec.Body.String())

	require.NoError(t, trk.Close(context.Background()))
	require.Len(t, dest.rows, 2)
	assert.Equal(t, "checkout_session_created", dest.rows[0]["event_type"])
	assert.Equal(t, "cart_get", dest.rows[1]["event_type"])
}

func TestHandleSignalsSingleObject(t *testing.T) {
	h, trk, dest := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/signals",
		strings.NewReader(`{"method":"GET","path":"/.well-known/ucp","status_code":200}`))
	rec := httptest.NewRecorder()

	h.HandleSignals(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, trk.Close(context.Background()))
	require.Len(t, dest.rows, 1)
	assert.Equal(t, "profile_discovered", dest.rows[0]["event_type"])
}

func TestHandleSignalsEmptyBatch(t *testing.T) {
	h, trk, dest := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/signals",
		strings.NewReader(`{"signals":[]}`))
	rec := httptest.NewRecorder()

	h.HandleSignals(rec, req)

	// An explicitly empty batch ingests nothing.
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":0}`, rec.Body.String())

	require.NoError(t, trk.Close(context.Background()))
	assert.Empty(t, dest.rows)
}

func TestHandleSignalsRejectsBadInput(t *testing.T) {
	h, _, _ := newTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleSignals(rec, httptest.NewRequest("GET", "/api/v1/signals", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleSignals(rec, httptest.NewRequest("POST", "/api/v1/signals", strings.NewReader("{nope")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		small := NewSignalHandler(nil, nil, 10, nil)
		rec := httptest.NewRecorder()
		small.HandleSignals(rec, httptest.NewRequest("POST", "/api/v1/signals",
			strings.NewReader(`{"method":"GET","path":"/a-rather-long-path"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestHealthAndReady(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}
