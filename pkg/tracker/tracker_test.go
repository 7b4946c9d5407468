package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucptrace/ucptrace/pkg/ucp"
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

func (d *captureDest) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

func newTestTracker(cfg Config) (*Tracker, *captureDest) {
	dest := &captureDest{}
	w := writer.New(dest, writer.Config{BatchSize: 1000, BufferCapacity: 1000}, nil)
	return New(w, cfg, nil), dest
}

func TestIngestHTTPSignal(t *testing.T) {
	trk, _ := newTestTracker(Config{AppName: "shop-backend"})

	ev := trk.Ingest(context.Background(), Signal{
		Method:     "POST",
		URL:        "https://merchant.example/checkout-sessions",
		StatusCode: 201,
		LatencyMs:  42.5,
		Headers: map[string]string{
			"Idempotency-Key": "idem-1",
			"request-id":      "req-1",
			"UCP-Agent":       "https://platform.example/profile",
		},
		ResponseBody: map[string]interface{}{
			"id":     "cs_1",
			"status": "incomplete",
		},
	})

	require.NotNil(t, ev)
	assert.Equal(t, ucp.CheckoutSessionCreated, ev.EventType)
	assert.Equal(t, "shop-backend", ev.AppName)
	assert.Equal(t, "merchant.example", ev.MerchantHost)
	assert.Equal(t, "POST", ev.HTTPMethod)
	assert.Equal(t, "/checkout-sessions", ev.HTTPPath)
	assert.Equal(t, ucp.TransportREST, ev.Transport)
	assert.Equal(t, 201, *ev.HTTPStatusCode)
	assert.Equal(t, 42.5, *ev.LatencyMs)
	assert.Equal(t, "idem-1", ev.IdempotencyKey)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, "https://platform.example/profile", ev.PlatformProfileURL)
	assert.Equal(t, "cs_1", *ev.CheckoutSessionID)
}

func TestIngestWebhookPrefersRequestBody(t *testing.T) {
	trk, _ := newTestTracker(Config{})

	ev := trk.Ingest(context.Background(), Signal{
		Method:     "POST",
		Path:       "/webhooks/partners/p1/events/order",
		StatusCode: 200,
		RequestBody: map[string]interface{}{
			"id":          "ord_1",
			"checkout_id": "cs_1",
			"status":      "shipped",
		},
		ResponseBody: map[string]interface{}{"ok": true},
	})

	assert.Equal(t, ucp.OrderShipped, ev.EventType)
	require.NotNil(t, ev.OrderID)
	assert.Equal(t, "ord_1", *ev.OrderID)
	assert.Equal(t, "cs_1", *ev.CheckoutSessionID)
}

func TestIngestToolSignal(t *testing.T) {
	trk, _ := newTestTracker(Config{AppName: "agent"})

	ev := trk.Ingest(context.Background(), Signal{
		ToolName:     "complete_checkout",
		MerchantHost: "merchant.example",
		ResponseBody: map[string]interface{}{
			"id":     "cs_1",
			"status": "completed",
		},
	})

	assert.Equal(t, ucp.CheckoutSessionCompleted, ev.EventType)
	assert.Equal(t, ucp.TransportMCP, ev.Transport)
	assert.Equal(t, "POST", ev.HTTPMethod)
	assert.Equal(t, "/checkout-sessions/{id}/complete", ev.HTTPPath)
	assert.Equal(t, "merchant.example", ev.MerchantHost)
	assert.Equal(t, "completed", *ev.CheckoutStatus)
}

func TestIngestNeverFailsOnGarbage(t *testing.T) {
	trk, _ := newTestTracker(Config{AppName: "app"})

	ev := trk.Ingest(context.Background(), Signal{})
	require.NotNil(t, ev)
	assert.Equal(t, ucp.Request, ev.EventType)
	assert.Equal(t, "app", ev.AppName)
	assert.NotEmpty(t, ev.EventID)
}

func TestIngestRedactsBeforeExtraction(t *testing.T) {
	trk, _ := newTestTracker(Config{RedactPII: true})

	ev := trk.Ingest(context.Background(), Signal{
		Method:     "POST",
		Path:       "/checkout-sessions",
		StatusCode: 201,
		ResponseBody: map[string]interface{}{
			"id": "cs_1",
			"line_items": []interface{}{
				map[string]interface{}{"id": "li_1", "email": "buyer@example.com"},
			},
		},
	})

	require.NotNil(t, ev.LineItemsJSON)
	assert.NotContains(t, *ev.LineItemsJSON, "buyer@example.com")
	assert.Contains(t, *ev.LineItemsJSON, "[REDACTED]")
}

func TestIngestCustomMetadata(t *testing.T) {
	trk, _ := newTestTracker(Config{
		CustomMetadata: map[string]string{"env": "staging"},
	})

	ev := trk.Ingest(context.Background(), Signal{
		Method:       "GET",
		Path:         "/.well-known/ucp",
		StatusCode:   200,
		ResponseBody: map[string]interface{}{"ucp": map[string]interface{}{"version": "2026-01-01"}},
	})

	require.NotNil(t, ev.CustomMetadataJSON)
	assert.JSONEq(t, `{"env":"staging"}`, *ev.CustomMetadataJSON)
}

func TestCloseDrainsAsyncIngestion(t *testing.T) {
	trk, dest := newTestTracker(Config{})

	for i := 0; i < 25; i++ {
		trk.IngestAsync(Signal{
			Method:     "GET",
			Path:       "/.well-known/ucp",
			StatusCode: 200,
		})
	}
	require.NoError(t, trk.Close(context.Background()))
	assert.Equal(t, 25, dest.count())

	// Close is idempotent.
	require.NoError(t, trk.Close(context.Background()))
	assert.Equal(t, 25, dest.count())
}

func TestSignalAppNameOverride(t *testing.T) {
	trk, _ := newTestTracker(Config{AppName: "default-app"})

	ev := trk.Ingest(context.Background(), Signal{
		Method:  "GET",
		Path:    "/x",
		AppName: "override",
	})
	assert.Equal(t, "override", ev.AppName)
}
