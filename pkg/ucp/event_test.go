package ucp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventDefaults(t *testing.T) {
	ev := NewEvent(CheckoutSessionCreated)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, CheckoutSessionCreated, ev.EventType)
	assert.Equal(t, TransportREST, ev.Transport)
	assert.False(t, ev.Timestamp.IsZero())

	other := NewEvent(CartCreated)
	assert.NotEqual(t, ev.EventID, other.EventID)
}

func TestRowDropsUnsetFields(t *testing.T) {
	ev := NewEvent(Request)
	row := ev.Row()

	require.Contains(t, row, "event_id")
	require.Contains(t, row, "event_type")
	require.Contains(t, row, "timestamp")
	require.Contains(t, row, "transport")

	assert.NotContains(t, row, "checkout_session_id")
	assert.NotContains(t, row, "total_amount")
	assert.NotContains(t, row, "http_status_code")
	assert.NotContains(t, row, "error_code")
}

func TestRowIncludesSetFields(t *testing.T) {
	ev := NewEvent(CheckoutSessionCompleted)
	ev.MerchantHost = "shop.example"
	ev.HTTPStatusCode = Int(200)
	ev.CheckoutSessionID = String("cs_1")
	ev.TotalAmount = Int64(8796)
	ev.LatencyMs = Float64(12.5)

	row := ev.Row()
	assert.Equal(t, "shop.example", row["merchant_host"])
	assert.Equal(t, 200, row["http_status_code"])
	assert.Equal(t, "cs_1", row["checkout_session_id"])
	assert.Equal(t, int64(8796), row["total_amount"])
	assert.Equal(t, 12.5, row["latency_ms"])
	assert.Equal(t, "checkout_session_completed", row["event_type"])
}

func TestIsCheckoutStatus(t *testing.T) {
	for _, s := range []string{
		StatusIncomplete, StatusRequiresEscalation, StatusReadyForComplete,
		StatusCompleteInProgress, StatusCompleted, StatusCanceled,
	} {
		assert.True(t, IsCheckoutStatus(s), s)
	}
	for _, s := range []string{"shipped", "delivered", "returned", "", "unknown"} {
		assert.False(t, IsCheckoutStatus(s), s)
	}
}
