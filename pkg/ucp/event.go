package ucp

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single flat analytics record describing one observed UCP
// operation. Fields are a superset covering all UCP capabilities; unset
// optionals stay nil and are dropped by Row() before delivery.
type Event struct {
	// Identity
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	// Context
	AppName            string `json:"app_name,omitempty"`
	MerchantHost       string `json:"merchant_host,omitempty"`
	PlatformProfileURL string `json:"platform_profile_url,omitempty"`
	Transport          string `json:"transport,omitempty"`

	// Transport metadata
	HTTPMethod     string `json:"http_method,omitempty"`
	HTTPPath       string `json:"http_path,omitempty"`
	HTTPStatusCode *int   `json:"http_status_code,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	RequestID      string `json:"request_id,omitempty"`

	// Correlation
	CheckoutSessionID *string `json:"checkout_session_id,omitempty"`
	CheckoutStatus    *string `json:"checkout_status,omitempty"`
	OrderID           *string `json:"order_id,omitempty"`

	// Financial, integer minor units per the UCP total taxonomy
	Currency            *string `json:"currency,omitempty"`
	ItemsDiscountAmount *int64  `json:"items_discount_amount,omitempty"`
	SubtotalAmount      *int64  `json:"subtotal_amount,omitempty"`
	DiscountAmount      *int64  `json:"discount_amount,omitempty"`
	FulfillmentAmount   *int64  `json:"fulfillment_amount,omitempty"`
	TaxAmount           *int64  `json:"tax_amount,omitempty"`
	FeeAmount           *int64  `json:"fee_amount,omitempty"`
	TotalAmount         *int64  `json:"total_amount,omitempty"`

	// Line items
	LineItemsJSON *string `json:"line_items_json,omitempty"`
	LineItemCount *int    `json:"line_item_count,omitempty"`

	// Payment (never credentials or tokens)
	PaymentHandlerID      *string `json:"payment_handler_id,omitempty"`
	PaymentInstrumentType *string `json:"payment_instrument_type,omitempty"`
	PaymentBrand          *string `json:"payment_brand,omitempty"`

	// Capabilities and extensions
	UCPVersion       *string `json:"ucp_version,omitempty"`
	CapabilitiesJSON *string `json:"capabilities_json,omitempty"`
	ExtensionsJSON   *string `json:"extensions_json,omitempty"`

	// Identity linking
	IdentityProvider *string `json:"identity_provider,omitempty"`
	IdentityScope    *string `json:"identity_scope,omitempty"`

	// Fulfillment
	FulfillmentType               *string `json:"fulfillment_type,omitempty"`
	FulfillmentDestinationCountry *string `json:"fulfillment_destination_country,omitempty"`

	// Discount extension
	DiscountCodesJSON   *string `json:"discount_codes_json,omitempty"`
	DiscountAppliedJSON *string `json:"discount_applied_json,omitempty"`

	// Checkout metadata
	ExpiresAt   *string `json:"expires_at,omitempty"`
	ContinueURL *string `json:"continue_url,omitempty"`

	// Order
	PermalinkURL *string `json:"permalink_url,omitempty"`

	// Messages and errors
	ErrorCode     *string `json:"error_code,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	ErrorSeverity *string `json:"error_severity,omitempty"`
	MessagesJSON  *string `json:"messages_json,omitempty"`

	// Performance
	LatencyMs *float64 `json:"latency_ms,omitempty"`

	// Caller-supplied static metadata
	CustomMetadataJSON *string `json:"custom_metadata_json,omitempty"`
}

// NewEvent returns an event with identity fields populated and capture
// time set to now (UTC).
func NewEvent(eventType EventType) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Transport: TransportREST,
	}
}

// Row serializes the event to a destination row, dropping every unset
// field rather than emitting null placeholders.
func (e *Event) Row() map[string]interface{} {
	row := map[string]interface{}{
		"event_id":   e.EventID,
		"event_type": string(e.EventType),
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
	}

	putString(row, "app_name", e.AppName)
	putString(row, "merchant_host", e.MerchantHost)
	putString(row, "platform_profile_url", e.PlatformProfileURL)
	putString(row, "transport", e.Transport)
	putString(row, "http_method", e.HTTPMethod)
	putString(row, "http_path", e.HTTPPath)
	putString(row, "idempotency_key", e.IdempotencyKey)
	putString(row, "request_id", e.RequestID)

	if e.HTTPStatusCode != nil {
		row["http_status_code"] = *e.HTTPStatusCode
	}
	putStringPtr(row, "checkout_session_id", e.CheckoutSessionID)
	putStringPtr(row, "checkout_status", e.CheckoutStatus)
	putStringPtr(row, "order_id", e.OrderID)
	putStringPtr(row, "currency", e.Currency)
	putInt64Ptr(row, "items_discount_amount", e.ItemsDiscountAmount)
	putInt64Ptr(row, "subtotal_amount", e.SubtotalAmount)
	putInt64Ptr(row, "discount_amount", e.DiscountAmount)
	putInt64Ptr(row, "fulfillment_amount", e.FulfillmentAmount)
	putInt64Ptr(row, "tax_amount", e.TaxAmount)
	putInt64Ptr(row, "fee_amount", e.FeeAmount)
	putInt64Ptr(row, "total_amount", e.TotalAmount)
	putStringPtr(row, "line_items_json", e.LineItemsJSON)
	if e.LineItemCount != nil {
		row["line_item_count"] = *e.LineItemCount
	}
	putStringPtr(row, "payment_handler_id", e.PaymentHandlerID)
	putStringPtr(row, "payment_instrument_type", e.PaymentInstrumentType)
	putStringPtr(row, "payment_brand", e.PaymentBrand)
	putStringPtr(row, "ucp_version", e.UCPVersion)
	putStringPtr(row, "capabilities_json", e.CapabilitiesJSON)
	putStringPtr(row, "extensions_json", e.ExtensionsJSON)
	putStringPtr(row, "identity_provider", e.IdentityProvider)
	putStringPtr(row, "identity_scope", e.IdentityScope)
	putStringPtr(row, "fulfillment_type", e.FulfillmentType)
	putStringPtr(row, "fulfillment_destination_country", e.FulfillmentDestinationCountry)
	putStringPtr(row, "discount_codes_json", e.DiscountCodesJSON)
	putStringPtr(row, "discount_applied_json", e.DiscountAppliedJSON)
	putStringPtr(row, "expires_at", e.ExpiresAt)
	putStringPtr(row, "continue_url", e.ContinueURL)
	putStringPtr(row, "permalink_url", e.PermalinkURL)
	putStringPtr(row, "error_code", e.ErrorCode)
	putStringPtr(row, "error_message", e.ErrorMessage)
	putStringPtr(row, "error_severity", e.ErrorSeverity)
	putStringPtr(row, "messages_json", e.MessagesJSON)
	if e.LatencyMs != nil {
		row["latency_ms"] = *e.LatencyMs
	}
	putStringPtr(row, "custom_metadata_json", e.CustomMetadataJSON)

	return row
}

func putString(row map[string]interface{}, key, val string) {
	if val != "" {
		row[key] = val
	}
}

func putStringPtr(row map[string]interface{}, key string, val *string) {
	if val != nil {
		row[key] = *val
	}
}

func putInt64Ptr(row map[string]interface{}, key string, val *int64) {
	if val != nil {
		row[key] = *val
	}
}

// String returns a pointer to s, for populating optional fields.
func String(s string) *string { return &s }

// Int64 returns a pointer to n, for populating optional amount fields.
func Int64(n int64) *int64 { return &n }

// Int returns a pointer to n.
func Int(n int) *int { return &n }

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }
