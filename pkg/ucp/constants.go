package ucp

// EventType labels an observed UCP commerce operation. The set is closed:
// classification always resolves to exactly one of these values.
type EventType string

// Checkout lifecycle (REST operations on /checkout-sessions).
const (
	CheckoutSessionCreated   EventType = "checkout_session_created"
	CheckoutSessionGet       EventType = "checkout_session_get"
	CheckoutSessionUpdated   EventType = "checkout_session_updated"
	CheckoutSessionCompleted EventType = "checkout_session_completed"
	CheckoutSessionCanceled  EventType = "checkout_session_canceled"
	CheckoutEscalation       EventType = "checkout_escalation"
)

// Cart lifecycle (REST operations on /carts).
const (
	CartCreated  EventType = "cart_created"
	CartGet      EventType = "cart_get"
	CartUpdated  EventType = "cart_updated"
	CartCanceled EventType = "cart_canceled"
)

// Order lifecycle (webhook-based in UCP).
const (
	OrderCreated   EventType = "order_created"
	OrderUpdated   EventType = "order_updated"
	OrderShipped   EventType = "order_shipped"
	OrderDelivered EventType = "order_delivered"
	OrderReturned  EventType = "order_returned"
	OrderCanceled  EventType = "order_canceled"
)

// Identity linking (OAuth 2.0).
const (
	IdentityLinkInitiated EventType = "identity_link_initiated"
	IdentityLinkCompleted EventType = "identity_link_completed"
	IdentityLinkRevoked   EventType = "identity_link_revoked"
)

// Payment.
const (
	PaymentHandlerNegotiated  EventType = "payment_handler_negotiated"
	PaymentInstrumentSelected EventType = "payment_instrument_selected"
	PaymentCompleted          EventType = "payment_completed"
	PaymentFailed             EventType = "payment_failed"
)

// Discovery and capability negotiation.
const (
	ProfileDiscovered    EventType = "profile_discovered"
	CapabilityNegotiated EventType = "capability_negotiated"
)

// Generic HTTP-level fallbacks.
const (
	Request EventType = "request"
	Error   EventType = "error"
)

// CheckoutStatus values from the UCP checkout state machine
// (incomplete → requires_escalation → ready_for_complete →
// complete_in_progress → completed | canceled).
const (
	StatusIncomplete         = "incomplete"
	StatusRequiresEscalation = "requires_escalation"
	StatusReadyForComplete   = "ready_for_complete"
	StatusCompleteInProgress = "complete_in_progress"
	StatusCompleted          = "completed"
	StatusCanceled           = "canceled"
)

// IsCheckoutStatus reports whether s is one of the six checkout session
// states. Order statuses like "shipped" or "delivered" must never be
// written into the checkout_status column.
func IsCheckoutStatus(s string) bool {
	switch s {
	case StatusIncomplete, StatusRequiresEscalation, StatusReadyForComplete,
		StatusCompleteInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Transport tags for the three supported bindings.
const (
	TransportREST = "rest"
	TransportMCP  = "mcp"
	TransportA2A  = "a2a"
)

// Total types from the UCP totals taxonomy. Unrecognized types are
// ignored by the extractor for forward compatibility.
const (
	TotalItemsDiscount = "items_discount"
	TotalSubtotal      = "subtotal"
	TotalDiscount      = "discount"
	TotalFulfillment   = "fulfillment"
	TotalTax           = "tax"
	TotalFee           = "fee"
	TotalTotal         = "total"
)
