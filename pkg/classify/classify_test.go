package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ucptrace/ucptrace/pkg/ucp"
)

func TestHTTP(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		status       int
		requestBody  map[string]interface{}
		responseBody map[string]interface{}
		want         ucp.EventType
	}{
		{
			name:   "profile discovery",
			method: "GET",
			path:   "/.well-known/ucp",
			status: 200,
			want:   ucp.ProfileDiscovered,
		},
		{
			name:   "checkout created",
			method: "POST",
			path:   "/checkout-sessions",
			status: 201,
			want:   ucp.CheckoutSessionCreated,
		},
		{
			name:   "checkout created with trailing slash",
			method: "POST",
			path:   "/checkout-sessions/",
			status: 201,
			want:   ucp.CheckoutSessionCreated,
		},
		{
			name:   "path precedence over status code",
			method: "POST",
			path:   "/checkout-sessions",
			status: 500,
			want:   ucp.CheckoutSessionCreated,
		},
		{
			name:   "checkout completed",
			method: "POST",
			path:   "/checkout-sessions/cs_123/complete",
			status: 200,
			want:   ucp.CheckoutSessionCompleted,
		},
		{
			name:   "checkout canceled",
			method: "POST",
			path:   "/checkout-sessions/cs_123/cancel",
			status: 200,
			want:   ucp.CheckoutSessionCanceled,
		},
		{
			name:   "checkout updated",
			method: "PUT",
			path:   "/checkout-sessions/cs_123",
			status: 200,
			want:   ucp.CheckoutSessionUpdated,
		},
		{
			name:         "checkout escalation from response status",
			method:       "PUT",
			path:         "/checkout-sessions/cs_123",
			status:       200,
			responseBody: map[string]interface{}{"status": "requires_escalation"},
			want:         ucp.CheckoutEscalation,
		},
		{
			name:   "checkout get",
			method: "GET",
			path:   "/checkout-sessions/cs_123",
			status: 200,
			want:   ucp.CheckoutSessionGet,
		},
		{
			name:   "cart created",
			method: "POST",
			path:   "/carts",
			status: 201,
			want:   ucp.CartCreated,
		},
		{
			name:   "cart canceled",
			method: "POST",
			path:   "/carts/cart_9/cancel",
			status: 200,
			want:   ucp.CartCanceled,
		},
		{
			name:   "cart updated",
			method: "PUT",
			path:   "/carts/cart_9",
			status: 200,
			want:   ucp.CartUpdated,
		},
		{
			name:   "cart get",
			method: "GET",
			path:   "/carts/cart_9",
			status: 200,
			want:   ucp.CartGet,
		},
		{
			name:   "order created",
			method: "POST",
			path:   "/orders",
			status: 201,
			want:   ucp.OrderCreated,
		},
		{
			name:         "order delivered from body status",
			method:       "GET",
			path:         "/orders/ord_1",
			status:       200,
			responseBody: map[string]interface{}{"status": "delivered"},
			want:         ucp.OrderDelivered,
		},
		{
			name:         "order returned from body status",
			method:       "GET",
			path:         "/orders/ord_1",
			status:       200,
			responseBody: map[string]interface{}{"status": "returned"},
			want:         ucp.OrderReturned,
		},
		{
			name:         "order canceled british spelling",
			method:       "GET",
			path:         "/orders/ord_1",
			status:       200,
			responseBody: map[string]interface{}{"status": "cancelled"},
			want:         ucp.OrderCanceled,
		},
		{
			name:   "order get without status",
			method: "GET",
			path:   "/orders/ord_1",
			status: 200,
			want:   ucp.OrderUpdated,
		},
		{
			name:   "reorder path is not an order",
			method: "POST",
			path:   "/reorder",
			status: 200,
			want:   ucp.Request,
		},
		{
			name:        "partner webhook reads request body",
			method:      "POST",
			path:        "/webhooks/partners/p1/events/order",
			status:      200,
			requestBody: map[string]interface{}{"status": "shipped"},
			responseBody: map[string]interface{}{
				"ok": true,
			},
			want: ucp.OrderShipped,
		},
		{
			name:        "partner webhook delivered",
			method:      "POST",
			path:        "/webhooks/partners/p1/events/order",
			status:      200,
			requestBody: map[string]interface{}{"status": "delivered"},
			want:        ucp.OrderDelivered,
		},
		{
			name:   "webhook failure is an error",
			method: "POST",
			path:   "/webhooks/partners/p1/events/order",
			status: 500,
			want:   ucp.Error,
		},
		{
			name:   "legacy delivered webhook",
			method: "POST",
			path:   "/webhooks/order_delivered",
			status: 200,
			want:   ucp.OrderDelivered,
		},
		{
			name:   "legacy returned webhook with dash",
			method: "POST",
			path:   "/webhooks/order-returned",
			status: 200,
			want:   ucp.OrderReturned,
		},
		{
			name:   "generic webhook",
			method: "POST",
			path:   "/webhooks/order",
			status: 200,
			want:   ucp.OrderUpdated,
		},
		{
			name:   "identity initiated",
			method: "POST",
			path:   "/identity/link",
			status: 200,
			want:   ucp.IdentityLinkInitiated,
		},
		{
			name:   "identity completed via callback",
			method: "GET",
			path:   "/oauth/callback",
			status: 200,
			want:   ucp.IdentityLinkCompleted,
		},
		{
			name:   "identity revoked",
			method: "POST",
			path:   "/identity/revoke",
			status: 200,
			want:   ucp.IdentityLinkRevoked,
		},
		{
			name:   "identity revoked via delete",
			method: "DELETE",
			path:   "/identity/link",
			status: 204,
			want:   ucp.IdentityLinkRevoked,
		},
		{
			name:   "simulate shipping",
			method: "POST",
			path:   "/testing/simulate-shipping/ord_1",
			status: 200,
			want:   ucp.OrderShipped,
		},
		{
			name:   "unmatched error status",
			method: "GET",
			path:   "/unknown",
			status: 404,
			want:   ucp.Error,
		},
		{
			name:   "unmatched success",
			method: "GET",
			path:   "/unknown",
			status: 200,
			want:   ucp.Request,
		},
		{
			name:   "lowercase method",
			method: "post",
			path:   "/checkout-sessions",
			status: 201,
			want:   ucp.CheckoutSessionCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTTP(tt.method, tt.path, tt.status, tt.requestBody, tt.responseBody)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTool(t *testing.T) {
	tests := []struct {
		name         string
		tool         string
		status       int
		responseBody map[string]interface{}
		want         ucp.EventType
	}{
		{"create checkout", "create_checkout", 200, nil, ucp.CheckoutSessionCreated},
		{"update checkout", "update_checkout", 200, nil, ucp.CheckoutSessionUpdated},
		{"complete checkout", "complete_checkout", 200, nil, ucp.CheckoutSessionCompleted},
		{"cancel checkout", "cancel_checkout", 200, nil, ucp.CheckoutSessionCanceled},
		{"get checkout", "get_checkout", 200, nil, ucp.CheckoutSessionGet},
		{"create cart", "create_cart", 200, nil, ucp.CartCreated},
		{"discover", "discover", 200, nil, ucp.ProfileDiscovered},
		{"negotiate keyword wins", "negotiate_capability", 200, nil, ucp.CapabilityNegotiated},
		{"capability keyword", "capability_exchange", 200, nil, ucp.CapabilityNegotiated},
		{"a2a checkout create", "a2a.ucp.checkout.create", 200, nil, ucp.CheckoutSessionCreated},
		{"a2a order get", "a2a.ucp.order.get", 200, nil, ucp.OrderUpdated},
		{"a2a identity revoke", "a2a.ucp.identity.revoke", 200, nil, ucp.IdentityLinkRevoked},
		{"add_to heuristic", "add_to_checkout_items", 200, nil, ucp.CheckoutSessionUpdated},
		{"remove_from cart heuristic", "remove_from_cart_lines", 200, nil, ucp.CartUpdated},
		{"unknown tool", "do_something_else", 200, nil, ucp.Request},
		{
			"escalation via tool response",
			"update_checkout", 200,
			map[string]interface{}{"status": "requires_escalation"},
			ucp.CheckoutEscalation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tool(tt.tool, tt.status, tt.responseBody)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolHTTPParity(t *testing.T) {
	// Every routed tool must classify identically to its HTTP equivalent.
	for name := range toolRoutes {
		method, path, ok := ToolRoute(name)
		assert.True(t, ok)

		viaTool := Tool(name, 200, nil)
		viaHTTP := HTTP(method, path, 200, nil, nil)
		if viaTool == ucp.CapabilityNegotiated {
			// Keyword rule fires before route lookup.
			continue
		}
		assert.Equal(t, viaHTTP, viaTool, "tool %s diverges from HTTP route %s %s", name, method, path)
	}
}
