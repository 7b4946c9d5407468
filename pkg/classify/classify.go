// Package classify derives UCP event types from observed protocol
// operations. Classification is pure pattern matching over method, path,
// status, and (for a few ambiguous paths) a status field in the request
// or response body; it performs no I/O and never fails on malformed input.
package classify

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ucptrace/ucptrace/pkg/ucp"
)

// Path patterns are anchored so that e.g. a literal /orders segment does
// not match /reorder.
var (
	reCheckoutCollection = regexp.MustCompile(`/checkout-sessions/?$`)
	reCheckoutComplete   = regexp.MustCompile(`/checkout-sessions/[^/]+/complete$`)
	reCheckoutCancel     = regexp.MustCompile(`/checkout-sessions/[^/]+/cancel$`)
	reCheckoutItem       = regexp.MustCompile(`/checkout-sessions/[^/]+$`)
	reCartCollection     = regexp.MustCompile(`/carts/?$`)
	reCartCancel         = regexp.MustCompile(`/carts/[^/]+/cancel$`)
	reCartItem           = regexp.MustCompile(`/carts/[^/]+$`)
	reOrders             = regexp.MustCompile(`/orders(?:/[^/]+)?$`)
	reWebhook            = regexp.MustCompile(`/webhooks?/`)
	rePartnerWebhook     = regexp.MustCompile(`/webhooks?/partners/[^/]+/events/order`)
	reWebhookDelivered   = regexp.MustCompile(`/webhooks?/order[_-]delivered`)
	reWebhookReturned    = regexp.MustCompile(`/webhooks?/order[_-]returned`)
	reWebhookCanceled    = regexp.MustCompile(`/webhooks?/order[_-]canceled`)
	reIdentity           = regexp.MustCompile(`/(?:identity|oauth)(?:/|$)`)
)

// HTTP classifies a single observed request/response pair into exactly one
// event type. Rules are evaluated top to bottom; the first match wins.
// Path-shape matches deliberately take precedence over the status code: a
// checkout-creation attempt that returned 500 is still a checkout-creation
// attempt, which is more informative than a generic error bucket.
//
// The request body matters only for webhook-shaped paths, where the order
// payload travels in the request and the response is an acknowledgement.
func HTTP(method, path string, status int, requestBody, responseBody map[string]interface{}) ucp.EventType {
	m := strings.ToUpper(method)
	p := strings.TrimRight(path, "/")

	if strings.HasSuffix(p, "/.well-known/ucp") {
		return ucp.ProfileDiscovered
	}

	if reCheckoutCollection.MatchString(p) && m == http.MethodPost {
		return ucp.CheckoutSessionCreated
	}
	if reCheckoutComplete.MatchString(p) && m == http.MethodPost {
		return ucp.CheckoutSessionCompleted
	}
	if reCheckoutCancel.MatchString(p) && m == http.MethodPost {
		return ucp.CheckoutSessionCanceled
	}
	if reCheckoutItem.MatchString(p) && m == http.MethodPut {
		// Session mutation may represent an ordinary update or an
		// escalation, depending on the resulting state.
		if bodyStatus(responseBody) == ucp.StatusRequiresEscalation {
			return ucp.CheckoutEscalation
		}
		return ucp.CheckoutSessionUpdated
	}
	if reCheckoutItem.MatchString(p) && m == http.MethodGet {
		return ucp.CheckoutSessionGet
	}

	if reCartCollection.MatchString(p) && m == http.MethodPost {
		return ucp.CartCreated
	}
	if reCartCancel.MatchString(p) && m == http.MethodPost {
		return ucp.CartCanceled
	}
	if reCartItem.MatchString(p) && m == http.MethodPut {
		return ucp.CartUpdated
	}
	if reCartItem.MatchString(p) && m == http.MethodGet {
		return ucp.CartGet
	}

	if reOrders.MatchString(p) {
		if m == http.MethodPost {
			return ucp.OrderCreated
		}
		if t, ok := orderStatusEvent(bodyStatus(responseBody)); ok {
			return t
		}
		return ucp.OrderUpdated
	}

	if reWebhook.MatchString(p) {
		// Webhook delivery failures still classify as errors.
		if status >= 400 {
			return ucp.Error
		}
		// Upstream partner webhook: the order payload is in the request
		// body; the response is just an ack.
		if rePartnerWebhook.MatchString(p) {
			body := requestBody
			if body == nil {
				body = responseBody
			}
			s := bodyStatus(body)
			if s == "shipped" {
				return ucp.OrderShipped
			}
			if t, ok := orderStatusEvent(s); ok {
				return t
			}
			return ucp.OrderUpdated
		}
		// Legacy per-transition webhook paths.
		if reWebhookDelivered.MatchString(p) {
			return ucp.OrderDelivered
		}
		if reWebhookReturned.MatchString(p) {
			return ucp.OrderReturned
		}
		if reWebhookCanceled.MatchString(p) {
			return ucp.OrderCanceled
		}
		return ucp.OrderUpdated
	}

	if reIdentity.MatchString(p) {
		if strings.Contains(p, "/revoke") || m == http.MethodDelete {
			return ucp.IdentityLinkRevoked
		}
		if strings.Contains(p, "/callback") {
			return ucp.IdentityLinkCompleted
		}
		return ucp.IdentityLinkInitiated
	}

	// Samples-server testing endpoint.
	if strings.Contains(p, "/simulate-shipping") {
		return ucp.OrderShipped
	}

	if status >= 400 {
		return ucp.Error
	}
	return ucp.Request
}

// Tool classifies a JSON-RPC tool or action name (MCP tools/call, A2A
// tasks/send) into an event type by mapping it to its HTTP equivalent and
// deferring to HTTP. This keeps classification semantics identical across
// transports.
func Tool(name string, status int, responseBody map[string]interface{}) ucp.EventType {
	// Capability negotiation has no HTTP path pattern; keyword check
	// comes first.
	if strings.Contains(name, "negotiate") || strings.Contains(name, "capability") {
		return ucp.CapabilityNegotiated
	}

	if method, path, ok := ToolRoute(name); ok {
		return HTTP(method, path, status, nil, responseBody)
	}

	// A2A DataPart keys like "add_to_checkout" map to updates.
	if strings.Contains(name, "add_to") || strings.Contains(name, "remove_from") || strings.Contains(name, "update") {
		if strings.Contains(name, "checkout") {
			return HTTP(http.MethodPut, "/checkout-sessions/{id}", status, nil, responseBody)
		}
		if strings.Contains(name, "cart") {
			return HTTP(http.MethodPut, "/carts/{id}", status, nil, responseBody)
		}
	}

	return ucp.Request
}

// ToolRoute resolves a tool/action name to its equivalent HTTP method and
// path template. Covers plain MCP tool names and namespaced A2A actions.
func ToolRoute(name string) (method, path string, ok bool) {
	route, ok := toolRoutes[name]
	if !ok {
		return "", "", false
	}
	return route.method, route.path, true
}

type httpRoute struct {
	method string
	path   string
}

var toolRoutes = map[string]httpRoute{
	// MCP tool names
	"create_checkout":         {http.MethodPost, "/checkout-sessions"},
	"update_checkout":         {http.MethodPut, "/checkout-sessions/{id}"},
	"complete_checkout":       {http.MethodPost, "/checkout-sessions/{id}/complete"},
	"cancel_checkout":         {http.MethodPost, "/checkout-sessions/{id}/cancel"},
	"get_checkout":            {http.MethodGet, "/checkout-sessions/{id}"},
	"create_cart":             {http.MethodPost, "/carts"},
	"update_cart":             {http.MethodPut, "/carts/{id}"},
	"cancel_cart":             {http.MethodPost, "/carts/{id}/cancel"},
	"get_cart":                {http.MethodGet, "/carts/{id}"},
	"create_order":            {http.MethodPost, "/orders"},
	"get_order":               {http.MethodGet, "/orders/{id}"},
	"discover":                {http.MethodGet, "/.well-known/ucp"},
	"discover_merchant":       {http.MethodGet, "/.well-known/ucp"},
	"simulate_shipping":       {http.MethodPost, "/testing/simulate-shipping/{id}"},
	"order_event_webhook":     {http.MethodPost, "/webhooks/partners/{id}/events/order"},
	"add_to_checkout":         {http.MethodPut, "/checkout-sessions/{id}"},
	"remove_from_checkout":    {http.MethodPut, "/checkout-sessions/{id}"},
	"update_customer_details": {http.MethodPut, "/checkout-sessions/{id}"},
	"start_payment":           {http.MethodPut, "/checkout-sessions/{id}"},
	"link_identity":           {http.MethodPost, "/identity"},
	"revoke_identity":         {http.MethodDelete, "/identity/revoke"},
	"negotiate_capability":    {http.MethodPost, "/capabilities/negotiate"},

	// A2A action names (a2a.ucp.*)
	"a2a.ucp.checkout.create":      {http.MethodPost, "/checkout-sessions"},
	"a2a.ucp.checkout.update":      {http.MethodPut, "/checkout-sessions/{id}"},
	"a2a.ucp.checkout.complete":    {http.MethodPost, "/checkout-sessions/{id}/complete"},
	"a2a.ucp.checkout.cancel":      {http.MethodPost, "/checkout-sessions/{id}/cancel"},
	"a2a.ucp.checkout.get":         {http.MethodGet, "/checkout-sessions/{id}"},
	"a2a.ucp.cart.create":          {http.MethodPost, "/carts"},
	"a2a.ucp.cart.update":          {http.MethodPut, "/carts/{id}"},
	"a2a.ucp.cart.cancel":          {http.MethodPost, "/carts/{id}/cancel"},
	"a2a.ucp.cart.get":             {http.MethodGet, "/carts/{id}"},
	"a2a.ucp.order.create":         {http.MethodPost, "/orders"},
	"a2a.ucp.order.get":            {http.MethodGet, "/orders/{id}"},
	"a2a.ucp.discover":             {http.MethodGet, "/.well-known/ucp"},
	"a2a.ucp.identity.link":        {http.MethodPost, "/identity"},
	"a2a.ucp.identity.revoke":      {http.MethodDelete, "/identity/revoke"},
	"a2a.ucp.capability.negotiate": {http.MethodPost, "/capabilities/negotiate"},
}

// bodyStatus returns the status field of a JSON body, or "" when the body
// is missing or not shaped as expected. Malformed bodies degrade to the
// path-only classification.
func bodyStatus(body map[string]interface{}) string {
	if body == nil {
		return ""
	}
	s, _ := body["status"].(string)
	return s
}

func orderStatusEvent(status string) (ucp.EventType, bool) {
	switch status {
	case "delivered":
		return ucp.OrderDelivered, true
	case "returned":
		return ucp.OrderReturned, true
	case "canceled", "cancelled":
		return ucp.OrderCanceled, true
	}
	return "", false
}
