// Package extract pulls structured analytics fields out of UCP JSON
// bodies. It understands the checkout object schema, the totals array,
// payment instruments, the fulfillment and discount extensions, the
// messages array, and the ucp metadata envelope.
//
// Extraction never fails: fields missing from the body are simply left
// unset on the event.
package extract

import (
	"encoding/json"
	"strconv"

	"github.com/ucptrace/ucptrace/pkg/ucp"
)

// Populate fills ev with every analytics field the body supports. Works
// with both request bodies (partial) and response bodies (full).
func Populate(ev *ucp.Event, body map[string]interface{}) {
	if ev == nil || len(body) == 0 {
		return
	}

	extractIdentifiers(ev, body)
	extractStatus(ev, body)

	if c := asString(body["currency"]); c != "" {
		ev.Currency = ucp.String(c)
	}

	extractTotals(ev, body["totals"])
	extractLineItems(ev, body["line_items"])
	extractEnvelope(ev, body["ucp"])
	extractDiscoveryPayment(ev, body["payment"])
	extractPayment(ev, body)
	extractFulfillment(ev, body["fulfillment"])
	if ev.FulfillmentType == nil {
		// Order confirmations embed fulfillment under the nested order.
		if order, ok := body["order"].(map[string]interface{}); ok {
			extractFulfillment(ev, order["fulfillment"])
		}
	}
	extractDiscounts(ev, body["discounts"])

	if v := asString(body["expires_at"]); v != "" {
		ev.ExpiresAt = ucp.String(v)
	}
	if v := asString(body["continue_url"]); v != "" {
		ev.ContinueURL = ucp.String(v)
	}

	extractIdentity(ev, body)
	extractMessages(ev, body["messages"])
	extractLinks(ev, body["links"])
}

// extractIdentifiers resolves the session/order ids. A body is an order
// when it carries a checkout_id back-reference to its originating
// session; otherwise its id is the checkout session id. Order
// confirmations nested inside a checkout body (checkout.order) carry the
// order id and permalink.
func extractIdentifiers(ev *ucp.Event, body map[string]interface{}) {
	if id := asString(body["id"]); id != "" {
		if checkoutID, ok := body["checkout_id"]; ok {
			ev.OrderID = ucp.String(id)
			if s := asString(checkoutID); s != "" {
				ev.CheckoutSessionID = ucp.String(s)
			}
		} else {
			ev.CheckoutSessionID = ucp.String(id)
		}
	}

	if id := asString(body["order_id"]); id != "" {
		ev.OrderID = ucp.String(id)
	}

	if order, ok := body["order"].(map[string]interface{}); ok {
		if id := asString(order["id"]); id != "" {
			ev.OrderID = ucp.String(id)
		}
		if link := asString(order["permalink_url"]); link != "" {
			ev.PermalinkURL = ucp.String(link)
		}
	}

	if link := asString(body["permalink_url"]); link != "" {
		ev.PermalinkURL = ucp.String(link)
	}
}

// extractStatus writes checkout_status only for checkout-session shaped
// bodies. The two-guard check (no checkout_id back-reference, value in
// the checkout state set) keeps order statuses like "delivered" out of
// the checkout_status column.
func extractStatus(ev *ucp.Event, body map[string]interface{}) {
	if _, isOrder := body["checkout_id"]; isOrder {
		return
	}
	if s := asString(body["status"]); ucp.IsCheckoutStatus(s) {
		ev.CheckoutStatus = ucp.String(s)
	}
}

// extractTotals maps the totals array onto the dedicated amount fields.
// Unrecognized total types are ignored for forward compatibility.
func extractTotals(ev *ucp.Event, raw interface{}) {
	totals, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, item := range totals {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		amount, ok := asInt64(entry["amount"])
		if !ok {
			continue
		}
		switch asString(entry["type"]) {
		case ucp.TotalItemsDiscount:
			ev.ItemsDiscountAmount = ucp.Int64(amount)
		case ucp.TotalSubtotal:
			ev.SubtotalAmount = ucp.Int64(amount)
		case ucp.TotalDiscount:
			ev.DiscountAmount = ucp.Int64(amount)
		case ucp.TotalFulfillment:
			ev.FulfillmentAmount = ucp.Int64(amount)
		case ucp.TotalTax:
			ev.TaxAmount = ucp.Int64(amount)
		case ucp.TotalFee:
			ev.FeeAmount = ucp.Int64(amount)
		case ucp.TotalTotal:
			ev.TotalAmount = ucp.Int64(amount)
		}
	}
}

func extractLineItems(ev *ucp.Event, raw interface{}) {
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return
	}
	ev.LineItemCount = ucp.Int(len(items))
	if blob := marshalBlob(items); blob != "" {
		ev.LineItemsJSON = ucp.String(blob)
	}
}

// extractEnvelope parses the ucp metadata envelope: protocol version plus
// the capability registry, normalized to the array shape and partitioned
// into core capabilities and extensions (entries declaring an extends
// reference).
func extractEnvelope(ev *ucp.Event, raw interface{}) {
	meta, ok := raw.(map[string]interface{})
	if !ok {
		return
	}

	if v := asString(meta["version"]); v != "" {
		ev.UCPVersion = ucp.String(v)
	}

	entries := normalizeRegistry(meta["capabilities"])
	if len(entries) == 0 {
		return
	}

	var core, extensions []map[string]interface{}
	for _, entry := range entries {
		if ext := asString(entry["extends"]); ext != "" {
			extensions = append(extensions, entry)
		} else {
			core = append(core, entry)
		}
	}

	if len(core) > 0 {
		if blob := marshalBlob(core); blob != "" {
			ev.CapabilitiesJSON = ucp.String(blob)
		}
	}
	if len(extensions) > 0 {
		if blob := marshalBlob(extensions); blob != "" {
			ev.ExtensionsJSON = ucp.String(blob)
		}
	}
}

// normalizeRegistry flattens the capability registry. The SDK and samples
// use an array of {"name": ..., "version": ...} objects; an object-keyed
// format (capability names as keys) is also accepted and normalized to
// the array shape.
func normalizeRegistry(raw interface{}) []map[string]interface{} {
	switch v := raw.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range v {
			if entry, ok := item.(map[string]interface{}); ok {
				out = append(out, entry)
			}
		}
		return out
	case map[string]interface{}:
		var out []map[string]interface{}
		for name, entries := range v {
			switch list := entries.(type) {
			case []interface{}:
				for _, item := range list {
					if entry, ok := item.(map[string]interface{}); ok {
						out = append(out, withName(name, entry))
					}
				}
			case map[string]interface{}:
				out = append(out, withName(name, list))
			}
		}
		return out
	}
	return nil
}

func withName(name string, entry map[string]interface{}) map[string]interface{} {
	flat := map[string]interface{}{"name": name}
	for k, v := range entry {
		if k != "name" {
			flat[k] = v
		}
	}
	return flat
}

// extractDiscoveryPayment reads the payment handler list that discovery
// profiles place at the top level as a sibling of the ucp envelope. It
// only sets the handler id when the checkout payment block has not
// already supplied one.
func extractDiscoveryPayment(ev *ucp.Event, raw interface{}) {
	payment, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	handlers, ok := payment["handlers"].([]interface{})
	if !ok || len(handlers) == 0 {
		return
	}
	if ev.PaymentHandlerID != nil {
		return
	}
	first, ok := handlers[0].(map[string]interface{})
	if !ok {
		return
	}
	id := asString(first["id"])
	if id == "" {
		id = asString(first["name"])
	}
	if id != "" {
		ev.PaymentHandlerID = ucp.String(id)
	}
}

// extractPayment reads payment fields from checkout/order responses. The
// instruments array is preferred over the legacy handlers array since
// instruments carry handler_id, type, and brand; a payment_data block
// (complete request/response) wins over both.
func extractPayment(ev *ucp.Event, body map[string]interface{}) {
	if data, ok := body["payment_data"].(map[string]interface{}); ok && len(data) > 0 {
		setPaymentFields(ev, firstNonEmpty(asString(data["handler_id"]), asString(data["id"])),
			asString(data["type"]), asString(data["brand"]))
		return
	}

	payment, ok := body["payment"].(map[string]interface{})
	if !ok || len(payment) == 0 {
		return
	}

	if instruments, ok := payment["instruments"].([]interface{}); ok && len(instruments) > 0 {
		if first, ok := instruments[0].(map[string]interface{}); ok {
			setPaymentFields(ev, firstNonEmpty(asString(first["handler_id"]), asString(first["id"])),
				asString(first["type"]), asString(first["brand"]))
		}
		return
	}

	if handlers, ok := payment["handlers"].([]interface{}); ok && len(handlers) > 0 {
		if first, ok := handlers[0].(map[string]interface{}); ok {
			setPaymentFields(ev, asString(first["id"]), asString(first["type"]), asString(first["brand"]))
		}
		return
	}

	setPaymentFields(ev, firstNonEmpty(asString(payment["handler_id"]), asString(payment["id"])),
		asString(payment["type"]), asString(payment["brand"]))
}

func setPaymentFields(ev *ucp.Event, handlerID, instrumentType, brand string) {
	if handlerID != "" {
		ev.PaymentHandlerID = ucp.String(handlerID)
	}
	if instrumentType != "" {
		ev.PaymentInstrumentType = ucp.String(instrumentType)
	}
	if brand != "" {
		ev.PaymentBrand = ucp.String(brand)
	}
}

// extractFulfillment handles both the checkout shape (methods[] with
// destinations) and the order shape (expectations[] with a destination).
func extractFulfillment(ev *ucp.Event, raw interface{}) {
	fulfillment, ok := raw.(map[string]interface{})
	if !ok {
		return
	}

	if methods, ok := fulfillment["methods"].([]interface{}); ok && len(methods) > 0 {
		first, ok := methods[0].(map[string]interface{})
		if !ok {
			return
		}
		if t := asString(first["type"]); t != "" {
			ev.FulfillmentType = ucp.String(t)
		}
		if dests, ok := first["destinations"].([]interface{}); ok && len(dests) > 0 {
			if dest, ok := dests[0].(map[string]interface{}); ok {
				country := asString(dest["address_country"])
				if country == "" {
					if addr, ok := dest["address"].(map[string]interface{}); ok {
						country = asString(addr["address_country"])
					}
				}
				if country != "" {
					ev.FulfillmentDestinationCountry = ucp.String(country)
				}
			}
		}
		return
	}

	if expectations, ok := fulfillment["expectations"].([]interface{}); ok && len(expectations) > 0 {
		first, ok := expectations[0].(map[string]interface{})
		if !ok {
			return
		}
		if t := firstNonEmpty(asString(first["method_type"]), asString(first["type"])); t != "" {
			ev.FulfillmentType = ucp.String(t)
		}
		if dest, ok := first["destination"].(map[string]interface{}); ok {
			if country := asString(dest["address_country"]); country != "" {
				ev.FulfillmentDestinationCountry = ucp.String(country)
			}
		}
	}
}

// extractDiscounts lifts discounts.codes (input) and discounts.applied
// (allocations) verbatim into their own blobs.
func extractDiscounts(ev *ucp.Event, raw interface{}) {
	discounts, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	if codes, ok := discounts["codes"].([]interface{}); ok && len(codes) > 0 {
		if blob := marshalBlob(codes); blob != "" {
			ev.DiscountCodesJSON = ucp.String(blob)
		}
	}
	if applied, ok := discounts["applied"].([]interface{}); ok && len(applied) > 0 {
		if blob := marshalBlob(applied); blob != "" {
			ev.DiscountAppliedJSON = ucp.String(blob)
		}
	}
}

func extractIdentity(ev *ucp.Event, body map[string]interface{}) {
	if v := asString(body["provider"]); v != "" {
		ev.IdentityProvider = ucp.String(v)
	}
	if v := asString(body["scope"]); v != "" {
		ev.IdentityScope = ucp.String(v)
	}
	if identity, ok := body["identity"].(map[string]interface{}); ok {
		if v := asString(identity["provider"]); v != "" {
			ev.IdentityProvider = ucp.String(v)
		}
		if v := asString(identity["scope"]); v != "" {
			ev.IdentityScope = ucp.String(v)
		}
	}
}

// extractMessages stores the messages array and surfaces the first
// error-typed entry as the event's error code/message/severity.
func extractMessages(ev *ucp.Event, raw interface{}) {
	messages, ok := raw.([]interface{})
	if !ok || len(messages) == 0 {
		return
	}
	if blob := marshalBlob(messages); blob != "" {
		ev.MessagesJSON = ucp.String(blob)
	}
	for _, item := range messages {
		msg, ok := item.(map[string]interface{})
		if !ok || asString(msg["type"]) != "error" {
			continue
		}
		if v := asString(msg["code"]); v != "" {
			ev.ErrorCode = ucp.String(v)
		}
		if v := asString(msg["content"]); v != "" {
			ev.ErrorMessage = ucp.String(v)
		}
		if v := asString(msg["severity"]); v != "" {
			ev.ErrorSeverity = ucp.String(v)
		}
		break
	}
}

// extractLinks resolves order back-references in the links array when no
// order id was found elsewhere.
func extractLinks(ev *ucp.Event, raw interface{}) {
	links, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, item := range links {
		link, ok := item.(map[string]interface{})
		if !ok || asString(link["type"]) != "order" {
			continue
		}
		if ev.OrderID == nil {
			if url := asString(link["url"]); url != "" {
				ev.OrderID = ucp.String(url)
			}
		}
	}
}

func marshalBlob(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// asString stringifies scalar identifiers; numeric ids are common in demo
// payloads.
func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
