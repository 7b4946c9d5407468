// Package seeder generates synthetic UCP traffic for development and
// demo environments.
package seeder

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"

	"github.com/ucptrace/ucptrace/pkg/tracker"
)

// Profile controls how much synthetic traffic to generate and the mix
// of scenarios.
type Profile struct {
	Count     int            `yaml:"count"`
	Scenarios map[string]int `yaml:"scenarios"`
}

// DefaultProfile is a balanced traffic mix.
func DefaultProfile() Profile {
	return Profile{
		Count: 100,
		Scenarios: map[string]int{
			"discovery":     10,
			"checkout":      50,
			"order_webhook": 20,
			"mcp_tools":     15,
			"errors":        5,
		},
	}
}

// LoadProfile reads a YAML profile from disk.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	return profile, nil
}

// Generator produces synthetic signals. Seeded generators are
// deterministic.
type Generator struct {
	rng   *rand.Rand
	faker *gofakeit.Faker
}

// NewGenerator builds a generator from a seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:   rand.New(rand.NewSource(seed)),
		faker: gofakeit.New(seed),
	}
}

// Signals generates the profile's traffic mix. Checkout scenarios emit
// multi-signal flows, so the result can exceed profile.Count.
func (g *Generator) Signals(profile Profile) []tracker.Signal {
	scenarios, weights := normalizeWeights(profile.Scenarios)
	if len(scenarios) == 0 {
		return nil
	}

	var out []tracker.Signal
	for i := 0; i < profile.Count; i++ {
		switch scenarios[g.pick(weights)] {
		case "discovery":
			out = append(out, g.discovery())
		case "checkout":
			out = append(out, g.checkoutFlow()...)
		case "order_webhook":
			out = append(out, g.orderWebhook())
		case "mcp_tools":
			out = append(out, g.toolCall())
		case "errors":
			out = append(out, g.failedCheckout())
		}
	}
	return out
}

func normalizeWeights(scenarios map[string]int) ([]string, []int) {
	names := []string{"discovery", "checkout", "order_webhook", "mcp_tools", "errors"}
	var keep []string
	var weights []int
	for _, name := range names {
		if w := scenarios[name]; w > 0 {
			keep = append(keep, name)
			weights = append(weights, w)
		}
	}
	return keep, weights
}

func (g *Generator) pick(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	n := g.rng.Intn(total)
	for i, w := range weights {
		if n < w {
			return i
		}
		n -= w
	}
	return len(weights) - 1
}

func (g *Generator) merchantHost() string {
	return fmt.Sprintf("shop.%s", g.faker.DomainName())
}

func (g *Generator) discovery() tracker.Signal {
	host := g.merchantHost()
	return tracker.Signal{
		Method:       "GET",
		Path:         "/.well-known/ucp",
		StatusCode:   200,
		MerchantHost: host,
		LatencyMs:    float64(g.rng.Intn(80) + 5),
		ResponseBody: map[string]interface{}{
			"ucp": map[string]interface{}{
				"version": "2026-01-01",
				"capabilities": []interface{}{
					map[string]interface{}{"name": "dev.ucp.shopping.checkout", "version": "1.0"},
					map[string]interface{}{"name": "dev.ucp.shopping.discount", "version": "1.0", "extends": "dev.ucp.shopping.checkout"},
				},
			},
			"payment": map[string]interface{}{
				"handlers": []interface{}{
					map[string]interface{}{"id": "stripe_handler", "name": "stripe"},
				},
			},
		},
	}
}

func (g *Generator) checkoutFlow() []tracker.Signal {
	host := g.merchantHost()
	sessionID := g.faker.UUID()
	currency := g.faker.CurrencyShort()
	subtotal := int64(g.rng.Intn(20000) + 500)
	tax := subtotal / 10
	total := subtotal + tax

	lineItems := []interface{}{
		map[string]interface{}{
			"id":       g.faker.UUID(),
			"title":    g.faker.ProductName(),
			"quantity": g.rng.Intn(3) + 1,
		},
	}
	totals := []interface{}{
		map[string]interface{}{"type": "subtotal", "amount": subtotal},
		map[string]interface{}{"type": "tax", "amount": tax},
		map[string]interface{}{"type": "total", "amount": total},
	}

	created := tracker.Signal{
		Method:       "POST",
		Path:         "/checkout-sessions",
		StatusCode:   201,
		MerchantHost: host,
		LatencyMs:    float64(g.rng.Intn(300) + 20),
		Headers:      map[string]string{"idempotency-key": g.faker.UUID()},
		ResponseBody: map[string]interface{}{
			"id":         sessionID,
			"status":     "incomplete",
			"currency":   currency,
			"line_items": lineItems,
			"totals":     totals,
		},
	}

	updated := tracker.Signal{
		Method:       "PUT",
		Path:         "/checkout-sessions/" + sessionID,
		StatusCode:   200,
		MerchantHost: host,
		LatencyMs:    float64(g.rng.Intn(300) + 20),
		ResponseBody: map[string]interface{}{
			"id":         sessionID,
			"status":     "ready_for_complete",
			"currency":   currency,
			"line_items": lineItems,
			"totals":     totals,
			"fulfillment": map[string]interface{}{
				"methods": []interface{}{
					map[string]interface{}{
						"type": "shipping",
						"destinations": []interface{}{
							map[string]interface{}{"address_country": g.faker.CountryAbr()},
						},
					},
				},
			},
		},
	}

	completed := tracker.Signal{
		Method:       "POST",
		Path:         "/checkout-sessions/" + sessionID + "/complete",
		StatusCode:   200,
		MerchantHost: host,
		LatencyMs:    float64(g.rng.Intn(600) + 50),
		ResponseBody: map[string]interface{}{
			"id":       sessionID,
			"status":   "completed",
			"currency": currency,
			"totals":   totals,
			"payment_data": map[string]interface{}{
				"handler_id": "stripe_handler",
				"type":       "card",
				"brand":      g.faker.CreditCardType(),
			},
			"order": map[string]interface{}{
				"id":            g.faker.UUID(),
				"permalink_url": fmt.Sprintf("https://%s/orders/%s", host, g.faker.UUID()),
			},
		},
	}

	return []tracker.Signal{created, updated, completed}
}

func (g *Generator) orderWebhook() tracker.Signal {
	host := g.merchantHost()
	return tracker.Signal{
		Method:       "POST",
		Path:         fmt.Sprintf("/webhooks/partners/%s/events/order", g.faker.UUID()),
		StatusCode:   200,
		MerchantHost: host,
		LatencyMs:    float64(g.rng.Intn(100) + 5),
		RequestBody: map[string]interface{}{
			"id":          g.faker.UUID(),
			"checkout_id": g.faker.UUID(),
			"status":      "shipped",
			"fulfillment": map[string]interface{}{
				"expectations": []interface{}{
					map[string]interface{}{
						"method_type": "shipping",
						"destination": map[string]interface{}{"address_country": g.faker.CountryAbr()},
					},
				},
			},
		},
		ResponseBody: map[string]interface{}{"ok": true},
	}
}

func (g *Generator) toolCall() tracker.Signal {
	tools := []string{
		"create_checkout",
		"update_checkout",
		"complete_checkout",
		"get_checkout",
	}
	name := tools[g.rng.Intn(len(tools))]
	return tracker.Signal{
		ToolName:     name,
		StatusCode:   200,
		Transport:    "mcp",
		MerchantHost: g.merchantHost(),
		LatencyMs:    float64(g.rng.Intn(400) + 30),
		ResponseBody: map[string]interface{}{
			"id":     g.faker.UUID(),
			"status": "incomplete",
		},
	}
}

func (g *Generator) failedCheckout() tracker.Signal {
	return tracker.Signal{
		Method:       "POST",
		Path:         "/checkout-sessions",
		StatusCode:   422,
		MerchantHost: g.merchantHost(),
		LatencyMs:    float64(g.rng.Intn(200) + 10),
		ResponseBody: map[string]interface{}{
			"messages": []interface{}{
				map[string]interface{}{
					"type":     "error",
					"code":     "invalid_line_item",
					"content":  "line item is out of stock",
					"severity": "recoverable",
				},
			},
		},
	}
}
