// Package toolcapture observes RPC tool invocations (MCP tool calls,
// A2A skill messages) and feeds them to the tracker.
package toolcapture

import (
	"time"

	"github.com/ucptrace/ucptrace/pkg/tracker"
	"github.com/ucptrace/ucptrace/pkg/ucp"
)

// Observer records tool invocations against a fixed transport and
// merchant.
type Observer struct {
	tracker      *tracker.Tracker
	transport    string
	merchantHost string
}

// New builds an observer. Transport defaults to MCP when empty.
func New(t *tracker.Tracker, transport, merchantHost string) *Observer {
	if transport == "" {
		transport = ucp.TransportMCP
	}
	return &Observer{
		tracker:      t,
		transport:    transport,
		merchantHost: merchantHost,
	}
}

// Call is one in-flight tool invocation.
type Call struct {
	obs      *Observer
	toolName string
	started  time.Time
}

// Begin marks the start of a tool invocation.
func (o *Observer) Begin(toolName string) *Call {
	return &Call{
		obs:      o,
		toolName: toolName,
		started:  time.Now(),
	}
}

// End records the invocation outcome. A zero status means success.
func (c *Call) End(status int, response map[string]interface{}) {
	latency := float64(time.Since(c.started)) / float64(time.Millisecond)
	c.obs.tracker.IngestAsync(tracker.Signal{
		ToolName:     c.toolName,
		StatusCode:   status,
		ResponseBody: response,
		LatencyMs:    latency,
		Transport:    c.obs.transport,
		MerchantHost: c.obs.merchantHost,
	})
}

// Record is the one-shot form for callers that already measured the
// invocation themselves.
func (o *Observer) Record(toolName string, status int, response map[string]interface{}, latencyMs float64) {
	o.tracker.IngestAsync(tracker.Signal{
		ToolName:     toolName,
		StatusCode:   status,
		ResponseBody: response,
		LatencyMs:    latencyMs,
		Transport:    o.transport,
		MerchantHost: o.merchantHost,
	})
}
