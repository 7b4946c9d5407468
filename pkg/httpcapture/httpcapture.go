// Package httpcapture observes HTTP traffic on either side of a UCP
// integration. The server middleware watches inbound merchant traffic;
// the client transport watches outbound platform calls. Both feed the
// tracker asynchronously and never alter the traffic they observe.
package httpcapture

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ucptrace/ucptrace/pkg/tracker"
)

// maxCapturedBody bounds how much of a body is buffered for analytics.
// Larger bodies are ingested without payload extraction.
const maxCapturedBody = 1 << 20

var capturedHeaders = []string{"Idempotency-Key", "Request-Id", "UCP-Agent"}

// ucpPathPrefixes identifies protocol traffic. Requests outside these
// prefixes pass through without any buffering.
var ucpPathPrefixes = []string{
	"/checkout-sessions",
	"/carts",
	"/orders",
	"/.well-known/ucp",
	"/webhooks",
	"/identity",
	"/oauth",
	"/simulate-shipping",
}

func isUCPPath(path string) bool {
	for _, prefix := range ucpPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware returns a server middleware that records UCP requests and
// responses passing through it. Extra path prefixes widen what counts as
// protocol traffic.
func Middleware(t *tracker.Tracker, extraPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUCPPath(r.URL.Path) && !hasPrefix(r.URL.Path, extraPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			reqBody := drainBody(r)

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			latency := float64(time.Since(start)) / float64(time.Millisecond)

			sig := tracker.Signal{
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rec.status,
				RequestBody:  parseJSON(reqBody, r.Header.Get("Content-Type")),
				ResponseBody: parseJSON(rec.body.Bytes(), rec.Header().Get("Content-Type")),
				LatencyMs:    latency,
				Headers:      pickHeaders(r.Header),
				MerchantHost: hostWithoutPort(r.Host),
			}
			t.IngestAsync(sig)
		})
	}
}

// Transport wraps an http.RoundTripper to record outbound UCP calls.
type Transport struct {
	// Base is the underlying transport; nil means http.DefaultTransport.
	Base    http.RoundTripper
	Tracker *tracker.Tracker
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(io.LimitReader(req.Body, maxCapturedBody+1))
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		t.Tracker.IngestAsync(tracker.Signal{
			Method:      req.Method,
			URL:         req.URL.String(),
			StatusCode:  0,
			RequestBody: parseJSON(reqBody, req.Header.Get("Content-Type")),
			LatencyMs:   latency,
			Headers:     pickHeaders(req.Header),
		})
		return resp, err
	}

	var respBody []byte
	if resp.Body != nil {
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody+1))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
	}

	t.Tracker.IngestAsync(tracker.Signal{
		Method:       req.Method,
		URL:          req.URL.String(),
		StatusCode:   resp.StatusCode,
		RequestBody:  parseJSON(reqBody, req.Header.Get("Content-Type")),
		ResponseBody: parseJSON(respBody, resp.Header.Get("Content-Type")),
		LatencyMs:    latency,
		Headers:      pickHeaders(req.Header),
	})
	return resp, nil
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.body.Len() < maxCapturedBody {
		r.body.Write(p[:min(len(p), maxCapturedBody-r.body.Len())])
	}
	return r.ResponseWriter.Write(p)
}

// drainBody buffers the request body and restores it for the handler.
func drainBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody+1))
	r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data
}

// parseJSON decodes a JSON object body, ignoring anything else.
func parseJSON(data []byte, contentType string) map[string]interface{} {
	if len(data) == 0 || len(data) > maxCapturedBody {
		return nil
	}
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !strings.Contains(mediaType, "json") {
			return nil
		}
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	return body
}

// hostWithoutPort normalizes a Host header so the same merchant never
// lands under both host and host:port.
func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func pickHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(capturedHeaders))
	for _, name := range capturedHeaders {
		if v := h.Get(name); v != "" {
			out[strings.ToLower(name)] = v
		}
	}
	return out
}
