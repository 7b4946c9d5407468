// Package handlers implements the collector's HTTP API.
package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/ucptrace/ucptrace/internal/auth"
	"github.com/ucptrace/ucptrace/internal/logging"
	"github.com/ucptrace/ucptrace/internal/metrics"
	"github.com/ucptrace/ucptrace/internal/ratelimit"
	"github.com/ucptrace/ucptrace/pkg/tracker"
)

// signalPayload is the wire shape of one observed UCP operation.
type signalPayload struct {
	Method       string                 `json:"method,omitempty"`
	ToolName     string                 `json:"tool_name,omitempty"`
	URL          string                 `json:"url,omitempty"`
	Path         string                 `json:"path,omitempty"`
	StatusCode   int                    `json:"status_code,omitempty"`
	RequestBody  map[string]interface{} `json:"request_body,omitempty"`
	ResponseBody map[string]interface{} `json:"response_body,omitempty"`
	LatencyMs    float64                `json:"latency_ms,omitempty"`
	Transport    string                 `json:"transport,omitempty"`
	Headers      map[string]string      `json:"headers,omitempty"`
	AppName      string                 `json:"app_name,omitempty"`
	MerchantHost string                 `json:"merchant_host,omitempty"`
}

// Signals stays nil when the key is absent, so a bare signal object can
// be told apart from an explicitly empty batch.
type signalEnvelope struct {
	Signals *[]signalPayload `json:"signals"`
}

// SignalHandler accepts transport signals shipped by remote SDKs and
// feeds them into the tracker.
type SignalHandler struct {
	tracker *tracker.Tracker
	limiter ratelimit.RateLimiter
	maxBody int64
	logger  *logging.Logger
}

// NewSignalHandler wires the signal endpoint.
func NewSignalHandler(t *tracker.Tracker, limiter ratelimit.RateLimiter, maxBody int, logger *logging.Logger) *SignalHandler {
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SignalHandler{
		tracker: t,
		limiter: limiter,
		maxBody: int64(maxBody),
		logger:  logger,
	}
}

// HandleSignals accepts a batch ({"signals": [...]}) or a single signal
// object. Every valid signal is ingested; ingestion itself never fails.
func (h *SignalHandler) HandleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), h.rateKey(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "rate limit check failed", "error", err)
	} else if !allowed {
		metrics.SignalsReceived.WithLabelValues("rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body := io.Reader(r.Body)
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		metrics.SignalsReceived.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	payloads, err := decodeSignals(raw)
	if err != nil {
		metrics.SignalsReceived.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid signal payload")
		return
	}

	for _, p := range payloads {
		sig := tracker.Signal{
			Method:       p.Method,
			ToolName:     p.ToolName,
			URL:          p.URL,
			Path:         p.Path,
			StatusCode:   p.StatusCode,
			RequestBody:  p.RequestBody,
			ResponseBody: p.ResponseBody,
			LatencyMs:    p.LatencyMs,
			Transport:    p.Transport,
			Headers:      p.Headers,
			AppName:      h.appName(r, p),
			MerchantHost: p.MerchantHost,
		}
		h.tracker.Ingest(r.Context(), sig)
		metrics.SignalsReceived.WithLabelValues("accepted").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": len(payloads),
	})
}

// Health reports liveness.
func (h *SignalHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready reports readiness to accept signals.
func (h *SignalHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func decodeSignals(raw []byte) ([]signalPayload, error) {
	var envelope signalEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Signals != nil {
		return *envelope.Signals, nil
	}

	var single signalPayload
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []signalPayload{single}, nil
}

// rateKey prefers the authenticated application name, falling back to
// the client IP.
func (h *SignalHandler) rateKey(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.AppName != "" {
		return claims.AppName
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *SignalHandler) appName(r *http.Request, p signalPayload) string {
	if p.AppName != "" {
		return p.AppName
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.AppName
	}
	return ""
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
