// Package tracker wires classification, redaction, extraction, and the
// buffered writer into the ingestion API used by all adapters. Capture is
// strictly best-effort: no failure on this path ever propagates to the
// traffic being observed.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/ucptrace/ucptrace/internal/metrics"
	"github.com/ucptrace/ucptrace/pkg/classify"
	"github.com/ucptrace/ucptrace/pkg/extract"
	"github.com/ucptrace/ucptrace/pkg/redact"
	"github.com/ucptrace/ucptrace/pkg/ucp"
	"github.com/ucptrace/ucptrace/pkg/writer"
)

// Signal is the one logical input shape produced by every adapter for an
// observed UCP operation. HTTP adapters set Method/Path (or URL); RPC
// adapters set ToolName and a transport tag.
type Signal struct {
	Method   string
	ToolName string

	URL  string
	Path string

	StatusCode   int
	RequestBody  map[string]interface{}
	ResponseBody map[string]interface{}

	LatencyMs float64

	// Transport is one of ucp.TransportREST, TransportMCP, TransportA2A.
	// Empty means REST.
	Transport string

	// Headers carries request header context: idempotency-key,
	// request-id, ucp-agent. Keys are matched case-insensitively.
	Headers map[string]string

	// AppName and MerchantHost override the tracker-level defaults,
	// useful for RPC transports where no URL is observed.
	AppName      string
	MerchantHost string
}

// Config holds tracker-level settings shared by all ingested events.
type Config struct {
	AppName        string
	RedactPII      bool
	PIIFields      []string
	CustomMetadata map[string]string
}

// Tracker is the per-process ingestion coordinator. Safe for concurrent
// use by any number of producers.
type Tracker struct {
	cfg      Config
	writer   *writer.Writer
	redactor *redact.Redactor
	logger   *slog.Logger

	metadataJSON string

	pending sync.WaitGroup
}

// New builds a tracker on top of a buffered writer.
func New(w *writer.Writer, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		cfg:    cfg,
		writer: w,
		logger: logger,
	}
	if cfg.RedactPII {
		t.redactor = redact.New(cfg.PIIFields)
	}
	if len(cfg.CustomMetadata) > 0 {
		if data, err := json.Marshal(cfg.CustomMetadata); err == nil {
			t.metadataJSON = string(data)
		}
	}
	return t
}

// Ingest classifies and extracts one signal, enqueues the resulting
// event, and returns it for caller inspection. It never returns an
// error: internal failures degrade to a minimally populated event.
func (t *Tracker) Ingest(ctx context.Context, sig Signal) *ucp.Event {
	_ = ctx

	ev := t.buildEvent(sig)
	t.writer.Enqueue(ev.Row())

	metrics.EventsIngested.WithLabelValues(ev.Transport, string(ev.EventType)).Inc()
	if ev.EventType == ucp.Request || ev.EventType == ucp.Error {
		metrics.ClassificationFallbacks.Inc()
	}
	return ev
}

// IngestAsync records a signal on its own goroutine so adapters never
// block the traffic they observe. Close drains all outstanding work.
func (t *Tracker) IngestAsync(sig Signal) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.Ingest(context.Background(), sig)
	}()
}

// Flush forces delivery of everything currently buffered.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.writer.Flush(ctx)
}

// Close drains outstanding ingestion work, performs a final flush, and
// releases the destination client. Idempotent.
func (t *Tracker) Close(ctx context.Context) error {
	t.pending.Wait()
	return t.writer.Close(ctx)
}

func (t *Tracker) buildEvent(sig Signal) (ev *ucp.Event) {
	// Analytics must never break the observed traffic; a panic anywhere
	// in classify/redact/extract degrades to whatever was populated so
	// far, or to a bare fallback event.
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event construction panicked", slog.Any("panic", r))
			if ev == nil {
				ev = ucp.NewEvent(ucp.Request)
				ev.AppName = t.appName(sig)
			}
		}
	}()

	if sig.ToolName != "" && sig.Method == "" && sig.Path == "" && sig.URL == "" {
		return t.buildToolEvent(sig)
	}
	return t.buildHTTPEvent(sig)
}

func (t *Tracker) buildHTTPEvent(sig Signal) *ucp.Event {
	path := sig.Path
	merchantHost := sig.MerchantHost
	if sig.URL != "" {
		if parsed, err := url.Parse(sig.URL); err == nil {
			if path == "" {
				path = parsed.Path
			}
			if merchantHost == "" {
				merchantHost = parsed.Hostname()
			}
		}
	}

	eventType := classify.HTTP(sig.Method, path, sig.StatusCode, sig.RequestBody, sig.ResponseBody)

	ev := ucp.NewEvent(eventType)
	ev.AppName = t.appName(sig)
	ev.MerchantHost = merchantHost
	ev.HTTPMethod = strings.ToUpper(sig.Method)
	ev.HTTPPath = path
	if sig.Transport != "" {
		ev.Transport = sig.Transport
	}
	if sig.StatusCode != 0 {
		ev.HTTPStatusCode = ucp.Int(sig.StatusCode)
	}
	if sig.LatencyMs > 0 {
		ev.LatencyMs = ucp.Float64(sig.LatencyMs)
	}
	ev.PlatformProfileURL = header(sig.Headers, "ucp-agent")
	ev.IdempotencyKey = header(sig.Headers, "idempotency-key")
	ev.RequestID = header(sig.Headers, "request-id")

	// Webhook flows carry the order payload in the request; the response
	// is just an ack.
	body := sig.ResponseBody
	if strings.Contains(path, "/webhook") && sig.RequestBody != nil {
		body = sig.RequestBody
	}
	if body == nil {
		body = sig.RequestBody
	}
	t.extractInto(ev, body)

	return ev
}

func (t *Tracker) buildToolEvent(sig Signal) *ucp.Event {
	status := sig.StatusCode
	if status == 0 {
		status = 200
	}
	eventType := classify.Tool(sig.ToolName, status, sig.ResponseBody)

	ev := ucp.NewEvent(eventType)
	ev.AppName = t.appName(sig)
	ev.MerchantHost = sig.MerchantHost
	if sig.Transport != "" {
		ev.Transport = sig.Transport
	} else {
		ev.Transport = ucp.TransportMCP
	}
	if method, path, ok := classify.ToolRoute(sig.ToolName); ok {
		ev.HTTPMethod = method
		ev.HTTPPath = path
	}
	if sig.StatusCode != 0 {
		ev.HTTPStatusCode = ucp.Int(sig.StatusCode)
	}
	if sig.LatencyMs > 0 {
		ev.LatencyMs = ucp.Float64(sig.LatencyMs)
	}

	t.extractInto(ev, sig.ResponseBody)
	return ev
}

func (t *Tracker) extractInto(ev *ucp.Event, body map[string]interface{}) {
	if body != nil {
		if t.redactor != nil {
			body = t.redactor.Body(body)
		}
		extract.Populate(ev, body)
	}
	if t.metadataJSON != "" {
		ev.CustomMetadataJSON = ucp.String(t.metadataJSON)
	}
}

func (t *Tracker) appName(sig Signal) string {
	if sig.AppName != "" {
		return sig.AppName
	}
	return t.cfg.AppName
}

func header(headers map[string]string, key string) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
