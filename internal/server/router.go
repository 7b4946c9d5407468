// Package server assembles the collector's HTTP surface.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ucptrace/ucptrace/internal/auth"
	"github.com/ucptrace/ucptrace/internal/handlers"
	"github.com/ucptrace/ucptrace/internal/middleware"
)

// NewRouter registers the collector API. The verifier may be nil, which
// disables authentication on the signal endpoint.
func NewRouter(h *handlers.SignalHandler, verifier *auth.Verifier) http.Handler {
	mux := http.NewServeMux()

	var signals http.Handler = http.HandlerFunc(h.HandleSignals)
	if verifier != nil {
		signals = verifier.Middleware(signals)
	}
	mux.Handle("/api/v1/signals", signals)

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
