// Package server exposes the collection pipeline over HTTP. It is a
// thin layer: request decoding, response encoding, and middleware, with
// no pipeline logic of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/internal/pipeline"
	"github.com/curateworld/eventscout/pkg/types"
)

// Collector is the pipeline surface the server depends on.
type Collector interface {
	Collect(ctx context.Context, q types.Query, opts types.CollectOptions) types.CollectResponse
	Health(ctx context.Context) pipeline.HealthReport
}

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0). The
// server shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg config.ServerConfig, collector Collector) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/{category}", handleEvents(collector))
	mux.HandleFunc("GET /api/health", handleHealth(collector))

	rateLimiter := NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[SERVER] serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownTimeout := cfg.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[SERVER] shutdown error: %v", err)
		}
	}()

	log.Printf("[SERVER] listening on %s", actualAddr)
	return actualAddr, nil
}

// handleEvents serves GET /api/events/{category}. Query parameters:
// location (required), dateRange, limit, minConfidence.
func handleEvents(collector Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		q := types.Query{
			Category:   strings.ToLower(r.PathValue("category")),
			Location:   params.Get("location"),
			DateWindow: params.Get("dateRange"),
		}
		opts := types.CollectOptions{}
		if v := params.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			q.Limit = n
			opts.Limit = n
		}
		if v := params.Get("minConfidence"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "minConfidence must be a number")
				return
			}
			opts.MinConfidence = f
		}

		resp := collector.Collect(r.Context(), q, opts)

		status := http.StatusOK
		if !resp.Success {
			if len(resp.Violations) > 0 {
				status = http.StatusBadRequest
			} else {
				status = http.StatusBadGateway
			}
		}
		writeJSON(w, status, resp)
	}
}

// handleHealth serves GET /api/health.
func handleHealth(collector Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := collector.Health(r.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
