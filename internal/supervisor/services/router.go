// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package services

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/middleware"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// healthResponse is the body of /health/ready and /health/live
type healthResponse struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Timestamp     time.Time         `json:"timestamp"`
}

// routerOptions holds the optional NewMetricsRouter settings
type routerOptions struct {
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

// RouterOption configures NewMetricsRouter.
type RouterOption func(*routerOptions)

// WithRateLimit limits each client IP to requests per window.
// requests <= 0 disables limiting, which is also the default.
func WithRateLimit(requests int, window time.Duration) RouterOption {
	return func(o *routerOptions) {
		o.rateLimitRequests = requests
		o.rateLimitWindow = window
	}
}

// NewMetricsRouter serves Prometheus metrics and liveness/readiness probes.
//
// Routes:
//   - GET /metrics
//   - GET /health/live   200 while the process runs
//   - GET /health/ready  200 when every check passes, 503 otherwise
func NewMetricsRouter(checks map[string]HealthCheck, opts ...RouterOption) http.Handler {
	started := time.Now()

	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.RateLimitByIP(o.rateLimitRequests, o.rateLimitWindow))
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
			writeHealth(w, http.StatusOK, healthResponse{
				Status:        "alive",
				UptimeSeconds: time.Since(started).Seconds(),
				Timestamp:     time.Now().UTC(),
			})
		})

		r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
			ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
			defer cancel()

			resp := healthResponse{
				Status:        "ready",
				Checks:        make(map[string]string, len(checks)),
				UptimeSeconds: time.Since(started).Seconds(),
				Timestamp:     time.Now().UTC(),
			}
			status := http.StatusOK

			names := make([]string, 0, len(checks))
			for name := range checks {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "not_ready"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
			writeHealth(w, status, resp)
		})
	})

	return r
}

func writeHealth(w http.ResponseWriter, status int, resp healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode health response")
	}
}
