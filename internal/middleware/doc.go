// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package middleware provides chi-compatible HTTP middleware for the metrics
and health listener.

  - RequestID: propagates or generates X-Request-ID and a correlation id
  - PrometheusMetrics: request count, latency and in-flight gauge per route
  - RateLimitByIP: per-client request budget (go-chi/httprate)

All have the func(http.Handler) http.Handler shape used by chi's Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.RateLimitByIP(300, time.Minute))
*/
package middleware
