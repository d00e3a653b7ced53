// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package services provides suture.Service wrappers for Vaultkeeper's
long-running components that do not already implement Serve(ctx).

# Available Services

BadgerGCService:
  - Periodic value-log GC on the catalog (RunGC)
  - GC errors are logged, never returned

HTTPServerService:
  - Wraps *http.Server with graceful shutdown
  - Usually serves NewMetricsRouter

NewMetricsRouter builds the chi router for /metrics, /health/live and
/health/ready. Readiness runs every registered HealthCheck with a 5s budget.

Components with their own Serve method (cloud.Worker, backup.Pruner,
events.AuditLogger) are added to the tree directly.
*/
package services
