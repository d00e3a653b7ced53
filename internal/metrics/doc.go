// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package metrics provides Prometheus metrics for the backup engine.

Collectors are package-level promauto variables registered with the default
registry; components call the Record* helpers rather than touching
collectors directly.

# Metrics Endpoint

The daemon exposes metrics at /metrics in Prometheus text format:

	curl http://localhost:9477/metrics

# Available Metrics

Backups:
  - vaultkeeper_backups_total: runs by type and terminal status (counter)
  - vaultkeeper_backup_duration_seconds: run latency by type (histogram)
  - vaultkeeper_backup_size_bytes: encrypted artifact size (histogram)
  - vaultkeeper_backups_in_progress: running backups (gauge)
  - vaultkeeper_backup_incremental_downgrades_total: incremental requests run as full (counter)
  - vaultkeeper_operation_rejections_total: lock rejections by operation and reason (counter)

Restores:
  - vaultkeeper_restores_total: operations by terminal status (counter)
  - vaultkeeper_restore_duration_seconds: operation latency (histogram)
  - vaultkeeper_integrity_failures_total: checksum, decryption and format failures (counter)

Cloud Sync:
  - vaultkeeper_cloud_syncs_total: uploaded, verified or failed (counter)
  - vaultkeeper_cloud_upload_duration_seconds: upload latency (histogram)
  - vaultkeeper_cloud_sync_queue_depth: pending uploads (gauge)
  - vaultkeeper_circuit_breaker_*: breaker state, requests and transitions

Keys:
  - vaultkeeper_key_rotations_total, vaultkeeper_key_bootstraps_total
  - vaultkeeper_key_imports_total: import attempts by result

Maintenance:
  - vaultkeeper_retention_pruned_total, vaultkeeper_retention_runs_total
  - vaultkeeper_events_published_total
  - vaultkeeper_catalog_conflict_retries_total

# Alerting

Integrity failures indicate corruption or key loss and should page:

	increase(vaultkeeper_integrity_failures_total[1h]) > 0

A sustained open circuit breaker means remote storage is unreachable:

	vaultkeeper_circuit_breaker_state{name="cloud-upload"} == 2
*/
package metrics
