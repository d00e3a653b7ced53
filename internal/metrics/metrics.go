// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels never carry tenant ids; per-tenant state lives in the catalog.

var (
	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_backups_total",
			Help: "Total number of backup runs by type and terminal status",
		},
		[]string{"type", "status"},
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_backup_duration_seconds",
			Help:    "Duration of backup runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"type"},
	)

	BackupSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_backup_size_bytes",
			Help:    "Size of encrypted backup artifacts",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12), // 1KiB .. 4GiB
		},
	)

	BackupsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultkeeper_backups_in_progress",
			Help: "Number of backup runs currently executing",
		},
	)

	BackupDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_backup_incremental_downgrades_total",
			Help: "Incremental requests performed as full captures because no prior completed backup existed",
		},
	)

	BackupRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_operation_rejections_total",
			Help: "Requests rejected because a conflicting operation was running",
		},
		[]string{"operation", "reason"},
	)

	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_restores_total",
			Help: "Total number of restore operations by terminal status",
		},
		[]string{"status"},
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_restore_duration_seconds",
			Help:    "Duration of restore operations in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
	)

	IntegrityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_integrity_failures_total",
			Help: "Checksum, decryption and format failures requiring operator attention",
		},
		[]string{"code"},
	)

	// Cloud Sync Metrics
	CloudSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_cloud_syncs_total",
			Help: "Total cloud sync attempts by outcome",
		},
		[]string{"result"}, // "uploaded", "verified", "failed"
	)

	CloudUploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_cloud_upload_duration_seconds",
			Help:    "Duration of artifact uploads to remote storage",
			Buckets: prometheus.DefBuckets,
		},
	)

	CloudSyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultkeeper_cloud_sync_queue_depth",
			Help: "Backups waiting for cloud upload",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultkeeper_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Key Metrics
	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_key_rotations_total",
			Help: "Total number of tenant key rotations",
		},
	)

	KeyBootstraps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_key_bootstraps_total",
			Help: "Total number of tenant key namespaces created on first use",
		},
	)

	KeyImports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_key_imports_total",
			Help: "Total key import attempts by outcome",
		},
		[]string{"result"}, // "ok", "conflict", "invalid", "tenant_not_found", "error"
	)

	// Retention Metrics
	RetentionPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_retention_pruned_total",
			Help: "Total number of backups removed by retention",
		},
	)

	RetentionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_retention_runs_total",
			Help: "Total retention sweeps by outcome",
		},
		[]string{"result"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_events_published_total",
			Help: "Lifecycle events published by topic and outcome",
		},
		[]string{"topic", "result"},
	)

	// Catalog Metrics
	CatalogConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultkeeper_catalog_conflict_retries_total",
			Help: "Catalog transactions retried after a write conflict",
		},
	)

	// HTTP Metrics (metrics and health endpoints)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultkeeper_http_requests_total",
			Help: "Requests served by the metrics and health listener",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultkeeper_http_request_duration_seconds",
			Help:    "Latency of the metrics and health listener",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultkeeper_http_requests_in_flight",
			Help: "Requests currently being served",
		},
	)
)

// RecordBackup records a finished backup run
func RecordBackup(backupType, status string, duration time.Duration, sizeBytes int64) {
	BackupsTotal.WithLabelValues(backupType, status).Inc()
	BackupDuration.WithLabelValues(backupType).Observe(duration.Seconds())
	if sizeBytes > 0 {
		BackupSizeBytes.Observe(float64(sizeBytes))
	}
}

// TrackBackupInProgress tracks running backups
func TrackBackupInProgress(inc bool) {
	if inc {
		BackupsInProgress.Inc()
	} else {
		BackupsInProgress.Dec()
	}
}

// RecordDowngrade records an incremental request performed as a full capture
func RecordDowngrade() {
	BackupDowngrades.Inc()
}

// RecordRejection records a request rejected by a tenant lock
func RecordRejection(operation, reason string) {
	BackupRejections.WithLabelValues(operation, reason).Inc()
}

// RecordRestore records a finished restore operation
func RecordRestore(status string, duration time.Duration) {
	RestoresTotal.WithLabelValues(status).Inc()
	RestoreDuration.Observe(duration.Seconds())
}

// RecordIntegrityFailure records a failure that implies corruption or key loss
func RecordIntegrityFailure(code string) {
	IntegrityFailures.WithLabelValues(code).Inc()
}

// RecordCloudSync records a cloud sync outcome
func RecordCloudSync(result string) {
	CloudSyncsTotal.WithLabelValues(result).Inc()
}

// RecordCloudUpload records upload latency
func RecordCloudUpload(duration time.Duration) {
	CloudUploadDuration.Observe(duration.Seconds())
}

// SetCloudSyncQueueDepth updates the pending upload gauge
func SetCloudSyncQueueDepth(depth int) {
	CloudSyncQueueDepth.Set(float64(depth))
}

// RecordKeyRotation records a key rotation
func RecordKeyRotation() {
	KeyRotations.Inc()
}

// RecordKeyBootstrap records a first-use key creation
func RecordKeyBootstrap() {
	KeyBootstraps.Inc()
}

// RecordKeyImport records a key import outcome
func RecordKeyImport(result string) {
	KeyImports.WithLabelValues(result).Inc()
}

// RecordRetentionRun records a retention sweep and how many backups it removed
func RecordRetentionRun(pruned int, err error) {
	RetentionPruned.Add(float64(pruned))
	if err != nil {
		RetentionRuns.WithLabelValues("error").Inc()
		return
	}
	RetentionRuns.WithLabelValues("ok").Inc()
}

// RecordEventPublish records a lifecycle event publish
func RecordEventPublish(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordCatalogConflictRetry records a retried catalog transaction
func RecordCatalogConflictRetry() {
	CatalogConflictRetries.Inc()
}

// RecordHTTPRequest records one served request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// TrackHTTPInFlight tracks requests being served
func TrackHTTPInFlight(inc bool) {
	if inc {
		HTTPRequestsInFlight.Inc()
	} else {
		HTTPRequestsInFlight.Dec()
	}
}
