// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package config

import (
	"time"

	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// Config holds all engine configuration loaded from defaults, an optional
// YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every optional setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: VAULTKEEPER_* overrides
//
// Configuration Categories:
//
//  1. Storage:
//     - Catalog: Badger directory holding backup, restore, key and config rows
//     - Artifacts: Directory holding encrypted backup artifacts
//
//  2. Crypto:
//     - Crypto: Master secret sealing tenant keys at rest, export work factor
//     - Snapshot: Decompression limit applied during restore
//
//  3. Workflows:
//     - Defaults: Retention and auto-upload for tenants without a stored config
//     - Cloud: Remote store, retry, throttling and circuit breaker
//     - Retention: Scheduled pruning
//     - DataSource: Tenant data provider (memory or DuckDB)
//
//  4. Observability:
//     - Events: Lifecycle event bus (in-process, optional NATS)
//     - Server: Metrics and health listener
//     - Logging: Log level and output format
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Artifacts  ArtifactsConfig  `koanf:"artifacts"`
	Crypto     CryptoConfig     `koanf:"crypto"`
	Snapshot   SnapshotConfig   `koanf:"snapshot"`
	Defaults   DefaultsConfig   `koanf:"defaults"`
	Cloud      CloudConfig      `koanf:"cloud"`
	Retention  RetentionConfig  `koanf:"retention"`
	Events     EventsConfig     `koanf:"events"`
	DataSource DataSourceConfig `koanf:"datasource"`
	Server     ServerConfig     `koanf:"server"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ToLogging converts to the logging package's config.
func (l LoggingConfig) ToLogging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// CatalogConfig holds Badger catalog settings.
// InMemory is intended for tests and throwaway demo runs.
type CatalogConfig struct {
	Dir        string        `koanf:"dir"`
	InMemory   bool          `koanf:"in_memory"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio"`
}

// ArtifactsConfig holds the local artifact store location
type ArtifactsConfig struct {
	Dir string `koanf:"dir"`
}

// CryptoConfig holds key management settings.
// MasterSecret derives the key-encryption key that seals tenant keys in the catalog.
type CryptoConfig struct {
	MasterSecret     string `koanf:"master_secret"`
	ExportWorkFactor int    `koanf:"export_work_factor"`
}

// SnapshotConfig holds artifact decoding limits
type SnapshotConfig struct {
	MaxDecompressedBytes int64 `koanf:"max_decompressed_bytes"`
}

// DefaultsConfig is the backup config applied to tenants that never stored one.
type DefaultsConfig struct {
	RetentionCount    int    `koanf:"retention_count"`
	RetentionDays     int    `koanf:"retention_days"`
	AutoCloudUpload   bool   `koanf:"auto_cloud_upload"`
	ScheduleFrequency string `koanf:"schedule_frequency"`
}

// CloudConfig holds remote storage settings.
//
// Provider values:
//   - s3: any S3-compatible endpoint (AWS, MinIO, R2)
//   - memory: in-process store for local runs and tests
type CloudConfig struct {
	Enabled          bool    `koanf:"enabled"`
	Provider         string  `koanf:"provider"`
	Bucket           string  `koanf:"bucket"`
	Prefix           string  `koanf:"prefix"`
	Region           string  `koanf:"region"`
	Endpoint         string  `koanf:"endpoint"`
	AccessKey        string  `koanf:"access_key"`
	SecretKey        string  `koanf:"secret_key"`
	UsePathStyle     bool    `koanf:"use_path_style"`
	MaxAttempts      int     `koanf:"max_attempts"`
	QueueSize        int     `koanf:"queue_size"`
	UploadsPerSecond float64 `koanf:"uploads_per_second"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig holds circuit breaker settings for remote uploads
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// RetentionConfig holds the scheduled pruning settings
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// EventsConfig holds lifecycle event settings.
// When NATSURL is empty events stay in-process.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic"`
}

// DataSourceConfig selects the tenant data provider
type DataSourceConfig struct {
	Provider   string   `koanf:"provider"`
	DuckDBPath string   `koanf:"duckdb_path"`
	Tables     []string `koanf:"tables"`
}

// ServerConfig holds the metrics and health listener
type ServerConfig struct {
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Per-client-IP request limit for the listener; 0 disables it
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// MaskSecret returns a masked version of a secret for display purposes.
// Shows only the last 4 characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****..." + secret[len(secret)-4:]
}
