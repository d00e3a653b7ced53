// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"vaultkeeper.yaml",
	"vaultkeeper.yml",
	"/etc/vaultkeeper/config.yaml",
	"/etc/vaultkeeper/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "VAULTKEEPER_CONFIG"

// EnvPrefix is stripped from environment variables before mapping them to config paths.
const EnvPrefix = "VAULTKEEPER_"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Catalog: CatalogConfig{
			Dir:        "/data/vaultkeeper/catalog",
			InMemory:   false,
			SyncWrites: true, // Catalog rows are the source of truth for backup state
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Artifacts: ArtifactsConfig{
			Dir: "/data/vaultkeeper/artifacts",
		},
		Crypto: CryptoConfig{
			MasterSecret:     "",
			ExportWorkFactor: 18,
		},
		Snapshot: SnapshotConfig{
			MaxDecompressedBytes: 4 << 30, // 4GB
		},
		Defaults: DefaultsConfig{
			RetentionCount:    30,
			RetentionDays:     0,
			AutoCloudUpload:   false,
			ScheduleFrequency: "daily",
		},
		Cloud: CloudConfig{
			Enabled:          false,
			Provider:         "s3",
			Prefix:           "vaultkeeper",
			Region:           "us-east-1",
			MaxAttempts:      3,
			QueueSize:        64,
			UploadsPerSecond: 2,
			Breaker: BreakerConfig{
				MaxRequests:      3,
				Interval:         time.Minute,
				Timeout:          2 * time.Minute,
				FailureThreshold: 5,
			},
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Events: EventsConfig{
			Enabled: true,
			NATSURL: "", // In-process only unless set
			Topic:   "vaultkeeper.events",
		},
		DataSource: DataSourceConfig{
			Provider:   "memory",
			DuckDBPath: "",
			Tables:     []string{},
		},
		Server: ServerConfig{
			MetricsAddr:       "127.0.0.1:9470",
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: configPath, or VAULTKEEPER_CONFIG, or the first of DefaultConfigPaths
//  3. Environment Variables: VAULTKEEPER_* (highest priority)
//
// An explicit configPath that does not exist is an error; the fallback paths are optional.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
		}
	} else {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables
	// VAULTKEEPER_CLOUD_BUCKET -> cloud.bucket
	// VAULTKEEPER_LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"datasource.tables",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment names (without the VAULTKEEPER_
// prefix) to koanf config paths.
var envMappings = map[string]string{
	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Catalog
	"catalog_dir":         "catalog.dir",
	"catalog_in_memory":   "catalog.in_memory",
	"catalog_sync_writes": "catalog.sync_writes",
	"catalog_gc_interval": "catalog.gc_interval",
	"catalog_gc_ratio":    "catalog.gc_ratio",

	// Artifacts
	"artifacts_dir": "artifacts.dir",

	// Crypto
	"master_secret":      "crypto.master_secret",
	"export_work_factor": "crypto.export_work_factor",

	// Snapshot
	"max_decompressed_bytes": "snapshot.max_decompressed_bytes",

	// Tenant defaults
	"default_retention_count":    "defaults.retention_count",
	"default_retention_days":     "defaults.retention_days",
	"default_auto_cloud_upload":  "defaults.auto_cloud_upload",
	"default_schedule_frequency": "defaults.schedule_frequency",

	// Cloud
	"cloud_enabled":                   "cloud.enabled",
	"cloud_provider":                  "cloud.provider",
	"cloud_bucket":                    "cloud.bucket",
	"cloud_prefix":                    "cloud.prefix",
	"cloud_region":                    "cloud.region",
	"cloud_endpoint":                  "cloud.endpoint",
	"cloud_access_key":                "cloud.access_key",
	"cloud_secret_key":                "cloud.secret_key",
	"cloud_use_path_style":            "cloud.use_path_style",
	"cloud_max_attempts":              "cloud.max_attempts",
	"cloud_queue_size":                "cloud.queue_size",
	"cloud_uploads_per_second":        "cloud.uploads_per_second",
	"cloud_breaker_max_requests":      "cloud.breaker.max_requests",
	"cloud_breaker_interval":          "cloud.breaker.interval",
	"cloud_breaker_timeout":           "cloud.breaker.timeout",
	"cloud_breaker_failure_threshold": "cloud.breaker.failure_threshold",

	// Retention
	"retention_enabled":  "retention.enabled",
	"retention_interval": "retention.interval",

	// Events
	"events_enabled":  "events.enabled",
	"events_nats_url": "events.nats_url",
	"events_topic":    "events.topic",

	// Data source
	"datasource_provider":    "datasource.provider",
	"datasource_duckdb_path": "datasource.duckdb_path",
	"datasource_tables":      "datasource.tables",

	// Server
	"metrics_addr":        "server.metrics_addr",
	"shutdown_timeout":    "server.shutdown_timeout",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - VAULTKEEPER_LOG_LEVEL -> logging.level
//   - VAULTKEEPER_MASTER_SECRET -> crypto.master_secret
//   - VAULTKEEPER_CLOUD_BREAKER_TIMEOUT -> cloud.breaker.timeout
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys (including VAULTKEEPER_CONFIG) are skipped
	return ""
}
