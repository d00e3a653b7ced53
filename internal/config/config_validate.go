// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// MinMasterSecretLength is the shortest accepted master secret.
const MinMasterSecretLength = 16

// Validate checks that required configuration is present and valid.
// Every section is checked and all problems are returned together.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateLogging(),
		c.validateCatalog(),
		c.validateArtifacts(),
		c.validateCrypto(),
		c.validateSnapshot(),
		c.validateDefaults(),
		c.validateCloud(),
		c.validateRetention(),
		c.validateEvents(),
		c.validateDataSource(),
		c.validateServer(),
	)
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, disabled")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if !c.Catalog.InMemory && c.Catalog.Dir == "" {
		return fmt.Errorf("catalog.dir is required unless catalog.in_memory is set")
	}
	if c.Catalog.GCRatio <= 0 || c.Catalog.GCRatio >= 1 {
		return fmt.Errorf("catalog.gc_ratio must be between 0 and 1 (exclusive), got %v", c.Catalog.GCRatio)
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	return nil
}

func (c *Config) validateCrypto() error {
	if len(c.Crypto.MasterSecret) < MinMasterSecretLength {
		return fmt.Errorf("crypto.master_secret must be at least %d characters (set VAULTKEEPER_MASTER_SECRET)", MinMasterSecretLength)
	}
	// age rejects scrypt work factors outside 1..30; below 10 is not worth protecting with
	if c.Crypto.ExportWorkFactor < 10 || c.Crypto.ExportWorkFactor > 22 {
		return fmt.Errorf("crypto.export_work_factor must be between 10 and 22, got %d", c.Crypto.ExportWorkFactor)
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	if c.Snapshot.MaxDecompressedBytes <= 0 {
		return fmt.Errorf("snapshot.max_decompressed_bytes must be positive")
	}
	return nil
}

// validScheduleFrequencies mirrors models.ScheduleFrequency
var validScheduleFrequencies = map[string]bool{
	"manual":  true,
	"hourly":  true,
	"daily":   true,
	"weekly":  true,
	"monthly": true,
}

func (c *Config) validateDefaults() error {
	d := c.Defaults
	if d.RetentionCount < 0 || d.RetentionCount > 1000 {
		return fmt.Errorf("defaults.retention_count must be between 0 and 1000, got %d", d.RetentionCount)
	}
	if d.RetentionDays < 0 || d.RetentionDays > 3650 {
		return fmt.Errorf("defaults.retention_days must be between 0 and 3650, got %d", d.RetentionDays)
	}
	if !validScheduleFrequencies[d.ScheduleFrequency] {
		return fmt.Errorf("defaults.schedule_frequency must be one of: manual, hourly, daily, weekly, monthly")
	}
	return nil
}

func (c *Config) validateCloud() error {
	cl := c.Cloud
	if !cl.Enabled {
		return nil
	}

	switch cl.Provider {
	case "memory":
	case "s3":
		if cl.Bucket == "" {
			return fmt.Errorf("cloud.bucket is required when cloud.provider=s3")
		}
		if cl.Endpoint != "" {
			if err := validateHTTPURL(cl.Endpoint, "cloud.endpoint"); err != nil {
				return err
			}
		}
		if (cl.AccessKey == "") != (cl.SecretKey == "") {
			return fmt.Errorf("cloud.access_key and cloud.secret_key must be set together")
		}
	default:
		return fmt.Errorf("cloud.provider must be one of: s3, memory")
	}

	if strings.HasPrefix(cl.Prefix, "/") || strings.HasSuffix(cl.Prefix, "/") {
		return fmt.Errorf("cloud.prefix must not start or end with '/'")
	}
	if cl.MaxAttempts < 1 || cl.MaxAttempts > 10 {
		return fmt.Errorf("cloud.max_attempts must be between 1 and 10, got %d", cl.MaxAttempts)
	}
	if cl.QueueSize < 1 {
		return fmt.Errorf("cloud.queue_size must be at least 1")
	}
	if cl.UploadsPerSecond <= 0 {
		return fmt.Errorf("cloud.uploads_per_second must be positive")
	}
	if cl.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("cloud.breaker.failure_threshold must be at least 1")
	}
	if cl.Breaker.Timeout <= 0 {
		return fmt.Errorf("cloud.breaker.timeout must be positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive when retention is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled || c.Events.NATSURL == "" {
		return nil
	}
	u, err := url.Parse(c.Events.NATSURL)
	if err != nil {
		return fmt.Errorf("events.nats_url is invalid: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("events.nats_url must use nats:// or tls:// scheme, got %q", u.Scheme)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required when events.nats_url is set")
	}
	return nil
}

func (c *Config) validateDataSource() error {
	switch c.DataSource.Provider {
	case "memory":
		return nil
	case "duckdb":
		if len(c.DataSource.Tables) == 0 {
			return fmt.Errorf("datasource.tables is required when datasource.provider=duckdb")
		}
		for _, t := range c.DataSource.Tables {
			if !isIdentifier(t) {
				return fmt.Errorf("datasource.tables contains invalid table name %q", t)
			}
		}
		return nil
	default:
		return fmt.Errorf("datasource.provider must be one of: memory, duckdb")
	}
}

func (c *Config) validateServer() error {
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("server.rate_limit_requests must be >= 0")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}

// validateHTTPURL validates that a URL is well-formed with an http(s) scheme and host
func validateHTTPURL(rawURL, fieldName string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}

// isIdentifier reports whether s is a plain SQL identifier.
// Table names are interpolated into queries, so anything else is rejected.
func isIdentifier(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
