// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package config provides centralized configuration management for Vaultkeeper.

Configuration is loaded with Koanf v2 from three layers, later layers
overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: the --config flag, VAULTKEEPER_CONFIG, or the
    first of vaultkeeper.yaml, vaultkeeper.yml, /etc/vaultkeeper/config.yaml
 3. VAULTKEEPER_* environment variables, mapped through an explicit table

# Example File

	logging:
	  level: info
	  format: json
	catalog:
	  dir: /data/vaultkeeper/catalog
	artifacts:
	  dir: /data/vaultkeeper/artifacts
	crypto:
	  master_secret: ""        # prefer VAULTKEEPER_MASTER_SECRET
	defaults:
	  retention_count: 30
	  schedule_frequency: daily
	cloud:
	  enabled: true
	  provider: s3
	  bucket: school-backups
	  prefix: vaultkeeper
	  endpoint: https://minio.internal:9000
	  use_path_style: true
	  max_attempts: 3
	retention:
	  enabled: true
	  interval: 1h
	events:
	  enabled: true
	  nats_url: nats://127.0.0.1:4222
	datasource:
	  provider: duckdb
	  duckdb_path: /data/tenants.duckdb
	  tables: [students, courses, enrollments]
	server:
	  metrics_addr: 127.0.0.1:9470
	  rate_limit_requests: 300   # per client IP; 0 disables
	  rate_limit_window: 1m

# Environment Variables

Commonly overridden:
  - VAULTKEEPER_MASTER_SECRET: seals tenant keys at rest (required)
  - VAULTKEEPER_LOG_LEVEL, VAULTKEEPER_LOG_FORMAT
  - VAULTKEEPER_CATALOG_DIR, VAULTKEEPER_ARTIFACTS_DIR
  - VAULTKEEPER_CLOUD_ENABLED, VAULTKEEPER_CLOUD_BUCKET, VAULTKEEPER_CLOUD_ACCESS_KEY, VAULTKEEPER_CLOUD_SECRET_KEY
  - VAULTKEEPER_DATASOURCE_TABLES: comma-separated table list

See envMappings in koanf.go for the complete list.

# Validation

Validate checks every section and joins all problems into one error, so a
misconfigured deployment reports everything at once.
*/
package config
