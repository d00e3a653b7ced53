// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Command vaultkeeper is the command-line front end of the Vaultkeeper engine.
//
// # Startup
//
// Every command builds the engine in this order:
//
//  1. Configuration: Koanf v2 (defaults, then YAML file, then VAULTKEEPER_* env)
//  2. Catalog: BadgerDB metadata store (backups, restores, keys, policies)
//  3. Artifacts and codec: local encrypted artifact files, zstd + AES-256-GCM
//  4. Data source: in-memory or DuckDB tenant tables
//  5. Events (optional): watermill bus, forwarded to NATS JetStream when configured
//  6. Cloud (optional): S3 or in-memory remote behind a circuit breaker
//  7. Recovery: non-terminal backups and restores left by a crash are marked FAILED
//
// # Commands
//
//	vaultkeeper serve
//	vaultkeeper backup  create|list|show|sync
//	vaultkeeper restore run|show|list|validate
//	vaultkeeper keys    export|import|rotate|list
//	vaultkeeper config  get|set
//	vaultkeeper prune   [tenant]
//
// Results are printed as JSON. A result with "success": false exits with
// status 1 after printing.
//
// # Example Usage
//
//	export VAULTKEEPER_MASTER_SECRET=$(openssl rand -base64 32)
//	export VAULTKEEPER_CATALOG_DIR=/var/lib/vaultkeeper/catalog
//	export VAULTKEEPER_ARTIFACTS_DIR=/var/lib/vaultkeeper/artifacts
//
//	vaultkeeper backup create acme --type FULL
//	vaultkeeper restore run acme 0b6c...e2 --by ops@example.com
//
// One-shot commands drain queued cloud uploads before exiting. The catalog
// holds an exclusive lock, so run one-shot commands only while serve is stopped.
package main
