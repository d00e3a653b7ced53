// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package datasource defines how Vaultkeeper reads and writes tenant data.
//
// Implementations:
//   - MemorySource: in-process maps, for tests and demo runs
//   - DuckDBSource: tenant-partitioned tables in a DuckDB database
package datasource
