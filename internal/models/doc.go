// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package models defines the durable records of the backup engine.

Every record is partitioned by tenant and persisted by the catalog package.
Models carry no behavior beyond status helpers and state machine rules.

Records:

  - BackupRecord: one orchestration run producing one encrypted artifact
  - RestoreOperation: one restore request and its progress
  - EncryptionKey: one version in a tenant's append-only key log
  - BackupConfig: per-tenant retention and upload settings

Backup state machine:

	PENDING → SNAPSHOTTING → ENCRYPTING → STORED → COMPLETED
	   └───────────┴─────────────┴──────────┴──────→ FAILED

Restore state machine:

	REQUESTED → [SAFETY_BACKUP] → VALIDATING → APPLYING → COMPLETED
	     └──────────┴──────────────────┴───────────┴────→ FAILED
	                                               └────→ ROLLED_BACK

Checksum and KeyVersion on a BackupRecord are assigned at STORED and never
change afterwards. CanTransitionBackup and CanTransitionRestore encode the
legal edges; the catalog refuses anything else.
*/
package models
