// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package backup orchestrates tenant backups and restores.

The Manager drives two state machines and persists every step in the Catalog:

Backup:

	PENDING -> SNAPSHOTTING -> ENCRYPTING -> STORED -> COMPLETED
	   any non-terminal status -> FAILED

Restore:

	REQUESTED -> [SAFETY_BACKUP] -> VALIDATING -> APPLYING -> COMPLETED
	   APPLYING -> ROLLED_BACK (safety backup re-applied)
	   any non-terminal status -> FAILED

Concurrency:

Each tenant has a backup lock and a restore lock, both acquired without
blocking. A second backup for a tenant fails fast with ErrBackupInProgress.
A restore holds both locks for its whole run, so no backup reads a dataset
that is being replaced. The Catalog rejects a second non-terminal record in
the same transaction that creates it, which also covers other processes.

Terminal writes use context.WithoutCancel: a caller that gives up still
leaves the record FAILED, never stuck in an intermediate status.

Restore Safety:

Before any data is written the artifact is fetched (falling back to the
cloud copy), its checksum verified, decrypted with the key version recorded
on the backup, and its header checked against the tenant. A failed apply
re-applies the safety backup when one was taken; otherwise the operation
fails with a warning that tenant data may be mixed.

Retention:

The Pruner deletes completed backups outside each tenant's keep-set (newest
RetentionCount, plus anything newer than RetentionDays) together with old
FAILED records. Backups referenced by a running restore are never pruned.

Recovery:

RecoverInterrupted marks records left non-terminal by a crash as FAILED so
no tenant stays locked after a restart.

Usage:

	mgr, err := backup.NewManager(backup.Deps{
	    Catalog:   cat,
	    Keys:      keyManager,
	    Codec:     c,
	    Source:    source,
	    Artifacts: store,
	    Configs:   tenantConfigs,
	    SyncQueue: worker,
	    Remote:    remote,
	    Publisher: bus,
	})

	rec, err := mgr.CreateBackup(ctx, backup.CreateRequest{
	    TenantID: "school-a",
	    Type:     models.BackupTypeFull,
	})

	op, err := mgr.Restore(ctx, backup.RestoreRequest{
	    TenantID:           "school-a",
	    BackupID:           rec.ID,
	    CreateSafetyBackup: true,
	})
*/
package backup
