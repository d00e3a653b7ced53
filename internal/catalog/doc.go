// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package catalog is the BadgerDB-backed system of record for Vaultkeeper.

It stores backup records, restore operations, tenant key versions (sealed)
and tenant backup configs. Artifacts themselves live in the artifact store;
the catalog only records where.

# Consistency

Every mutation is a read-modify-write Badger transaction retried on
badger.ErrConflict. UpdateBackup and UpdateRestore enforce the status state
machines from the models package and refuse to alter the artifact fields of
a COMPLETED backup. Cloud sync fields remain writable after completion.

At most one non-terminal backup and one non-terminal restore exist per
tenant. CreateBackup and CreateRestore return ErrBackupInProgress and
ErrRestoreInProgress otherwise.

# Usage

	cat, err := catalog.Open(catalog.Options{Dir: cfg.Catalog.Dir, SyncWrites: true})
	if err != nil {
	    return err
	}
	defer cat.Close()

	rec, err := cat.UpdateBackup(ctx, id, func(r *models.BackupRecord) error {
	    r.Status = models.BackupStatusEncrypting
	    return nil
	})

Catalog also implements keys.Store.
*/
package catalog
