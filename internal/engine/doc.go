// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package engine is the caller-facing API of Vaultkeeper.

It wraps the backup manager, key manager, config store and cloud syncer
behind one type whose methods return result objects instead of errors for
every expected failure.

# Result Contract

Every mutating call returns a result carrying:
  - Success: true when the operation reached its goal
  - Message: human-readable outcome or failure reason
  - ErrorKind and ErrorCode: the apperr classification on failure

Validation, conflict, dependency, integrity, partial-apply and not-found
failures are reported through the result with a nil error. Only internal
errors (bugs, catalog corruption) are returned as Go errors, and the result
still carries whatever record was written.

# Polling

CreateBackupAsync returns the PENDING record immediately and finishes the
workflow in a goroutine. Callers poll GetBackup until the status is
terminal. Wait blocks until every async backup has finished, which the
serve command uses during shutdown.

# Usage

	eng, err := engine.New(engine.Deps{
	    Backups: manager,
	    Keys:    keyManager,
	    Configs: configStore,
	    Catalog: cat,
	    Syncer:  syncer,
	})

	result, err := eng.CreateBackup(ctx, backup.CreateRequest{
	    TenantID: "school-a",
	    Type:     models.BackupTypeFull,
	})
	if err != nil {
	    return err // internal failure
	}
	if !result.Success {
	    fmt.Println(result.ErrorKind, result.Message)
	}
*/
package engine
