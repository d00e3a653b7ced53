// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// RecoverInterrupted fails every backup and restore left non-terminal by a
// previous process. Call it once at startup, before serving requests.
//
// Interrupted backups lose any artifact they wrote. An interrupted restore
// that had reached APPLYING is flagged as possibly mixed.
func (m *Manager) RecoverInterrupted(ctx context.Context) (*RecoveryResult, error) {
	result := &RecoveryResult{}
	var errs []error

	backups, err := m.catalog.ListNonTerminalBackups(ctx)
	if err != nil {
		return result, err
	}
	for i := range backups {
		rec := &backups[i]
		if m.backupLocks.Held(rec.TenantID) {
			continue
		}
		if rec.StorageLocation != "" {
			if err := m.artifacts.Delete(rec.StorageLocation); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("backup_id", rec.ID).Msg("Failed to remove artifact of interrupted backup")
			}
		}
		_, err := m.catalog.UpdateBackup(ctx, rec.ID, func(r *models.BackupRecord) error {
			r.Status = models.BackupStatusFailed
			r.ErrorMessage = InterruptedMessage
			r.ErrorKind = string(apperr.KindInternal)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("backup %s: %w", rec.ID, err))
			continue
		}
		result.Backups++
		logging.Ctx(ctx).Warn().
			Str("tenant_id", rec.TenantID).
			Str("backup_id", rec.ID).
			Str("status", string(rec.Status)).
			Msg("Interrupted backup marked failed")
	}

	restores, err := m.catalog.ListNonTerminalRestores(ctx)
	if err != nil {
		return result, errors.Join(append(errs, err)...)
	}
	for i := range restores {
		op := &restores[i]
		if m.restoreLocks.Held(op.TenantID) {
			continue
		}
		wasApplying := op.Status == models.RestoreStatusApplying
		_, err := m.catalog.UpdateRestore(ctx, op.ID, func(o *models.RestoreOperation) error {
			completedAt := m.now()
			o.Status = models.RestoreStatusFailed
			o.ErrorMessage = InterruptedMessage
			o.ErrorKind = string(apperr.KindInternal)
			if wasApplying {
				o.Warnings = append(o.Warnings, warnMixedState)
			}
			o.CompletedAt = &completedAt
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", op.ID, err))
			continue
		}
		result.Restores++
		logging.Ctx(ctx).Warn().
			Str("tenant_id", op.TenantID).
			Str("restore_id", op.ID).
			Str("status", string(op.Status)).
			Bool("mixed_state", wasApplying).
			Msg("Interrupted restore marked failed")
	}

	return result, errors.Join(errs...)
}
