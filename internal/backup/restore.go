// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
restore.go - Restore Engine

This file restores a tenant from one of its COMPLETED backups.

Restore Flow:
 1. Validate the request
 2. Take the tenant restore lock, then the tenant backup lock
 3. Check the target exists, belongs to the tenant and is COMPLETED
 4. Create the REQUESTED operation
 5. SAFETY_BACKUP (optional): MANUAL backup labelled "pre-restore"
 6. VALIDATING: fetch, verify, decrypt and decode the artifact
 7. APPLYING: REPLACE for full captures, MERGE for incrementals
 8. COMPLETED

Rollback:
A failed or partial apply re-applies the safety backup in REPLACE mode and
ends ROLLED_BACK. Without a safety backup, or when the rollback itself
fails, the operation ends FAILED with a warning that tenant data may be in
a mixed state.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/datasource"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/validation"
)

// Warnings recorded on restore operations
const (
	warnMixedState       = "tenant data may be in a mixed state: the restore was partially applied and not rolled back"
	warnRollbackFailed   = "rollback from the safety backup failed"
	warnNoSafetyBackup   = "no safety backup was taken"
	warnRolledBackFormat = "restore failed and tenant data was rolled back to safety backup %s"
)

// Restore restores a tenant from a COMPLETED backup.
//
// Validation, lock and target errors are returned with a nil operation and
// no state change. Once the operation exists its terminal record is returned,
// together with the error when it did not complete.
func (m *Manager) Restore(ctx context.Context, req RestoreRequest) (*models.RestoreOperation, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordRejection("restore", "invalid_request")
		return nil, verr.AppError()
	}

	releaseRestore, ok := m.restoreLocks.TryLock(req.TenantID)
	if !ok {
		metrics.RecordRejection("restore", "in_progress")
		return nil, apperr.Wrapf(ErrRestoreInProgress, "tenant %s", req.TenantID)
	}
	defer releaseRestore()

	releaseBackup, ok := m.backupLocks.TryLock(req.TenantID)
	if !ok {
		metrics.RecordRejection("restore", "backup_in_progress")
		return nil, apperr.Wrapf(ErrBackupInProgress, "tenant %s has a backup running", req.TenantID)
	}
	defer releaseBackup()

	target, err := m.loadUsableBackup(ctx, req.TenantID, req.BackupID)
	if err != nil {
		return nil, err
	}

	op := &models.RestoreOperation{
		ID:             newID(),
		TenantID:       req.TenantID,
		SourceBackupID: target.ID,
		Status:         models.RestoreStatusRequested,
		RequestedBy:    req.RequestedBy,
		StartedAt:      m.now(),
	}
	if err := m.catalog.CreateRestore(ctx, op); err != nil {
		if errors.Is(err, ErrRestoreInProgress) {
			metrics.RecordRejection("restore", "in_progress")
			return nil, err
		}
		return nil, fmt.Errorf("failed to create restore operation: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", op.TenantID).
		Str("restore_id", op.ID).
		Str("backup_id", target.ID).
		Bool("safety_backup", req.CreateSafetyBackup).
		Str("requested_by", op.RequestedBy).
		Msg("Restore started")

	return m.runRestore(ctx, op, target, req)
}

// loadUsableBackup returns the tenant's backup if it is COMPLETED.
func (m *Manager) loadUsableBackup(ctx context.Context, tenantID, backupID string) (*models.BackupRecord, error) {
	rec, err := m.catalog.GetBackup(ctx, backupID)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && rec.TenantID != tenantID) {
		return nil, apperr.Wrapf(ErrBackupNotFound, "backup %s for tenant %s", backupID, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	if rec.Status != models.BackupStatusCompleted {
		return nil, apperr.Wrapf(ErrBackupNotUsable, "backup %s is %s", backupID, rec.Status)
	}
	return rec, nil
}

// runRestore drives a REQUESTED operation to a terminal status.
// Both tenant locks are held by the caller.
func (m *Manager) runRestore(ctx context.Context, op *models.RestoreOperation, target *models.BackupRecord, req RestoreRequest) (*models.RestoreOperation, error) {
	log := logging.Ctx(ctx).With().
		Str("tenant_id", op.TenantID).
		Str("restore_id", op.ID).
		Str("backup_id", target.ID).
		Logger()

	advance := func(fn func(o *models.RestoreOperation)) error {
		updated, err := m.catalog.UpdateRestore(ctx, op.ID, func(o *models.RestoreOperation) error {
			fn(o)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to update restore operation: %w", err)
		}
		op = updated
		return nil
	}

	// SAFETY_BACKUP
	var safety *models.BackupRecord
	if req.CreateSafetyBackup {
		if err := advance(func(o *models.RestoreOperation) {
			o.Status = models.RestoreStatusSafetyBackup
		}); err != nil {
			return m.failRestore(ctx, log, op, err, nil)
		}

		rec, err := m.safetyBackup(ctx, op.TenantID, op.RequestedBy)
		if err != nil {
			return m.failRestore(ctx, log, op, apperr.Wrap(ErrSafetyBackupFailed, err), nil)
		}
		safety = rec
		log.Info().Str("safety_backup_id", safety.ID).Msg("Safety backup completed")
	}

	// VALIDATING
	if err := advance(func(o *models.RestoreOperation) {
		o.Status = models.RestoreStatusValidating
		if safety != nil {
			o.SafetyBackupID = safety.ID
		}
	}); err != nil {
		return m.failRestore(ctx, log, op, err, nil)
	}

	loaded, err := m.loadArtifact(ctx, target)
	if err != nil {
		return m.failRestore(ctx, log, op, err, nil)
	}

	// APPLYING
	if err := advance(func(o *models.RestoreOperation) {
		o.Status = models.RestoreStatusApplying
	}); err != nil {
		return m.failRestore(ctx, log, op, err, nil)
	}

	mode := applyModeFor(target.Type)
	result, applyErr := m.source.Apply(ctx, op.TenantID, loaded.artifact.Entities, mode)
	if applyErr != nil || result.Partial() {
		return m.rollback(ctx, log, op, safety, result, applyErr)
	}

	// COMPLETED
	completed, err := m.catalog.UpdateRestore(context.WithoutCancel(ctx), op.ID, func(o *models.RestoreOperation) error {
		completedAt := m.now()
		o.Status = models.RestoreStatusCompleted
		o.AppliedCounts = result.Applied
		o.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		// Data is fully applied; only the record is stale
		return m.failRestore(ctx, log, op, fmt.Errorf("failed to complete restore operation: %w", err), nil)
	}
	op = completed

	duration := m.now().Sub(op.StartedAt)
	metrics.RecordRestore(string(op.Status), duration)
	log.Info().
		Str("mode", string(mode)).
		Str("source", string(loaded.source)).
		Dur("duration", duration).
		Msg("Restore completed")

	m.publisher.Publish(ctx, events.Event{
		Type:      events.RestoreCompleted,
		TenantID:  op.TenantID,
		BackupID:  op.SourceBackupID,
		RestoreID: op.ID,
		Status:    string(op.Status),
	})
	return op, nil
}

// safetyBackup takes a MANUAL backup while the caller holds the backup lock.
func (m *Manager) safetyBackup(ctx context.Context, tenantID, requestedBy string) (*models.BackupRecord, error) {
	p, err := m.begin(ctx, CreateRequest{
		TenantID:  tenantID,
		Type:      models.BackupTypeManual,
		Label:     SafetyBackupLabel,
		CreatedBy: requestedBy,
	}, func() {})
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// applyModeFor returns REPLACE for full captures and MERGE for incrementals.
func applyModeFor(t models.BackupType) datasource.ApplyMode {
	if t.IsFullCapture() {
		return datasource.ApplyReplace
	}
	return datasource.ApplyMerge
}

// rollback handles a failed or partial apply.
func (m *Manager) rollback(ctx context.Context, log zerolog.Logger, op *models.RestoreOperation, safety *models.BackupRecord,
	result datasource.ApplyResult, applyErr error,
) (*models.RestoreOperation, error) {
	ctx = context.WithoutCancel(ctx)
	cause := applyFailure(result, applyErr)

	if safety == nil {
		return m.failRestore(ctx, log, op, cause, &result, warnMixedState, warnNoSafetyBackup)
	}

	log.Warn().Err(cause).Str("safety_backup_id", safety.ID).Msg("Restore apply failed, rolling back to safety backup")

	rollbackErr := m.reapply(ctx, safety)
	if rollbackErr != nil {
		log.Error().Err(rollbackErr).Str("safety_backup_id", safety.ID).Msg("Rollback failed")
		return m.failRestore(ctx, log, op, cause, &result,
			warnMixedState, fmt.Sprintf("%s: %v", warnRollbackFailed, rollbackErr))
	}

	rolledBack, err := m.catalog.UpdateRestore(ctx, op.ID, func(o *models.RestoreOperation) error {
		completedAt := m.now()
		o.Status = models.RestoreStatusRolledBack
		o.AppliedCounts = result.Applied
		o.EntityErrors = result.EntityErrors
		o.ErrorMessage = cause.Error()
		o.ErrorKind = string(apperr.KindOf(cause))
		o.Warnings = append(o.Warnings, fmt.Sprintf(warnRolledBackFormat, safety.ID))
		o.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record rollback")
		rolledBack = op.Clone()
		rolledBack.Status = models.RestoreStatusRolledBack
		rolledBack.ErrorMessage = cause.Error()
		rolledBack.ErrorKind = string(apperr.KindOf(cause))
	}

	metrics.RecordRestore(string(models.RestoreStatusRolledBack), m.now().Sub(op.StartedAt))
	log.Warn().Err(cause).Str("safety_backup_id", safety.ID).Msg("Restore rolled back")

	m.publisher.Publish(ctx, events.Event{
		Type:      events.RestoreRolledBack,
		TenantID:  op.TenantID,
		BackupID:  op.SourceBackupID,
		RestoreID: op.ID,
		Status:    string(models.RestoreStatusRolledBack),
		ErrorKind: rolledBack.ErrorKind,
		Message:   rolledBack.ErrorMessage,
	})
	return rolledBack, cause
}

// reapply restores the safety backup in REPLACE mode.
func (m *Manager) reapply(ctx context.Context, safety *models.BackupRecord) error {
	loaded, err := m.loadArtifact(ctx, safety)
	if err != nil {
		return err
	}
	result, err := m.source.Apply(ctx, safety.TenantID, loaded.artifact.Entities, datasource.ApplyReplace)
	if err != nil || result.Partial() {
		return applyFailure(result, err)
	}
	return nil
}

// applyFailure classifies a failed Apply as ErrPartialApply.
func applyFailure(result datasource.ApplyResult, applyErr error) error {
	if applyErr != nil {
		return apperr.Wrap(ErrPartialApply, applyErr)
	}
	names := make([]string, 0, len(result.EntityErrors))
	for name := range result.EntityErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+result.EntityErrors[name])
	}
	return apperr.Wrapf(ErrPartialApply, "%d entities failed: %s", len(names), strings.Join(parts, "; "))
}

// failRestore marks the operation FAILED. applied carries per-entity
// outcomes when the failure happened during apply.
func (m *Manager) failRestore(ctx context.Context, log zerolog.Logger, op *models.RestoreOperation, cause error,
	applied *datasource.ApplyResult, warnings ...string,
) (*models.RestoreOperation, error) {
	ctx = context.WithoutCancel(ctx)
	kind := apperr.KindOf(cause)

	failed, err := m.catalog.UpdateRestore(ctx, op.ID, func(o *models.RestoreOperation) error {
		completedAt := m.now()
		o.Status = models.RestoreStatusFailed
		o.ErrorMessage = cause.Error()
		o.ErrorKind = string(kind)
		o.Warnings = append(o.Warnings, warnings...)
		if applied != nil {
			o.AppliedCounts = applied.Applied
			o.EntityErrors = applied.EntityErrors
		}
		o.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record restore failure")
		failed = op.Clone()
		failed.Status = models.RestoreStatusFailed
		failed.ErrorMessage = cause.Error()
		failed.ErrorKind = string(kind)
		failed.Warnings = append(failed.Warnings, warnings...)
	}

	metrics.RecordRestore(string(models.RestoreStatusFailed), m.now().Sub(op.StartedAt))
	reportFailure(log, cause, "Restore failed")
	for _, w := range warnings {
		log.Warn().Str("warning", w).Msg("Restore warning")
	}

	m.publisher.Publish(ctx, events.Event{
		Type:      events.RestoreFailed,
		TenantID:  op.TenantID,
		BackupID:  op.SourceBackupID,
		RestoreID: op.ID,
		Status:    string(failed.Status),
		ErrorKind: failed.ErrorKind,
		Message:   failed.ErrorMessage,
	})
	return failed, cause
}
