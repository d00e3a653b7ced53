// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"
	"fmt"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// CreateBackup runs a backup to completion.
func (e *Engine) CreateBackup(ctx context.Context, req backup.CreateRequest) (*BackupResult, error) {
	rec, err := e.backups.CreateBackup(ctx, req)
	if err != nil {
		out, ierr := classify(err)
		return &BackupResult{Outcome: out, Backup: rec}, ierr
	}
	return &BackupResult{Outcome: succeeded(backupMessage(rec)), Backup: rec}, nil
}

// CreateBackupAsync starts a backup and returns its PENDING record.
// Poll GetBackup for the outcome.
func (e *Engine) CreateBackupAsync(ctx context.Context, req backup.CreateRequest) (*BackupResult, error) {
	pending, err := e.backups.BeginBackup(ctx, req)
	if err != nil {
		out, ierr := classify(err)
		return &BackupResult{Outcome: out}, ierr
	}

	runCtx := context.WithoutCancel(ctx)
	e.async.Add(1)
	go func() {
		defer e.async.Done()
		rec, err := pending.Run(runCtx)
		if err != nil && !apperr.IsExpected(err) {
			logging.Ctx(runCtx).Error().Err(err).
				Str("tenant_id", req.TenantID).
				Str("backup_id", pending.Record.ID).
				Msg("Async backup failed")
			return
		}
		if rec != nil {
			logging.Ctx(runCtx).Debug().
				Str("backup_id", rec.ID).
				Str("status", string(rec.Status)).
				Msg("Async backup finished")
		}
	}()

	return &BackupResult{
		Outcome: succeeded("Backup started"),
		Backup:  pending.Record,
	}, nil
}

// GetBackup returns one of the tenant's backups.
func (e *Engine) GetBackup(ctx context.Context, tenantID, backupID string) (*BackupResult, error) {
	rec, err := e.loadBackup(ctx, tenantID, backupID)
	if err != nil {
		out, ierr := classify(err)
		return &BackupResult{Outcome: out}, ierr
	}
	return &BackupResult{Outcome: succeeded(string(rec.Status)), Backup: rec}, nil
}

// ListBackups returns the tenant's backups newest first. limit <= 0 returns all.
func (e *Engine) ListBackups(ctx context.Context, tenantID string, limit int) ([]models.BackupRecord, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	return e.catalog.ListBackups(ctx, tenantID, limit)
}

// ValidateBackup runs the restore pre-checks without touching tenant data.
func (e *Engine) ValidateBackup(ctx context.Context, tenantID, backupID string) (*ValidateResult, error) {
	result, err := e.backups.ValidateOnly(ctx, tenantID, backupID)
	if err != nil {
		out, ierr := classify(err)
		return &ValidateResult{Outcome: out}, ierr
	}
	return &ValidateResult{
		Outcome:    succeeded(fmt.Sprintf("Backup is restorable (%d records, %s copy)", result.Header.TotalRecords, result.Source)),
		Validation: result,
	}, nil
}

// SyncToCloud uploads one of the tenant's completed backups now.
func (e *Engine) SyncToCloud(ctx context.Context, tenantID, backupID string) (*SyncResult, error) {
	if e.syncer == nil {
		out, ierr := classify(ErrCloudNotConfigured)
		return &SyncResult{Outcome: out}, ierr
	}
	if _, err := e.loadBackup(ctx, tenantID, backupID); err != nil {
		out, ierr := classify(err)
		return &SyncResult{Outcome: out}, ierr
	}

	result, err := e.syncer.SyncToCloud(logging.ContextWithTenant(ctx, tenantID), backupID)
	if err != nil {
		out, ierr := classify(err)
		return &SyncResult{Outcome: out, Sync: result}, ierr
	}

	message := "Backup uploaded"
	if !result.Uploaded {
		message = "Backup already in cloud storage"
	}
	return &SyncResult{Outcome: succeeded(message), Sync: result}, nil
}

// PruneTenant applies the tenant's retention policy now.
func (e *Engine) PruneTenant(ctx context.Context, tenantID string) (*PruneResult, error) {
	result, err := e.backups.PruneTenant(ctx, tenantID)
	if err != nil {
		out, ierr := classify(err)
		return &PruneResult{Outcome: out, Prune: result}, ierr
	}
	return &PruneResult{
		Outcome: succeeded(fmt.Sprintf("Pruned %d backups, kept %d", len(result.Pruned), result.Kept)),
		Prune:   result,
	}, nil
}

// loadBackup returns the backup if it belongs to tenantID.
func (e *Engine) loadBackup(ctx context.Context, tenantID, backupID string) (*models.BackupRecord, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	rec, err := e.catalog.GetBackup(ctx, backupID)
	if err != nil {
		return nil, notFound(err, "backup", backupID)
	}
	if rec.TenantID != tenantID {
		return nil, apperr.Wrapf(ErrNotFound, "backup %s", backupID)
	}
	return rec, nil
}

func backupMessage(rec *models.BackupRecord) string {
	msg := fmt.Sprintf("%s backup completed", rec.Type)
	if rec.Downgraded() {
		msg += " (no prior backup, incremental ran as full)"
	}
	switch rec.CloudSyncStatus {
	case models.CloudSyncPending:
		msg += "; cloud upload queued"
	case models.CloudSyncFailed:
		msg += "; cloud upload failed: " + rec.CloudSyncError
	}
	return msg
}
