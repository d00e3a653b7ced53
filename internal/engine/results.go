// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// Outcome is embedded in every result.
type Outcome struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BackupResult is returned by CreateBackup, CreateBackupAsync and GetBackup.
type BackupResult struct {
	Outcome
	Backup *models.BackupRecord `json:"backup,omitempty"`
}

// RestoreResult is returned by Restore and GetRestore.
type RestoreResult struct {
	Outcome
	Restore *models.RestoreOperation `json:"restore,omitempty"`
}

// ValidateResult is returned by ValidateBackup.
type ValidateResult struct {
	Outcome
	Validation *backup.ValidationResult `json:"validation,omitempty"`
}

// ConfigResult is returned by UpdateConfig.
type ConfigResult struct {
	Outcome
	Config *models.BackupConfig `json:"config,omitempty"`
}

// KeyResult is returned by the key operations. Wrapped is set by ExportKey only.
type KeyResult struct {
	Outcome
	TenantID string `json:"tenant_id"`
	Version  int    `json:"version,omitempty"`
	Wrapped  string `json:"wrapped,omitempty"`
}

// SyncResult is returned by SyncToCloud.
type SyncResult struct {
	Outcome
	Sync *cloud.SyncResult `json:"sync,omitempty"`
}

// PruneResult is returned by PruneTenant.
type PruneResult struct {
	Outcome
	Prune *backup.PruneResult `json:"prune,omitempty"`
}

func succeeded(message string) Outcome {
	return Outcome{Success: true, Message: message}
}

// classify turns err into a failed Outcome. Internal errors are handed back
// so the caller can return them.
func classify(err error) (Outcome, error) {
	kind := apperr.KindOf(err)
	out := Outcome{
		Success:   false,
		Message:   err.Error(),
		ErrorKind: string(kind),
		ErrorCode: apperr.CodeOf(err),
	}
	if kind == apperr.KindInternal {
		return out, err
	}
	return out, nil
}
