// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package backup

import (
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/snapshot"
)

// CreateRequest asks for a new backup
type CreateRequest struct {
	TenantID string            `json:"tenant_id" validate:"required,tenantid"`
	Type     models.BackupType `json:"type" validate:"required,backuptype"`

	// Label is free text shown in listings
	Label string `json:"label,omitempty" validate:"max=200"`

	// CreatedBy identifies the caller (user id or "scheduler")
	CreatedBy string `json:"created_by,omitempty" validate:"max=200"`

	// UploadToCloud queues the artifact for replication even when the
	// tenant's AutoCloudUpload is off
	UploadToCloud bool `json:"upload_to_cloud"`
}

// RestoreRequest asks to restore a tenant from one of its backups
type RestoreRequest struct {
	TenantID string `json:"tenant_id" validate:"required,tenantid"`
	BackupID string `json:"backup_id" validate:"required,max=64"`

	// CreateSafetyBackup takes a MANUAL backup before any data is written
	// and re-applies it if the restore fails part way
	CreateSafetyBackup bool `json:"create_safety_backup"`

	RequestedBy string `json:"requested_by,omitempty" validate:"max=200"`
}

// ArtifactSource names where a restore read its artifact from
type ArtifactSource string

const (
	// SourceLocal is the local artifact store
	SourceLocal ArtifactSource = "local"

	// SourceCloud is the remote copy, used when the local file is missing
	SourceCloud ArtifactSource = "cloud"
)

// ValidationResult describes an artifact that passed every pre-apply check
type ValidationResult struct {
	BackupID   string          `json:"backup_id"`
	TenantID   string          `json:"tenant_id"`
	KeyVersion int             `json:"key_version"`
	Checksum   string          `json:"checksum"`
	SizeBytes  int64           `json:"size_bytes"`
	Source     ArtifactSource  `json:"source"`
	Header     snapshot.Header `json:"header"`
}

// PruneResult reports one tenant's retention pass
type PruneResult struct {
	TenantID string `json:"tenant_id"`

	// Pruned lists deleted backup ids
	Pruned []string `json:"pruned"`

	// Kept is the number of backups left after the pass
	Kept int `json:"kept"`

	// Skipped lists candidates left in place (referenced by a running
	// restore, or the remote copy could not be deleted)
	Skipped []string `json:"skipped,omitempty"`

	FreedBytes int64 `json:"freed_bytes"`
}

// RecoveryResult counts records failed by RecoverInterrupted
type RecoveryResult struct {
	Backups  int `json:"backups"`
	Restores int `json:"restores"`
}
