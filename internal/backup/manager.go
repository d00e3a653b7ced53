// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
manager.go - Core Backup Manager

This file holds the Manager struct, its collaborators and the error
sentinels shared by backup, restore and retention.

Collaborators:
  - Catalog: durable backup and restore records (Badger)
  - KeyProvider: active and historical tenant keys
  - Codec: artifact encryption and checksums
  - Source: tenant data export and apply
  - ArtifactStore: local encrypted artifact files
  - ConfigReader: per-tenant policy (AutoCloudUpload, retention)
  - SyncQueue: cloud upload queue (optional)
  - Remote: cloud store for download fallback and pruning (optional)
  - Publisher: lifecycle events (optional)
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/codec"
	"github.com/tomtom215/vaultkeeper/internal/datasource"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/snapshot"
	"github.com/tomtom215/vaultkeeper/internal/tenantlock"
)

// InterruptedMessage is stored on records failed by RecoverInterrupted.
const InterruptedMessage = "interrupted by engine restart"

// SafetyBackupLabel labels the MANUAL backup taken before a restore.
const SafetyBackupLabel = "pre-restore"

var (
	// ErrBackupInProgress means the tenant already has a backup running.
	ErrBackupInProgress = catalog.ErrBackupInProgress

	// ErrRestoreInProgress means the tenant already has a restore running.
	ErrRestoreInProgress = catalog.ErrRestoreInProgress

	// ErrBackupNotFound means the backup does not exist or belongs to another tenant.
	ErrBackupNotFound = cloud.ErrBackupNotFound

	// ErrBackupNotUsable means the backup is not COMPLETED.
	ErrBackupNotUsable = cloud.ErrBackupNotUsable

	// ErrSafetyBackupFailed means the pre-restore backup failed; no data was touched.
	ErrSafetyBackupFailed = apperr.New(apperr.KindDependency, "SAFETY_BACKUP_FAILED", "safety backup failed")

	// ErrPartialApply means the data source rejected some or all entities.
	ErrPartialApply = apperr.New(apperr.KindPartialApply, "PARTIAL_APPLY", "restore was not fully applied")

	// ErrArtifactMissing means neither the local file nor a cloud copy exists.
	ErrArtifactMissing = apperr.New(apperr.KindIntegrity, "ARTIFACT_MISSING", "backup artifact is missing")

	// ErrArtifactUnavailable means the cloud copy could not be downloaded.
	ErrArtifactUnavailable = apperr.New(apperr.KindDependency, "ARTIFACT_UNAVAILABLE", "backup artifact could not be fetched")

	// ErrKeyUnavailable means the key version recorded on the backup is gone.
	ErrKeyUnavailable = apperr.New(apperr.KindIntegrity, "KEY_UNAVAILABLE", "key version of the backup is unavailable")
)

// KeyProvider resolves tenant keys.
type KeyProvider interface {
	GetActiveKey(ctx context.Context, tenantID string) (*keys.Key, error)
	GetKey(ctx context.Context, tenantID string, version int) (*keys.Key, error)
}

// ArtifactStore keeps encrypted artifacts on local disk.
type ArtifactStore interface {
	Put(tenantID, backupID string, data []byte) (string, error)
	Get(location string) ([]byte, error)
	Delete(location string) error
}

// ConfigReader returns the tenant's backup policy.
type ConfigReader interface {
	Get(ctx context.Context, tenantID string) (models.BackupConfig, error)
}

// SyncQueue accepts completed backups for cloud upload. Enqueue returns
// false when the upload was refused; the queue records the failure itself.
type SyncQueue interface {
	Enqueue(tenantID, backupID string) bool
}

// Deps are the Manager's collaborators. SyncQueue, Remote and Publisher are optional.
type Deps struct {
	Catalog   *catalog.Catalog
	Keys      KeyProvider
	Codec     *codec.Codec
	Source    datasource.Source
	Artifacts ArtifactStore
	Configs   ConfigReader
	SyncQueue SyncQueue
	Remote    cloud.RemoteStore
	Publisher events.Publisher
}

// Manager handles backup, restore and retention for every tenant
type Manager struct {
	catalog   *catalog.Catalog
	keys      KeyProvider
	codec     *codec.Codec
	source    datasource.Source
	producer  *snapshot.Producer
	artifacts ArtifactStore
	configs   ConfigReader
	syncQueue SyncQueue
	remote    cloud.RemoteStore
	publisher events.Publisher

	backupLocks  *tenantlock.Locks
	restoreLocks *tenantlock.Locks

	now func() time.Time
}

// NewManager creates a Manager
func NewManager(deps Deps) (*Manager, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("backup manager requires a catalog")
	case deps.Keys == nil:
		return nil, fmt.Errorf("backup manager requires a key provider")
	case deps.Codec == nil:
		return nil, fmt.Errorf("backup manager requires a codec")
	case deps.Source == nil:
		return nil, fmt.Errorf("backup manager requires a data source")
	case deps.Artifacts == nil:
		return nil, fmt.Errorf("backup manager requires an artifact store")
	case deps.Configs == nil:
		return nil, fmt.Errorf("backup manager requires a config reader")
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Discard
	}

	return &Manager{
		catalog:      deps.Catalog,
		keys:         deps.Keys,
		codec:        deps.Codec,
		source:       deps.Source,
		producer:     snapshot.NewProducer(deps.Source),
		artifacts:    deps.Artifacts,
		configs:      deps.Configs,
		syncQueue:    deps.SyncQueue,
		remote:       deps.Remote,
		publisher:    publisher,
		backupLocks:  tenantlock.New(),
		restoreLocks: tenantlock.New(),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// BackupRunning reports whether this process holds the tenant's backup lock.
func (m *Manager) BackupRunning(tenantID string) bool {
	return m.backupLocks.Held(tenantID)
}

// RestoreRunning reports whether this process holds the tenant's restore lock.
func (m *Manager) RestoreRunning(tenantID string) bool {
	return m.restoreLocks.Held(tenantID)
}
