// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

var (
	// ErrCloudSync is returned when replication fails. The backup itself stays COMPLETED.
	ErrCloudSync = apperr.New(apperr.KindDependency, "CLOUD_SYNC_FAILED", "cloud sync failed")

	// ErrBackupNotFound is returned for an unknown backup id.
	ErrBackupNotFound = apperr.New(apperr.KindValidation, "BACKUP_NOT_FOUND", "backup not found")

	// ErrBackupNotUsable is returned when the backup is not COMPLETED.
	ErrBackupNotUsable = apperr.New(apperr.KindValidation, "BACKUP_NOT_USABLE", "backup is not completed")
)

// BackupCatalog is the subset of the Catalog used by cloud sync.
type BackupCatalog interface {
	GetBackup(ctx context.Context, id string) (*models.BackupRecord, error)
	UpdateBackup(ctx context.Context, id string, fn func(rec *models.BackupRecord) error) (*models.BackupRecord, error)
}

// ArtifactReader reads local artifacts.
type ArtifactReader interface {
	Get(location string) ([]byte, error)
}

// SyncResult is the outcome of SyncToCloud.
type SyncResult struct {
	Status   models.CloudSyncStatus `json:"status"`
	CloudURI string                 `json:"cloud_uri,omitempty"`

	// Uploaded is false when an already synced object was verified in place.
	Uploaded bool `json:"uploaded"`
}

// SyncerOptions tunes retry behavior.
type SyncerOptions struct {
	// Prefix is prepended to every object path.
	Prefix string

	// MaxAttempts bounds upload attempts per sync call.
	MaxAttempts int

	// InitialInterval is the first retry delay. Default: 500ms
	InitialInterval time.Duration

	// MaxInterval caps the retry delay. Default: 10s
	MaxInterval time.Duration
}

// Syncer replicates completed backups to a RemoteStore.
type Syncer struct {
	catalog   BackupCatalog
	artifacts ArtifactReader
	remote    RemoteStore
	publisher events.Publisher
	opts      SyncerOptions
	now       func() time.Time
}

// NewSyncer creates a Syncer. A nil publisher discards events.
func NewSyncer(cat BackupCatalog, artifacts ArtifactReader, remote RemoteStore, publisher events.Publisher, opts SyncerOptions) *Syncer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Syncer{
		catalog:   cat,
		artifacts: artifacts,
		remote:    remote,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Remote returns the underlying store.
func (s *Syncer) Remote() RemoteStore {
	return s.remote
}

// SyncToCloud uploads the artifact of a COMPLETED backup.
//
// A record already SYNCED is verified with Exists and only re-uploaded when
// the remote object is missing. Failures set CloudSyncStatus=FAILED and
// return ErrCloudSync; the backup's Status never changes.
func (s *Syncer) SyncToCloud(ctx context.Context, backupID string) (*SyncResult, error) {
	rec, err := s.catalog.GetBackup(ctx, backupID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, apperr.Wrapf(ErrBackupNotFound, "backup %s", backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	if rec.Status != models.BackupStatusCompleted {
		return nil, apperr.Wrapf(ErrBackupNotUsable, "backup %s is %s", backupID, rec.Status)
	}

	log := logging.Ctx(ctx).With().
		Str("tenant_id", rec.TenantID).
		Str("backup_id", rec.ID).
		Logger()

	if rec.CloudSyncStatus == models.CloudSyncSynced && rec.CloudURI != "" {
		exists, err := s.remote.Exists(ctx, rec.CloudURI)
		if err != nil {
			metrics.RecordCloudSync("failed")
			return nil, apperr.Wrap(ErrCloudSync, fmt.Errorf("failed to verify %s: %w", rec.CloudURI, err))
		}
		if exists {
			metrics.RecordCloudSync("verified")
			log.Debug().Str("cloud_uri", rec.CloudURI).Msg("Remote copy verified")
			return &SyncResult{Status: models.CloudSyncSynced, CloudURI: rec.CloudURI}, nil
		}
		log.Warn().Str("cloud_uri", rec.CloudURI).Msg("Remote copy missing, uploading again")
	}

	data, err := s.artifacts.Get(rec.StorageLocation)
	if err != nil {
		return nil, s.fail(ctx, rec, fmt.Errorf("failed to read local artifact: %w", err))
	}

	objectPath := ObjectPath(s.opts.Prefix, rec.TenantID, rec.ID)
	start := time.Now()
	uri, err := s.uploadWithRetry(ctx, data, objectPath)
	if err != nil {
		return nil, s.fail(ctx, rec, err)
	}
	metrics.RecordCloudUpload(time.Since(start))

	syncedAt := s.now()
	_, err = s.catalog.UpdateBackup(context.WithoutCancel(ctx), rec.ID, func(r *models.BackupRecord) error {
		r.CloudURI = uri
		r.CloudSyncStatus = models.CloudSyncSynced
		r.CloudSyncError = ""
		r.CloudSyncedAt = &syncedAt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record cloud sync: %w", err)
	}

	metrics.RecordCloudSync("uploaded")
	log.Info().
		Str("cloud_uri", uri).
		Int("size_bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Backup replicated")
	s.publisher.Publish(ctx, events.Event{
		Type:     events.CloudSynced,
		TenantID: rec.TenantID,
		BackupID: rec.ID,
		Status:   string(models.CloudSyncSynced),
		CloudURI: uri,
	})

	return &SyncResult{Status: models.CloudSyncSynced, CloudURI: uri, Uploaded: true}, nil
}

func (s *Syncer) uploadWithRetry(ctx context.Context, data []byte, objectPath string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialInterval
	policy.MaxInterval = s.opts.MaxInterval
	policy.MaxElapsedTime = 0

	var uri string
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		uri, err = s.remote.Upload(ctx, data, objectPath)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		logging.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Str("object", objectPath).Msg("Upload attempt failed")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxAttempts-1)), ctx) //nolint:gosec // MaxAttempts >= 1
	if err := backoff.Retry(operation, b); err != nil {
		return "", fmt.Errorf("upload failed after %d attempt(s): %w", attempt, err)
	}
	return uri, nil
}

// fail records FAILED cloud sync state and returns ErrCloudSync.
func (s *Syncer) fail(ctx context.Context, rec *models.BackupRecord, cause error) error {
	s.MarkFailed(ctx, rec.TenantID, rec.ID, cause.Error())
	return apperr.Wrap(ErrCloudSync, cause)
}

// MarkFailed sets CloudSyncStatus=FAILED with message.
func (s *Syncer) MarkFailed(ctx context.Context, tenantID, backupID, message string) {
	metrics.RecordCloudSync("failed")
	_, err := s.catalog.UpdateBackup(context.WithoutCancel(ctx), backupID, func(r *models.BackupRecord) error {
		r.CloudSyncStatus = models.CloudSyncFailed
		r.CloudSyncError = message
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("backup_id", backupID).Msg("Failed to record cloud sync failure")
	}

	logging.Ctx(ctx).Warn().
		Str("tenant_id", tenantID).
		Str("backup_id", backupID).
		Str("error", message).
		Msg("Cloud sync failed")
	s.publisher.Publish(ctx, events.Event{
		Type:      events.CloudFailed,
		TenantID:  tenantID,
		BackupID:  backupID,
		Status:    string(models.CloudSyncFailed),
		ErrorKind: string(apperr.KindDependency),
		Message:   message,
	})
}

// MarkPending sets CloudSyncStatus=PENDING ahead of a queued upload.
func (s *Syncer) MarkPending(ctx context.Context, backupID string) error {
	_, err := s.catalog.UpdateBackup(context.WithoutCancel(ctx), backupID, func(r *models.BackupRecord) error {
		r.CloudSyncStatus = models.CloudSyncPending
		r.CloudSyncError = ""
		return nil
	})
	return err
}
