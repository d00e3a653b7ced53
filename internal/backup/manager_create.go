// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
manager_create.go - Backup Creation

This file drives a backup through its state machine.

Backup Creation Flow:
 1. Validate the request (tenant id, backup type)
 2. Take the tenant backup lock without blocking
 3. Create the PENDING record (the Catalog rejects a second in-flight one)
 4. SNAPSHOTTING: resolve the incremental watermark and export the tenant
 5. ENCRYPTING: seal the artifact under the tenant's active key
 6. Write the artifact to the local store
 7. STORED: record size, checksum, key version and location
 8. COMPLETED: stamp completion and, when requested, queue cloud upload

Any error moves the record to FAILED with the error kind, removes a written
artifact and publishes backup.failed. Cloud upload problems never fail a
backup; they only touch the cloud-sync fields.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/validation"
)

// cloudNotConfiguredMessage is recorded when an upload is requested without a remote store.
const cloudNotConfiguredMessage = "cloud storage is not configured"

// PendingBackup is a backup whose PENDING record exists and whose tenant
// lock is held. Run must be called exactly once; it releases the lock.
type PendingBackup struct {
	// Record is the PENDING record as created
	Record *models.BackupRecord

	m       *Manager
	req     CreateRequest
	release func()
	started time.Time
}

// CreateBackup runs a backup to completion and returns the terminal record.
// A FAILED record is returned together with the error that failed it.
func (m *Manager) CreateBackup(ctx context.Context, req CreateRequest) (*models.BackupRecord, error) {
	p, err := m.BeginBackup(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// BeginBackup validates the request, takes the tenant lock and creates the
// PENDING record. Callers that poll run the returned PendingBackup in the background.
func (m *Manager) BeginBackup(ctx context.Context, req CreateRequest) (*PendingBackup, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordRejection("backup", "invalid_request")
		return nil, verr.AppError()
	}

	release, ok := m.backupLocks.TryLock(req.TenantID)
	if !ok {
		metrics.RecordRejection("backup", "in_progress")
		return nil, apperr.Wrapf(ErrBackupInProgress, "tenant %s", req.TenantID)
	}

	p, err := m.begin(ctx, req, release)
	if err != nil {
		release()
		return nil, err
	}
	return p, nil
}

// begin creates the PENDING record. The tenant backup lock must be held.
func (m *Manager) begin(ctx context.Context, req CreateRequest, release func()) (*PendingBackup, error) {
	now := m.now()
	rec := &models.BackupRecord{
		ID:              newID(),
		TenantID:        req.TenantID,
		Type:            req.Type,
		RequestedType:   req.Type,
		Label:           req.Label,
		Status:          models.BackupStatusPending,
		CloudSyncStatus: models.CloudSyncNone,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
	}

	if err := m.catalog.CreateBackup(ctx, rec); err != nil {
		if errors.Is(err, ErrBackupInProgress) {
			metrics.RecordRejection("backup", "in_progress")
			return nil, err
		}
		return nil, fmt.Errorf("failed to create backup record: %w", err)
	}

	metrics.TrackBackupInProgress(true)
	logging.Ctx(ctx).Info().
		Str("tenant_id", rec.TenantID).
		Str("backup_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("created_by", rec.CreatedBy).
		Msg("Backup started")

	return &PendingBackup{
		Record:  rec.Clone(),
		m:       m,
		req:     req,
		release: release,
		started: now,
	}, nil
}

// Run performs the backup and releases the tenant lock.
func (p *PendingBackup) Run(ctx context.Context) (*models.BackupRecord, error) {
	defer p.release()
	defer metrics.TrackBackupInProgress(false)
	return p.m.execute(ctx, p.Record, p.req, p.started)
}

// execute moves a PENDING record to COMPLETED or FAILED.
func (m *Manager) execute(ctx context.Context, rec *models.BackupRecord, req CreateRequest, started time.Time) (*models.BackupRecord, error) {
	var location string
	fail := func(err error) (*models.BackupRecord, error) {
		return m.failBackup(ctx, rec, location, started, err)
	}
	advance := func(fn func(r *models.BackupRecord)) error {
		updated, err := m.catalog.UpdateBackup(ctx, rec.ID, func(r *models.BackupRecord) error {
			fn(r)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to update backup record: %w", err)
		}
		rec = updated
		return nil
	}

	// SNAPSHOTTING
	var watermark *time.Time
	if req.Type == models.BackupTypeIncremental {
		latest, err := m.catalog.LatestCompleted(ctx, rec.TenantID)
		if err != nil {
			return fail(fmt.Errorf("failed to look up watermark: %w", err))
		}
		if latest != nil {
			watermark = latest.CompletedAt
		}
	}
	if err := advance(func(r *models.BackupRecord) {
		r.Status = models.BackupStatusSnapshotting
		r.Watermark = watermark
	}); err != nil {
		return fail(err)
	}

	snap, err := m.producer.Produce(ctx, rec.TenantID, req.Type, watermark)
	if err != nil {
		return fail(err)
	}
	if snap.Downgraded {
		metrics.RecordDowngrade()
	}

	// ENCRYPTING
	if err := advance(func(r *models.BackupRecord) {
		r.Status = models.BackupStatusEncrypting
		r.Type = snap.EffectiveType
		r.RecordCounts = snap.Header.Entities
		if snap.Downgraded {
			r.Watermark = nil
		}
	}); err != nil {
		return fail(err)
	}

	key, err := m.keys.GetActiveKey(ctx, rec.TenantID)
	if err != nil {
		return fail(fmt.Errorf("failed to get active key: %w", err))
	}
	ciphertext, checksum, err := m.codec.Encrypt(snap.Data, key.Version, key.Material)
	if err != nil {
		return fail(err)
	}

	location, err = m.artifacts.Put(rec.TenantID, rec.ID, ciphertext)
	if err != nil {
		return fail(fmt.Errorf("failed to write artifact: %w", err))
	}

	// STORED
	if err := advance(func(r *models.BackupRecord) {
		r.Status = models.BackupStatusStored
		r.SizeBytes = int64(len(ciphertext))
		r.Checksum = checksum
		r.KeyVersion = key.Version
		r.StorageLocation = location
	}); err != nil {
		return fail(err)
	}

	// COMPLETED
	upload := m.wantsUpload(ctx, req)
	completed, err := m.catalog.UpdateBackup(context.WithoutCancel(ctx), rec.ID, func(r *models.BackupRecord) error {
		completedAt := m.now()
		r.Status = models.BackupStatusCompleted
		r.CompletedAt = &completedAt
		if upload {
			if m.syncQueue != nil {
				r.CloudSyncStatus = models.CloudSyncPending
			} else {
				r.CloudSyncStatus = models.CloudSyncFailed
				r.CloudSyncError = cloudNotConfiguredMessage
			}
		}
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("failed to complete backup record: %w", err))
	}
	rec = completed

	duration := m.now().Sub(started)
	metrics.RecordBackup(string(rec.Type), "completed", duration, rec.SizeBytes)
	logging.Ctx(ctx).Info().
		Str("tenant_id", rec.TenantID).
		Str("backup_id", rec.ID).
		Str("type", string(rec.Type)).
		Bool("downgraded", rec.Downgraded()).
		Int("key_version", rec.KeyVersion).
		Int64("size_bytes", rec.SizeBytes).
		Dur("duration", duration).
		Msg("Backup completed")

	m.publisher.Publish(ctx, events.Event{
		Type:       events.BackupCompleted,
		TenantID:   rec.TenantID,
		BackupID:   rec.ID,
		KeyVersion: rec.KeyVersion,
		Status:     string(rec.Status),
	})

	if upload && m.syncQueue != nil && !m.syncQueue.Enqueue(rec.TenantID, rec.ID) {
		// The queue recorded the refusal on the record
		if refreshed, err := m.catalog.GetBackup(context.WithoutCancel(ctx), rec.ID); err == nil {
			rec = refreshed
		}
	}

	return rec, nil
}

// wantsUpload reports whether the completed backup should be replicated.
func (m *Manager) wantsUpload(ctx context.Context, req CreateRequest) bool {
	if req.UploadToCloud {
		return true
	}
	cfg, err := m.configs.Get(ctx, req.TenantID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("tenant_id", req.TenantID).
			Msg("Failed to read backup config, skipping automatic cloud upload")
		return false
	}
	return cfg.AutoCloudUpload
}

// failBackup marks the record FAILED and removes any artifact it wrote.
func (m *Manager) failBackup(ctx context.Context, rec *models.BackupRecord, location string, started time.Time, cause error) (*models.BackupRecord, error) {
	ctx = context.WithoutCancel(ctx)
	kind := apperr.KindOf(cause)

	log := logging.Ctx(ctx).With().
		Str("tenant_id", rec.TenantID).
		Str("backup_id", rec.ID).
		Str("status", string(rec.Status)).
		Logger()

	if location != "" {
		if err := m.artifacts.Delete(location); err != nil {
			log.Warn().Err(err).Str("location", location).Msg("Failed to remove artifact of failed backup")
		}
	}

	failed, err := m.catalog.UpdateBackup(ctx, rec.ID, func(r *models.BackupRecord) error {
		r.Status = models.BackupStatusFailed
		r.ErrorMessage = cause.Error()
		r.ErrorKind = string(kind)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record backup failure")
		failed = rec.Clone()
		failed.Status = models.BackupStatusFailed
		failed.ErrorMessage = cause.Error()
		failed.ErrorKind = string(kind)
	}

	metrics.RecordBackup(string(failed.Type), "failed", m.now().Sub(started), 0)
	reportFailure(log, cause, "Backup failed")

	m.publisher.Publish(ctx, events.Event{
		Type:      events.BackupFailed,
		TenantID:  failed.TenantID,
		BackupID:  failed.ID,
		Status:    string(failed.Status),
		ErrorKind: failed.ErrorKind,
		Message:   failed.ErrorMessage,
	})

	return failed, cause
}

// reportFailure logs a failed operation. Integrity failures are counted and
// flagged for operator attention.
func reportFailure(log zerolog.Logger, err error, msg string) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindIntegrity {
		metrics.RecordIntegrityFailure(apperr.CodeOf(err))
		log.Error().Err(err).
			Str("error_kind", string(kind)).
			Str("error_code", apperr.CodeOf(err)).
			Bool("requires_attention", true).
			Msg(msg)
		return
	}
	if apperr.IsExpected(err) {
		log.Warn().Err(err).Str("error_kind", string(kind)).Msg(msg)
		return
	}
	log.Error().Err(err).Str("error_kind", string(kind)).Msg(msg)
}

// newID returns a time-ordered UUID, falling back to a random one.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
