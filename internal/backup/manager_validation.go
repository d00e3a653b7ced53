// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
manager_validation.go - Artifact Validation

This file loads a backup artifact and runs every check a restore needs
before data is touched.

Validation Steps:
 1. Fetch: local artifact store, falling back to the cloud copy
 2. Checksum: SHA-256 of the ciphertext against the recorded value
 3. Decrypt: with the key version recorded on the backup (may be retired)
 4. Decode: format version, tenant, per-entity counts, capture type

Failures are typed: a missing artifact, checksum mismatch, lost key or
incompatible header is an integrity error; an unreachable cloud store is a
dependency error.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/artifacts"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/codec"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/snapshot"
)

// loadedArtifact is a decrypted, decoded artifact and where it came from
type loadedArtifact struct {
	artifact *snapshot.Artifact
	source   ArtifactSource
}

// ValidateOnly runs the restore pre-checks for a tenant's backup without
// creating a restore operation or writing any data.
func (m *Manager) ValidateOnly(ctx context.Context, tenantID, backupID string) (*ValidationResult, error) {
	if !models.ValidTenantID(tenantID) {
		return nil, apperr.Validation("INVALID_TENANT", "invalid tenant id %q", tenantID)
	}

	rec, err := m.loadUsableBackup(ctx, tenantID, backupID)
	if err != nil {
		return nil, err
	}

	loaded, err := m.loadArtifact(ctx, rec)
	if err != nil {
		reportFailure(logging.Ctx(ctx).With().
			Str("tenant_id", tenantID).
			Str("backup_id", backupID).
			Logger(), err, "Backup validation failed")
		return nil, err
	}

	return &ValidationResult{
		BackupID:   rec.ID,
		TenantID:   rec.TenantID,
		KeyVersion: rec.KeyVersion,
		Checksum:   rec.Checksum,
		SizeBytes:  rec.SizeBytes,
		Source:     loaded.source,
		Header:     loaded.artifact.Header,
	}, nil
}

// loadArtifact fetches, verifies, decrypts and decodes rec's artifact.
func (m *Manager) loadArtifact(ctx context.Context, rec *models.BackupRecord) (*loadedArtifact, error) {
	data, source, err := m.fetchArtifact(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := codec.Verify(data, rec.Checksum); err != nil {
		return nil, err
	}

	key, err := m.keys.GetKey(ctx, rec.TenantID, rec.KeyVersion)
	if errors.Is(err, keys.ErrKeyNotFound) {
		return nil, apperr.Wrapf(ErrKeyUnavailable, "tenant %s version %d", rec.TenantID, rec.KeyVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key version %d: %w", rec.KeyVersion, err)
	}

	plaintext, err := m.codec.Decrypt(data, rec.KeyVersion, key.Material)
	if err != nil {
		return nil, err
	}

	artifact, err := snapshot.Decode(plaintext, rec.TenantID)
	if err != nil {
		return nil, err
	}
	if artifact.Header.Type != rec.Type {
		return nil, apperr.Wrapf(snapshot.ErrIncompatibleFormat, "artifact is %s, backup record says %s",
			artifact.Header.Type, rec.Type)
	}

	return &loadedArtifact{artifact: artifact, source: source}, nil
}

// fetchArtifact reads the local file, or the cloud copy when the file is gone.
func (m *Manager) fetchArtifact(ctx context.Context, rec *models.BackupRecord) ([]byte, ArtifactSource, error) {
	data, err := m.artifacts.Get(rec.StorageLocation)
	if err == nil {
		return data, SourceLocal, nil
	}
	if !errors.Is(err, artifacts.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to read artifact: %w", err)
	}

	if rec.CloudURI == "" || m.remote == nil {
		return nil, "", apperr.Wrapf(ErrArtifactMissing, "backup %s has no local artifact and no cloud copy", rec.ID)
	}

	logging.Ctx(ctx).Warn().
		Str("tenant_id", rec.TenantID).
		Str("backup_id", rec.ID).
		Str("cloud_uri", rec.CloudURI).
		Msg("Local artifact missing, downloading cloud copy")

	data, err = m.remote.Download(ctx, rec.CloudURI)
	if errors.Is(err, cloud.ErrObjectNotFound) {
		return nil, "", apperr.Wrapf(ErrArtifactMissing, "backup %s: local and cloud copies are gone", rec.ID)
	}
	if err != nil {
		return nil, "", apperr.Wrap(ErrArtifactUnavailable, err)
	}
	return data, SourceCloud, nil
}
