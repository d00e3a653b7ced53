// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
retention.go - Retention Pruning

This file applies each tenant's retention policy.

Keep-Set Rules (COMPLETED backups):
  - RetentionCount > 0: keep the newest RetentionCount
  - RetentionDays > 0: keep every backup created within the window
  - A backup matching either rule is kept; the rest are pruned
  - Neither rule set: nothing is pruned

FAILED records are pruned once they are older than the RetentionDays window.
Non-terminal records are never touched.

Deletion Order:
 1. Remote object (SYNCED backups); on failure the backup is skipped
 2. Local artifact
 3. Catalog row

A backup referenced by a non-terminal restore (as source or safety backup)
is skipped. Pruning a tenant takes its backup lock, so it never overlaps a
backup or restore of the same tenant.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// addNewestToKeepSet keeps the first count backups (input is newest first)
func addNewestToKeepSet(keepSet map[string]bool, backups []models.BackupRecord, count int) {
	for i := 0; i < count && i < len(backups); i++ {
		keepSet[backups[i].ID] = true
	}
}

// addRecentToKeepSet keeps backups created after cutoff
func addRecentToKeepSet(keepSet map[string]bool, backups []models.BackupRecord, cutoff time.Time) {
	for i := range backups {
		if backups[i].CreatedAt.After(cutoff) {
			keepSet[backups[i].ID] = true
		}
	}
}

// selectPrunable returns the backups outside the keep-set and the number kept.
// backups must be sorted newest first.
func selectPrunable(backups []models.BackupRecord, policy models.BackupConfig, now time.Time) (prune []models.BackupRecord, kept int) {
	if !policy.RetentionEnabled() {
		return nil, len(backups)
	}

	var completed []models.BackupRecord
	var failed []models.BackupRecord
	for i := range backups {
		switch backups[i].Status {
		case models.BackupStatusCompleted:
			completed = append(completed, backups[i])
		case models.BackupStatusFailed:
			failed = append(failed, backups[i])
		}
	}

	keepSet := make(map[string]bool)
	addNewestToKeepSet(keepSet, completed, policy.RetentionCount)

	var cutoff time.Time
	if policy.RetentionDays > 0 {
		cutoff = now.AddDate(0, 0, -policy.RetentionDays)
		addRecentToKeepSet(keepSet, completed, cutoff)
	}

	for i := range completed {
		if !keepSet[completed[i].ID] {
			prune = append(prune, completed[i])
		}
	}
	if policy.RetentionDays > 0 {
		for i := range failed {
			if failed[i].CreatedAt.Before(cutoff) {
				prune = append(prune, failed[i])
			}
		}
	}

	return prune, len(backups) - len(prune)
}

// PruneTenant applies the tenant's retention policy now.
func (m *Manager) PruneTenant(ctx context.Context, tenantID string) (*PruneResult, error) {
	if !models.ValidTenantID(tenantID) {
		return nil, apperr.Validation("INVALID_TENANT", "invalid tenant id %q", tenantID)
	}

	release, ok := m.backupLocks.TryLock(tenantID)
	if !ok {
		return nil, apperr.Wrapf(ErrBackupInProgress, "tenant %s is busy, retention skipped", tenantID)
	}
	defer release()

	result, err := m.pruneLocked(ctx, tenantID)
	metrics.RecordRetentionRun(len(result.Pruned), err)
	return result, err
}

func (m *Manager) pruneLocked(ctx context.Context, tenantID string) (*PruneResult, error) {
	result := &PruneResult{TenantID: tenantID, Pruned: []string{}}

	policy, err := m.configs.Get(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("failed to read backup config: %w", err)
	}

	backups, err := m.catalog.ListBackups(ctx, tenantID, 0)
	if err != nil {
		return result, err
	}

	prune, kept := selectPrunable(backups, policy, m.now())
	result.Kept = kept

	log := logging.Ctx(ctx).With().Str("tenant_id", tenantID).Logger()
	for i := range prune {
		rec := &prune[i]
		deleted, err := m.deleteBackup(ctx, rec)
		if err != nil {
			log.Warn().Err(err).Str("backup_id", rec.ID).Msg("Failed to prune backup")
			result.Skipped = append(result.Skipped, rec.ID)
			result.Kept++
			continue
		}
		if !deleted {
			result.Skipped = append(result.Skipped, rec.ID)
			result.Kept++
			continue
		}
		result.Pruned = append(result.Pruned, rec.ID)
		result.FreedBytes += rec.SizeBytes
	}

	if len(result.Pruned) > 0 {
		log.Info().
			Int("pruned", len(result.Pruned)).
			Int("kept", result.Kept).
			Int("skipped", len(result.Skipped)).
			Float64("freed_mb", float64(result.FreedBytes)/(1024*1024)).
			Msg("Retention policy applied")
	}
	return result, nil
}

// deleteBackup removes one backup everywhere. deleted is false when a running
// restore still references it.
func (m *Manager) deleteBackup(ctx context.Context, rec *models.BackupRecord) (deleted bool, err error) {
	referenced, err := m.catalog.BackupReferencedByActiveRestore(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return false, err
	}
	if referenced {
		return false, nil
	}

	if rec.CloudSyncStatus == models.CloudSyncSynced && rec.CloudURI != "" {
		if m.remote == nil {
			return false, fmt.Errorf("backup %s has a cloud copy but no remote store is configured", rec.ID)
		}
		if err := m.remote.Delete(ctx, rec.CloudURI); err != nil {
			return false, fmt.Errorf("failed to delete cloud copy: %w", err)
		}
	}

	if rec.StorageLocation != "" {
		if err := m.artifacts.Delete(rec.StorageLocation); err != nil {
			return false, fmt.Errorf("failed to delete artifact: %w", err)
		}
	}

	if err := m.catalog.DeleteBackup(ctx, rec.ID); err != nil {
		return false, fmt.Errorf("failed to delete backup record: %w", err)
	}
	return true, nil
}

// PruneAll applies retention to every tenant. Busy tenants are skipped
// until the next run.
func (m *Manager) PruneAll(ctx context.Context) ([]PruneResult, error) {
	tenants, err := m.catalog.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	results := make([]PruneResult, 0, len(tenants))
	var errs []error
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := m.PruneTenant(ctx, tenantID)
		if errors.Is(err, ErrBackupInProgress) {
			logging.Ctx(ctx).Debug().Str("tenant_id", tenantID).Msg("Tenant busy, retention deferred")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, errors.Join(errs...)
}

// Pruner runs PruneAll on an interval as a supervised service
type Pruner struct {
	m        *Manager
	interval time.Duration
}

// NewPruner creates a Pruner. interval defaults to one hour.
func NewPruner(m *Manager, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{m: m, interval: interval}
}

// Serve implements suture.Service
func (p *Pruner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			results, err := p.m.PruneAll(ctx)
			if err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("Retention run failed")
			}
			total := 0
			for i := range results {
				total += len(results[i].Pruned)
			}
			logging.Debug().Int("tenants", len(results)).Int("pruned", total).Msg("Retention run finished")
		}
	}
}

// String implements fmt.Stringer for suture logging
func (p *Pruner) String() string {
	return "retention-pruner"
}
