// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

func backupKey(tenantID, id string) string {
	return backupPrefix + tenantID + ":" + id
}

func tenantBackupPrefix(tenantID string) string {
	return backupPrefix + tenantID + ":"
}

// CreateBackup inserts a new non-terminal backup record.
// Fails with ErrBackupInProgress when the tenant already has one.
func (c *Catalog) CreateBackup(ctx context.Context, rec *models.BackupRecord) error {
	if rec.ID == "" || rec.TenantID == "" {
		return fmt.Errorf("backup record requires id and tenant")
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("backup record must be created in a non-terminal status, got %s", rec.Status)
	}

	return c.update(ctx, func(txn *badger.Txn) error {
		if err := c.checkInflightBackup(txn, rec.TenantID); err != nil {
			return err
		}
		if _, err := txn.Get([]byte(backupIndexPrefix + rec.ID)); err == nil {
			return fmt.Errorf("backup %s already exists", rec.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, backupKey(rec.TenantID, rec.ID), rec); err != nil {
			return err
		}
		if err := txn.Set([]byte(backupIndexPrefix+rec.ID), []byte(rec.TenantID)); err != nil {
			return err
		}
		return txn.Set([]byte(inflightBackupPrefix+rec.TenantID), []byte(rec.ID))
	})
}

// checkInflightBackup fails if the tenant's inflight marker points at a non-terminal backup.
func (c *Catalog) checkInflightBackup(txn *badger.Txn, tenantID string) error {
	id, err := getString(txn, inflightBackupPrefix+tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var current models.BackupRecord
	err = getJSON(txn, backupKey(tenantID, id), &current)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !current.Status.IsTerminal() {
		return apperr.Wrapf(ErrBackupInProgress, "backup %s is %s", id, current.Status)
	}
	return nil
}

// GetBackup returns a backup by id.
func (c *Catalog) GetBackup(ctx context.Context, id string) (*models.BackupRecord, error) {
	var rec models.BackupRecord
	err := c.view(ctx, func(txn *badger.Txn) error {
		tenantID, err := getString(txn, backupIndexPrefix+id)
		if err != nil {
			return err
		}
		return getJSON(txn, backupKey(tenantID, id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateBackup applies fn to the stored record in a read-modify-write
// transaction and returns the result.
//
// The update is rejected when it moves the status along an illegal edge
// (ErrInvalidTransition) or changes the artifact fields of a backup that is
// STORED, COMPLETED or FAILED after storing (ErrImmutable). Reaching a terminal status clears the tenant's inflight marker.
func (c *Catalog) UpdateBackup(ctx context.Context, id string, fn func(rec *models.BackupRecord) error) (*models.BackupRecord, error) {
	var updated *models.BackupRecord
	err := c.update(ctx, func(txn *badger.Txn) error {
		tenantID, err := getString(txn, backupIndexPrefix+id)
		if err != nil {
			return err
		}

		var current models.BackupRecord
		if err := getJSON(txn, backupKey(tenantID, id), &current); err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := checkBackupUpdate(&current, next); err != nil {
			return err
		}

		if err := setJSON(txn, backupKey(tenantID, id), next); err != nil {
			return err
		}
		if next.Status.IsTerminal() && !current.Status.IsTerminal() {
			if err := clearInflight(txn, inflightBackupPrefix+tenantID, id); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func checkBackupUpdate(current, next *models.BackupRecord) error {
	if next.ID != current.ID || next.TenantID != current.TenantID {
		return fmt.Errorf("%w: id and tenant cannot change", ErrImmutable)
	}
	if !models.CanTransitionBackup(current.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}
	if artifactSealed(current) {
		if next.Checksum != current.Checksum ||
			next.SizeBytes != current.SizeBytes ||
			next.KeyVersion != current.KeyVersion ||
			next.StorageLocation != current.StorageLocation ||
			next.Type != current.Type {
			return fmt.Errorf("%w: backup %s", ErrImmutable, current.ID)
		}
	}
	return nil
}

// artifactSealed reports whether the record's artifact fields are fixed. They are
// written once on entering STORED and a FAILED record keeps whatever it had.
func artifactSealed(rec *models.BackupRecord) bool {
	switch rec.Status {
	case models.BackupStatusStored, models.BackupStatusCompleted:
		return true
	case models.BackupStatusFailed:
		return rec.Checksum != ""
	default:
		return false
	}
}

// clearInflight deletes the marker only if it still names id.
func clearInflight(txn *badger.Txn, key, id string) error {
	marked, err := getString(txn, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if marked != id {
		return nil
	}
	return deleteKey(txn, key)
}

// ListBackups returns a tenant's backups newest first. limit <= 0 returns all.
func (c *Catalog) ListBackups(ctx context.Context, tenantID string, limit int) ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	err := c.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, tenantBackupPrefix(tenantID), func(val []byte) error {
			var rec models.BackupRecord
			if err := unmarshal(val, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	sortBackupsNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// LatestCompleted returns the tenant's most recently completed backup, or nil.
func (c *Catalog) LatestCompleted(ctx context.Context, tenantID string) (*models.BackupRecord, error) {
	records, err := c.ListBackups(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}

	var latest *models.BackupRecord
	for i := range records {
		r := &records[i]
		if r.Status != models.BackupStatusCompleted || r.CompletedAt == nil {
			continue
		}
		if latest == nil || r.CompletedAt.After(*latest.CompletedAt) {
			latest = r
		}
	}
	return latest, nil
}

// ListNonTerminalBackups returns backups of every tenant that have not reached a terminal status.
func (c *Catalog) ListNonTerminalBackups(ctx context.Context) ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	err := c.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, backupPrefix, func(val []byte) error {
			var rec models.BackupRecord
			if err := unmarshal(val, &rec); err != nil {
				return err
			}
			if !rec.Status.IsTerminal() {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list non-terminal backups: %w", err)
	}
	return records, nil
}

// DeleteBackup removes a backup record and its index entry.
func (c *Catalog) DeleteBackup(ctx context.Context, id string) error {
	return c.update(ctx, func(txn *badger.Txn) error {
		tenantID, err := getString(txn, backupIndexPrefix+id)
		if err != nil {
			return err
		}
		if err := clearInflight(txn, inflightBackupPrefix+tenantID, id); err != nil {
			return err
		}
		if err := deleteKey(txn, backupKey(tenantID, id)); err != nil {
			return err
		}
		return deleteKey(txn, backupIndexPrefix+id)
	})
}

func sortBackupsNewestFirst(records []models.BackupRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}
