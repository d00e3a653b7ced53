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

func restoreKey(tenantID, id string) string {
	return restorePrefix + tenantID + ":" + id
}

// CreateRestore inserts a new restore operation.
// Fails with ErrRestoreInProgress when the tenant already has a non-terminal one.
func (c *Catalog) CreateRestore(ctx context.Context, op *models.RestoreOperation) error {
	if op.ID == "" || op.TenantID == "" {
		return fmt.Errorf("restore operation requires id and tenant")
	}
	if op.Status.IsTerminal() {
		return fmt.Errorf("restore operation must be created in a non-terminal status, got %s", op.Status)
	}

	return c.update(ctx, func(txn *badger.Txn) error {
		id, err := getString(txn, inflightRestorePrefix+op.TenantID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			var current models.RestoreOperation
			err := getJSON(txn, restoreKey(op.TenantID, id), &current)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if err == nil && !current.Status.IsTerminal() {
				return apperr.Wrapf(ErrRestoreInProgress, "restore %s is %s", id, current.Status)
			}
		}

		if err := setJSON(txn, restoreKey(op.TenantID, op.ID), op); err != nil {
			return err
		}
		if err := txn.Set([]byte(restoreIndexPrefix+op.ID), []byte(op.TenantID)); err != nil {
			return err
		}
		return txn.Set([]byte(inflightRestorePrefix+op.TenantID), []byte(op.ID))
	})
}

// GetRestore returns a restore operation by id.
func (c *Catalog) GetRestore(ctx context.Context, id string) (*models.RestoreOperation, error) {
	var op models.RestoreOperation
	err := c.view(ctx, func(txn *badger.Txn) error {
		tenantID, err := getString(txn, restoreIndexPrefix+id)
		if err != nil {
			return err
		}
		return getJSON(txn, restoreKey(tenantID, id), &op)
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// UpdateRestore applies fn to the stored operation in a read-modify-write transaction.
// Terminal operations cannot change.
func (c *Catalog) UpdateRestore(ctx context.Context, id string, fn func(op *models.RestoreOperation) error) (*models.RestoreOperation, error) {
	var updated *models.RestoreOperation
	err := c.update(ctx, func(txn *badger.Txn) error {
		tenantID, err := getString(txn, restoreIndexPrefix+id)
		if err != nil {
			return err
		}

		var current models.RestoreOperation
		if err := getJSON(txn, restoreKey(tenantID, id), &current); err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if next.ID != current.ID || next.TenantID != current.TenantID {
			return fmt.Errorf("%w: id and tenant cannot change", ErrImmutable)
		}
		if !models.CanTransitionRestore(current.Status, next.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
		}

		if err := setJSON(txn, restoreKey(tenantID, id), next); err != nil {
			return err
		}
		if next.Status.IsTerminal() {
			if err := clearInflight(txn, inflightRestorePrefix+tenantID, id); err != nil {
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

// ListRestores returns a tenant's restore operations newest first. limit <= 0 returns all.
func (c *Catalog) ListRestores(ctx context.Context, tenantID string, limit int) ([]models.RestoreOperation, error) {
	var ops []models.RestoreOperation
	err := c.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, restorePrefix+tenantID+":", func(val []byte) error {
			var op models.RestoreOperation
			if err := unmarshal(val, &op); err != nil {
				return err
			}
			ops = append(ops, op)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list restores: %w", err)
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].StartedAt.Equal(ops[j].StartedAt) {
			return ops[i].StartedAt.After(ops[j].StartedAt)
		}
		return ops[i].ID > ops[j].ID
	})
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}

// ListNonTerminalRestores returns restore operations of every tenant that have not finished.
func (c *Catalog) ListNonTerminalRestores(ctx context.Context) ([]models.RestoreOperation, error) {
	var ops []models.RestoreOperation
	err := c.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, restorePrefix, func(val []byte) error {
			var op models.RestoreOperation
			if err := unmarshal(val, &op); err != nil {
				return err
			}
			if !op.Status.IsTerminal() {
				ops = append(ops, op)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list non-terminal restores: %w", err)
	}
	return ops, nil
}

// BackupReferencedByActiveRestore reports whether a non-terminal restore of the
// tenant uses backupID as its source or safety backup.
func (c *Catalog) BackupReferencedByActiveRestore(ctx context.Context, tenantID, backupID string) (bool, error) {
	ops, err := c.ListRestores(ctx, tenantID, 0)
	if err != nil {
		return false, err
	}
	for i := range ops {
		if ops[i].Status.IsTerminal() {
			continue
		}
		if ops[i].SourceBackupID == backupID || ops[i].SafetyBackupID == backupID {
			return true, nil
		}
	}
	return false, nil
}
