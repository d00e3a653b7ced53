// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// keyRowKey zero-pads the version so keys iterate in version order.
func keyRowKey(tenantID string, version int) string {
	return fmt.Sprintf("%s%s:%010d", keyPrefix, tenantID, version)
}

// ListKeys returns every key version of the tenant in ascending order.
func (c *Catalog) ListKeys(ctx context.Context, tenantID string) ([]models.EncryptionKey, error) {
	var rows []models.EncryptionKey
	err := c.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, keyPrefix+tenantID+":", func(val []byte) error {
			var row models.EncryptionKey
			if err := unmarshal(val, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return rows, nil
}

// GetKey returns one key version.
func (c *Catalog) GetKey(ctx context.Context, tenantID string, version int) (*models.EncryptionKey, bool, error) {
	var row models.EncryptionKey
	err := c.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keyRowKey(tenantID, version), &row)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

// PutKeys inserts new key versions atomically. With retireActive the current
// ACTIVE version is retired in the same transaction. Existing versions are
// never overwritten.
func (c *Catalog) PutKeys(ctx context.Context, tenantID string, rows []models.EncryptionKey, retireActive bool) error {
	if len(rows) == 0 {
		return nil
	}
	return c.update(ctx, func(txn *badger.Txn) error {
		if retireActive {
			if err := retireActiveKeys(txn, tenantID, rows); err != nil {
				return err
			}
		}

		for i := range rows {
			row := rows[i]
			if row.TenantID != tenantID {
				return fmt.Errorf("key row for tenant %s in batch for %s", row.TenantID, tenantID)
			}
			key := keyRowKey(tenantID, row.Version)
			if _, err := txn.Get([]byte(key)); err == nil {
				return apperr.Wrapf(keys.ErrKeyConflict, "tenant %s version %d already stored", tenantID, row.Version)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setJSON(txn, key, &row); err != nil {
				return err
			}
		}
		return nil
	})
}

func retireActiveKeys(txn *badger.Txn, tenantID string, incoming []models.EncryptionKey) error {
	var active []models.EncryptionKey
	err := scanPrefix(txn, keyPrefix+tenantID+":", func(val []byte) error {
		var row models.EncryptionKey
		if err := unmarshal(val, &row); err != nil {
			return err
		}
		if row.Status == models.KeyStatusActive {
			active = append(active, row)
		}
		return nil
	})
	if err != nil {
		return err
	}

	retiredAt := incoming[0].CreatedAt
	for i := range active {
		row := active[i]
		row.Status = models.KeyStatusRetired
		row.RetiredAt = &retiredAt
		if err := setJSON(txn, keyRowKey(tenantID, row.Version), &row); err != nil {
			return err
		}
	}
	return nil
}

var _ keys.Store = (*Catalog)(nil)
