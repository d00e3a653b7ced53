// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package catalog

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vaultkeeper/internal/models"
)

// GetConfig returns the tenant's stored backup config. found is false when none was stored.
func (c *Catalog) GetConfig(ctx context.Context, tenantID string) (cfg *models.BackupConfig, found bool, err error) {
	var stored models.BackupConfig
	err = c.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, configPrefix+tenantID, &stored)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &stored, true, nil
}

// PutConfig stores the tenant's backup config, replacing any previous one.
func (c *Catalog) PutConfig(ctx context.Context, cfg *models.BackupConfig) error {
	return c.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, configPrefix+cfg.TenantID, cfg)
	})
}
