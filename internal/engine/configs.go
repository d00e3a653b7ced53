// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"

	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

// GetConfig returns the tenant's backup config or the defaults.
func (e *Engine) GetConfig(ctx context.Context, tenantID string) (models.BackupConfig, error) {
	return e.configs.Get(ctx, tenantID)
}

// UpdateConfig applies patch to the tenant's backup config.
// A rejected patch leaves the stored config unchanged.
func (e *Engine) UpdateConfig(ctx context.Context, tenantID string, patch tenantconfig.Patch, updatedBy string) (*ConfigResult, error) {
	cfg, err := e.configs.Update(ctx, tenantID, patch, updatedBy)
	if err != nil {
		out, ierr := classify(err)
		return &ConfigResult{Outcome: out}, ierr
	}
	return &ConfigResult{Outcome: succeeded("Backup config updated"), Config: &cfg}, nil
}
