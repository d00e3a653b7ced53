// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"
	"strings"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// Restore restores a tenant from one of its completed backups.
//
// A ROLLED_BACK operation is reported with Success=false; Restore.Warnings
// says the tenant was returned to the safety backup.
func (e *Engine) Restore(ctx context.Context, req backup.RestoreRequest) (*RestoreResult, error) {
	op, err := e.backups.Restore(ctx, req)
	if err != nil {
		out, ierr := classify(err)
		if op != nil && len(op.Warnings) > 0 {
			out.Message += " (" + strings.Join(op.Warnings, "; ") + ")"
		}
		return &RestoreResult{Outcome: out, Restore: op}, ierr
	}
	return &RestoreResult{Outcome: succeeded("Restore completed"), Restore: op}, nil
}

// GetRestore returns one of the tenant's restore operations.
func (e *Engine) GetRestore(ctx context.Context, tenantID, restoreID string) (*RestoreResult, error) {
	if err := checkTenant(tenantID); err != nil {
		out, ierr := classify(err)
		return &RestoreResult{Outcome: out}, ierr
	}

	op, err := e.catalog.GetRestore(ctx, restoreID)
	if err == nil && op.TenantID != tenantID {
		err = apperr.Wrapf(ErrNotFound, "restore %s", restoreID)
	}
	if err != nil {
		out, ierr := classify(notFound(err, "restore", restoreID))
		return &RestoreResult{Outcome: out}, ierr
	}
	return &RestoreResult{Outcome: succeeded(string(op.Status)), Restore: op}, nil
}

// ListRestores returns the tenant's restore operations newest first.
func (e *Engine) ListRestores(ctx context.Context, tenantID string, limit int) ([]models.RestoreOperation, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	return e.catalog.ListRestores(ctx, tenantID, limit)
}
