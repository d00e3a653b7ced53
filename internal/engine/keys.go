// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"
	"fmt"

	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// ExportKey returns the tenant's key material for offline escrow.
func (e *Engine) ExportKey(ctx context.Context, tenantID string, opts keys.ExportOptions) (*KeyResult, error) {
	if err := checkTenant(tenantID); err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID}, ierr
	}

	wrapped, err := e.keys.ExportKey(ctx, tenantID, opts)
	if err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID, Version: opts.Version}, ierr
	}

	version := opts.Version
	if version == 0 {
		if active, err := e.keys.GetActiveKey(ctx, tenantID); err == nil {
			version = active.Version
		}
	}
	return &KeyResult{
		Outcome:  succeeded(fmt.Sprintf("Key version %d exported", version)),
		TenantID: tenantID,
		Version:  version,
		Wrapped:  wrapped,
	}, nil
}

// ImportKey registers escrowed material so older backups can be decrypted.
func (e *Engine) ImportKey(ctx context.Context, tenantID, wrapped string, opts keys.ImportOptions) (*KeyResult, error) {
	if err := checkTenant(tenantID); err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID}, ierr
	}

	version, err := e.keys.ImportKey(ctx, tenantID, wrapped, opts)
	if err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID}, ierr
	}
	return &KeyResult{
		Outcome:  succeeded(fmt.Sprintf("Key version %d imported", version)),
		TenantID: tenantID,
		Version:  version,
	}, nil
}

// RotateKey retires the active key and activates a new version.
func (e *Engine) RotateKey(ctx context.Context, tenantID string) (*KeyResult, error) {
	if err := checkTenant(tenantID); err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID}, ierr
	}

	version, err := e.keys.RotateKey(ctx, tenantID)
	if err != nil {
		out, ierr := classify(err)
		return &KeyResult{Outcome: out, TenantID: tenantID}, ierr
	}

	e.publisher.Publish(ctx, events.Event{
		Type:       events.KeyRotated,
		TenantID:   tenantID,
		KeyVersion: version,
		Status:     string(models.KeyStatusActive),
	})
	return &KeyResult{
		Outcome:  succeeded(fmt.Sprintf("Key version %d is now active", version)),
		TenantID: tenantID,
		Version:  version,
	}, nil
}

// ListKeys returns the tenant's key versions without material.
func (e *Engine) ListKeys(ctx context.Context, tenantID string) ([]models.KeyInfo, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	return e.keys.ListKeys(ctx, tenantID)
}
