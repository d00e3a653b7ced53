// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package tenantconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/validation"
)

// ErrInvalidTenant rejects empty or malformed tenant ids.
var ErrInvalidTenant = apperr.New(apperr.KindValidation, "INVALID_TENANT", "invalid tenant id")

// Catalog is the persistence the store needs.
type Catalog interface {
	GetConfig(ctx context.Context, tenantID string) (*models.BackupConfig, bool, error)
	PutConfig(ctx context.Context, cfg *models.BackupConfig) error
}

// Patch holds the fields to change. Nil fields keep their current value.
type Patch struct {
	RetentionCount    *int
	RetentionDays     *int
	AutoCloudUpload   *bool
	ScheduleFrequency *string
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p.RetentionCount == nil && p.RetentionDays == nil &&
		p.AutoCloudUpload == nil && p.ScheduleFrequency == nil
}

// Store reads and writes tenant backup policies.
type Store struct {
	catalog  Catalog
	defaults config.DefaultsConfig
	now      func() time.Time
}

// New creates a store that falls back to defaults for unknown tenants.
func New(catalog Catalog, defaults config.DefaultsConfig) *Store {
	return &Store{
		catalog:  catalog,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the tenant's stored policy or the defaults.
func (s *Store) Get(ctx context.Context, tenantID string) (models.BackupConfig, error) {
	if !models.ValidTenantID(tenantID) {
		return models.BackupConfig{}, apperr.Wrapf(ErrInvalidTenant, "%q", tenantID)
	}

	stored, found, err := s.catalog.GetConfig(ctx, tenantID)
	if err != nil {
		return models.BackupConfig{}, fmt.Errorf("failed to read backup config: %w", err)
	}
	if !found {
		return s.defaultsFor(tenantID), nil
	}
	stored.IsDefault = false
	return *stored, nil
}

// Update applies patch to the current policy, validates the result and stores it.
// A validation failure returns a *apperr.Error of kind validation and writes nothing.
func (s *Store) Update(ctx context.Context, tenantID string, patch Patch, updatedBy string) (models.BackupConfig, error) {
	current, err := s.Get(ctx, tenantID)
	if err != nil {
		return models.BackupConfig{}, err
	}

	next := current
	if patch.RetentionCount != nil {
		next.RetentionCount = *patch.RetentionCount
	}
	if patch.RetentionDays != nil {
		next.RetentionDays = *patch.RetentionDays
	}
	if patch.AutoCloudUpload != nil {
		next.AutoCloudUpload = *patch.AutoCloudUpload
	}
	if patch.ScheduleFrequency != nil {
		next.ScheduleFrequency = models.ScheduleFrequency(*patch.ScheduleFrequency)
	}

	if verr := validation.ValidateStruct(&next); verr != nil {
		return models.BackupConfig{}, verr.AppError()
	}

	next.TenantID = tenantID
	next.UpdatedBy = updatedBy
	next.UpdatedAt = s.now()
	next.IsDefault = false

	if err := s.catalog.PutConfig(ctx, &next); err != nil {
		return models.BackupConfig{}, fmt.Errorf("failed to store backup config: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", tenantID).
		Int("retention_count", next.RetentionCount).
		Int("retention_days", next.RetentionDays).
		Bool("auto_cloud_upload", next.AutoCloudUpload).
		Str("schedule_frequency", string(next.ScheduleFrequency)).
		Str("updated_by", updatedBy).
		Msg("Backup config updated")

	return next, nil
}

func (s *Store) defaultsFor(tenantID string) models.BackupConfig {
	freq := models.ScheduleFrequency(s.defaults.ScheduleFrequency)
	if freq == "" {
		freq = models.ScheduleManual
	}
	return models.BackupConfig{
		TenantID:          tenantID,
		RetentionCount:    s.defaults.RetentionCount,
		RetentionDays:     s.defaults.RetentionDays,
		AutoCloudUpload:   s.defaults.AutoCloudUpload,
		ScheduleFrequency: freq,
		IsDefault:         true,
	}
}
