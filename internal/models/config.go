// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package models

import (
	"time"
)

// ScheduleFrequency is an informational hint for an external scheduler
type ScheduleFrequency string

const (
	ScheduleManual  ScheduleFrequency = "manual"
	ScheduleHourly  ScheduleFrequency = "hourly"
	ScheduleDaily   ScheduleFrequency = "daily"
	ScheduleWeekly  ScheduleFrequency = "weekly"
	ScheduleMonthly ScheduleFrequency = "monthly"
)

// BackupConfig is the per-tenant backup policy
type BackupConfig struct {
	TenantID string `json:"tenant_id"`

	// RetentionCount keeps at least this many completed backups (0 = no count rule)
	RetentionCount int `json:"retention_count" validate:"min=0,max=1000"`

	// RetentionDays keeps completed backups newer than this (0 = no age rule)
	RetentionDays int `json:"retention_days" validate:"min=0,max=3650"`

	// AutoCloudUpload replicates every completed backup
	AutoCloudUpload bool `json:"auto_cloud_upload"`

	ScheduleFrequency ScheduleFrequency `json:"schedule_frequency" validate:"oneof=manual hourly daily weekly monthly"`

	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// IsDefault is true when no row was stored for the tenant
	IsDefault bool `json:"is_default"`
}

// RetentionEnabled reports whether any pruning rule is set
func (c *BackupConfig) RetentionEnabled() bool {
	return c.RetentionCount > 0 || c.RetentionDays > 0
}
