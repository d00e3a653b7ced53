// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package models

import (
	"time"
)

// RestoreStatus represents the state of a restore operation
type RestoreStatus string

const (
	// RestoreStatusRequested is a freshly created operation
	RestoreStatusRequested RestoreStatus = "REQUESTED"

	// RestoreStatusSafetyBackup means a pre-restore backup is running
	RestoreStatusSafetyBackup RestoreStatus = "SAFETY_BACKUP"

	// RestoreStatusValidating means the artifact is being fetched, decrypted and checked
	RestoreStatusValidating RestoreStatus = "VALIDATING"

	// RestoreStatusApplying means records are being written to the data source
	RestoreStatusApplying RestoreStatus = "APPLYING"

	// RestoreStatusCompleted is terminal success
	RestoreStatusCompleted RestoreStatus = "COMPLETED"

	// RestoreStatusFailed is terminal failure
	RestoreStatusFailed RestoreStatus = "FAILED"

	// RestoreStatusRolledBack means apply failed and the safety backup was re-applied
	RestoreStatusRolledBack RestoreStatus = "ROLLED_BACK"
)

// IsTerminal reports whether no further transitions are possible
func (s RestoreStatus) IsTerminal() bool {
	switch s {
	case RestoreStatusCompleted, RestoreStatusFailed, RestoreStatusRolledBack:
		return true
	}
	return false
}

// RestoreOperation records one restore request
type RestoreOperation struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	SourceBackupID string        `json:"source_backup_id"`
	Status         RestoreStatus `json:"status"`

	// SafetyBackupID is set only when a safety backup completed
	SafetyBackupID string `json:"safety_backup_id,omitempty"`

	// AppliedCounts is entity name to records written
	AppliedCounts map[string]int `json:"applied_counts,omitempty"`

	// EntityErrors is entity name to apply failure
	EntityErrors map[string]string `json:"entity_errors,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	RequestedBy  string     `json:"requested_by"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
}

// Clone returns a deep copy
func (r *RestoreOperation) Clone() *RestoreOperation {
	c := *r
	if r.AppliedCounts != nil {
		c.AppliedCounts = make(map[string]int, len(r.AppliedCounts))
		for k, v := range r.AppliedCounts {
			c.AppliedCounts[k] = v
		}
	}
	if r.EntityErrors != nil {
		c.EntityErrors = make(map[string]string, len(r.EntityErrors))
		for k, v := range r.EntityErrors {
			c.EntityErrors[k] = v
		}
	}
	if r.Warnings != nil {
		c.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.CompletedAt != nil {
		d := *r.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}

var restoreTransitions = map[RestoreStatus][]RestoreStatus{
	RestoreStatusRequested:    {RestoreStatusSafetyBackup, RestoreStatusValidating, RestoreStatusFailed},
	RestoreStatusSafetyBackup: {RestoreStatusValidating, RestoreStatusFailed},
	RestoreStatusValidating:   {RestoreStatusApplying, RestoreStatusFailed},
	RestoreStatusApplying:     {RestoreStatusCompleted, RestoreStatusFailed, RestoreStatusRolledBack},
}

// CanTransitionRestore reports whether from → to is a legal edge.
func CanTransitionRestore(from, to RestoreStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range restoreTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
