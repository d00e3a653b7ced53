// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package models

import (
	"time"
)

// BackupType defines what a backup captures
type BackupType string

const (
	// BackupTypeFull captures the entire tenant dataset
	BackupTypeFull BackupType = "FULL"

	// BackupTypeIncremental captures records changed since the last completed backup
	BackupTypeIncremental BackupType = "INCREMENTAL"

	// BackupTypeManual is a full capture requested by an operator or taken before a restore
	BackupTypeManual BackupType = "MANUAL"
)

// Valid reports whether t is a known backup type
func (t BackupType) Valid() bool {
	switch t {
	case BackupTypeFull, BackupTypeIncremental, BackupTypeManual:
		return true
	}
	return false
}

// IsFullCapture reports whether the artifact holds the complete dataset
func (t BackupType) IsFullCapture() bool {
	return t == BackupTypeFull || t == BackupTypeManual
}

// BackupStatus represents the state of a backup run
type BackupStatus string

const (
	// BackupStatusPending is a freshly created record
	BackupStatusPending BackupStatus = "PENDING"

	// BackupStatusSnapshotting means the data source is being read
	BackupStatusSnapshotting BackupStatus = "SNAPSHOTTING"

	// BackupStatusEncrypting means the artifact is being sealed
	BackupStatusEncrypting BackupStatus = "ENCRYPTING"

	// BackupStatusStored means the encrypted artifact is on disk
	BackupStatusStored BackupStatus = "STORED"

	// BackupStatusCompleted is terminal success
	BackupStatusCompleted BackupStatus = "COMPLETED"

	// BackupStatusFailed is terminal failure
	BackupStatusFailed BackupStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are possible
func (s BackupStatus) IsTerminal() bool {
	return s == BackupStatusCompleted || s == BackupStatusFailed
}

// CloudSyncStatus tracks replication of an artifact to remote storage
type CloudSyncStatus string

const (
	// CloudSyncNone means no upload was requested
	CloudSyncNone CloudSyncStatus = "NONE"

	// CloudSyncPending means an upload is queued or running
	CloudSyncPending CloudSyncStatus = "PENDING"

	// CloudSyncSynced means the remote copy exists
	CloudSyncSynced CloudSyncStatus = "SYNCED"

	// CloudSyncFailed means the last upload attempt failed
	CloudSyncFailed CloudSyncStatus = "FAILED"
)

// BackupRecord describes one backup run and the artifact it produced
type BackupRecord struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Type     BackupType `json:"type"`

	// RequestedType differs from Type when an incremental run had no
	// watermark and was performed as a full capture.
	RequestedType BackupType `json:"requested_type"`

	Label  string       `json:"label,omitempty"`
	Status BackupStatus `json:"status"`

	// Artifact fields, assigned at STORED
	SizeBytes       int64  `json:"size_bytes"`
	Checksum        string `json:"checksum,omitempty"`
	KeyVersion      int    `json:"key_version,omitempty"`
	StorageLocation string `json:"storage_location,omitempty"`

	// RecordCounts mirrors the artifact header: entity name to record count
	RecordCounts map[string]int `json:"record_counts,omitempty"`

	// Watermark is the lower bound of an incremental capture
	Watermark *time.Time `json:"watermark,omitempty"`

	// Cloud replication
	CloudURI        string          `json:"cloud_uri,omitempty"`
	CloudSyncStatus CloudSyncStatus `json:"cloud_sync_status"`
	CloudSyncError  string          `json:"cloud_sync_error,omitempty"`
	CloudSyncedAt   *time.Time      `json:"cloud_synced_at,omitempty"`

	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
}

// Downgraded reports whether an incremental request was performed as a full capture
func (b *BackupRecord) Downgraded() bool {
	return b.RequestedType == BackupTypeIncremental && b.Type == BackupTypeFull
}

// Clone returns a deep copy
func (b *BackupRecord) Clone() *BackupRecord {
	c := *b
	if b.RecordCounts != nil {
		c.RecordCounts = make(map[string]int, len(b.RecordCounts))
		for k, v := range b.RecordCounts {
			c.RecordCounts[k] = v
		}
	}
	if b.Watermark != nil {
		w := *b.Watermark
		c.Watermark = &w
	}
	if b.CloudSyncedAt != nil {
		s := *b.CloudSyncedAt
		c.CloudSyncedAt = &s
	}
	if b.CompletedAt != nil {
		d := *b.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}

// backupTransitions lists the legal forward edges
var backupTransitions = map[BackupStatus][]BackupStatus{
	BackupStatusPending:      {BackupStatusSnapshotting, BackupStatusFailed},
	BackupStatusSnapshotting: {BackupStatusEncrypting, BackupStatusFailed},
	BackupStatusEncrypting:   {BackupStatusStored, BackupStatusFailed},
	BackupStatusStored:       {BackupStatusCompleted, BackupStatusFailed},
}

// CanTransitionBackup reports whether from → to is a legal edge.
// Staying in the same non-terminal status is allowed for field updates.
func CanTransitionBackup(from, to BackupStatus) bool {
	if from == to {
		return true
	}
	for _, next := range backupTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
