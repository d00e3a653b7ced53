// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
)

// Type names a lifecycle event.
type Type string

const (
	BackupCompleted   Type = "backup.completed"
	BackupFailed      Type = "backup.failed"
	RestoreCompleted  Type = "restore.completed"
	RestoreFailed     Type = "restore.failed"
	RestoreRolledBack Type = "restore.rolled_back"
	CloudSynced       Type = "cloud.synced"
	CloudFailed       Type = "cloud.failed"
	KeyRotated        Type = "key.rotated"
)

// Metadata keys set on every Watermill message
const (
	MetadataType   = "event_type"
	MetadataTenant = "tenant_id"
)

// Event is one lifecycle notification.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TenantID   string    `json:"tenant_id"`
	BackupID   string    `json:"backup_id,omitempty"`
	RestoreID  string    `json:"restore_id,omitempty"`
	KeyVersion int       `json:"key_version,omitempty"`
	Status     string    `json:"status,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	CloudURI   string    `json:"cloud_uri,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits events. Implementations never block the caller on delivery failures.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Decode parses the payload of a bus message.
func Decode(msg *message.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to decode event %s: %w", msg.UUID, err)
	}
	return evt, nil
}
