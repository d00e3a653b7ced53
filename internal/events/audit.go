// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// AuditLogger writes every bus event to the log.
type AuditLogger struct {
	bus    *Bus
	logger zerolog.Logger
	name   string
}

// NewAuditLogger creates an audit subscriber using the global logger.
func NewAuditLogger(bus *Bus) *AuditLogger {
	return NewAuditLoggerWithLogger(bus, logging.WithComponent("audit"))
}

// NewAuditLoggerWithLogger creates an audit subscriber writing to logger.
func NewAuditLoggerWithLogger(bus *Bus, logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{bus: bus, logger: logger, name: "event-audit-logger"}
}

// Serve implements suture.Service.
func (a *AuditLogger) Serve(ctx context.Context) error {
	msgs, err := a.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			evt, err := Decode(msg)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Dropping undecodable event")
				msg.Ack()
				continue
			}
			a.write(evt)
			msg.Ack()
		}
	}
}

func (a *AuditLogger) write(evt Event) {
	e := a.logger.Info()
	if evt.Type == BackupFailed || evt.Type == RestoreFailed || evt.Type == CloudFailed {
		e = a.logger.Warn()
	}
	e = e.Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("tenant_id", evt.TenantID).
		Time("occurred_at", evt.OccurredAt)
	if evt.BackupID != "" {
		e = e.Str("backup_id", evt.BackupID)
	}
	if evt.RestoreID != "" {
		e = e.Str("restore_id", evt.RestoreID)
	}
	if evt.KeyVersion != 0 {
		e = e.Int("key_version", evt.KeyVersion)
	}
	if evt.Status != "" {
		e = e.Str("status", evt.Status)
	}
	if evt.ErrorKind != "" {
		e = e.Str("error_kind", evt.ErrorKind)
	}
	if evt.CloudURI != "" {
		e = e.Str("cloud_uri", evt.CloudURI)
	}
	if evt.Message != "" {
		e = e.Str("detail", evt.Message)
	}
	e.Msg("Audit event")
}

// String implements fmt.Stringer for suture logging.
func (a *AuditLogger) String() string {
	return a.name
}
