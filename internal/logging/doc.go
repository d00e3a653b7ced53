// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package logging provides centralized zerolog-based logging for Vaultkeeper.

All components log through the package-level helpers, which wrap a single
global zerolog.Logger configured once at startup:

	logging.Init(logging.Config{Level: "info", Format: "json"})

	logging.Info().Str("tenant_id", tenantID).Str("backup_id", id).Msg("Backup completed")
	logging.Err(err).Str("backup_id", id).Msg("Cloud sync failed")

# Context Fields

Orchestration code tags its context with the tenant and operation being
processed; Ctx adds them to every entry:

	ctx = logging.ContextWithTenant(ctx, tenantID)
	ctx = logging.ContextWithOperation(ctx, backupID)
	logging.Ctx(ctx).Info().Str("status", "STORED").Msg("Backup advanced")

# Field Conventions

	tenant_id, backup_id, restore_id, key_version, status, duration, error

Key material, passphrases and wrapped exports are never logged.

# Adapters

  - NewSlogLogger: *slog.Logger for sutureslog supervisor events
  - NewWatermillAdapter: watermill.LoggerAdapter for the event bus

# Configuration

Configured from the logging section of the engine config (koanf):

	logging:
	  level: info       # trace, debug, info, warn, error, disabled
	  format: json      # json or console
	  caller: false
*/
package logging
