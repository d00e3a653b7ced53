// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package events publishes backup, restore, cloud sync and key lifecycle events.

Events travel over an in-process Watermill gochannel and, when a NATS URL is
configured, are forwarded to NATS JetStream on the same topic. The JetStream
stream is expected to exist; the bus does not provision it.

Publishing is best effort: failures are logged and counted in
vaultkeeper_events_published_total, never returned to the caller. The
workflows that emit events have already recorded their outcome in the Catalog.

Event types:

	backup.completed     backup.failed
	restore.completed    restore.failed    restore.rolled_back
	cloud.synced         cloud.failed
	key.rotated

AuditLogger subscribes to the local bus and writes one structured log line per
event. It runs as a supervised service.
*/
package events
