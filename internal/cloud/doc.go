// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package cloud replicates encrypted backup artifacts to a remote object store.

Components:

  - RemoteStore: upload, download, exists and delete against an object store.
    S3Store talks to S3 or any S3-compatible endpoint through aws-sdk-go-v2.
    MemoryStore keeps objects in process and backs the memory:// scheme.
  - BreakerStore: wraps a RemoteStore with a gobreaker circuit breaker and
    exports its state as Prometheus metrics.
  - Syncer: SyncToCloud reads the local artifact of a COMPLETED backup, uploads
    it with bounded exponential retry and records the outcome in the cloud
    sync fields of the backup record. It never changes the backup's status.
  - Worker: a suture service draining a bounded queue of sync requests under a
    rate limit. Enqueue never blocks; a full queue marks the record FAILED.

Object layout:

	{prefix}/{tenant}/{backup-id}.vka

Idempotence: a record already SYNCED is verified with Exists and only
uploaded again when the remote object is gone.
*/
package cloud
