// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package artifacts stores encrypted backup artifacts on the local filesystem.

Layout:

	{dir}/{tenant}/{backup-id}.vka

Writes go to a temp file in the tenant directory, are fsynced and then renamed
into place, so a reader never observes a half-written artifact. The Catalog
only stores the returned location; artifact bytes are never inlined.

Locations handed back to Get, Exists and Delete must resolve inside the store
directory. Anything else is rejected with ErrOutsideStore.
*/
package artifacts
