// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package tenantconfig stores the per-tenant backup policy.

A tenant that never saved a policy reads the global defaults, marked with
IsDefault. Updates are partial: only the non-nil fields of a Patch change.
The merged policy is validated before anything is written, so a rejected
update leaves the stored row untouched.

Usage:

	store := tenantconfig.New(cat, cfg.Defaults)

	count := 14
	updated, err := store.Update(ctx, "school-a", tenantconfig.Patch{RetentionCount: &count}, "admin")
*/
package tenantconfig
