// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package models

// MaxTenantIDLength bounds tenant identifiers
const MaxTenantIDLength = 128

// ValidTenantID reports whether id is usable as a tenant identifier.
// Tenant ids appear in catalog keys and object paths, so only
// letters, digits, '.', '_' and '-' are accepted.
func ValidTenantID(id string) bool {
	if id == "" || len(id) > MaxTenantIDLength || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
