// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package models

import (
	"time"
)

// KeyStatus marks whether a key version is used for new encryptions
type KeyStatus string

const (
	// KeyStatusActive is the single version used for new backups
	KeyStatusActive KeyStatus = "ACTIVE"

	// KeyStatusRetired versions only decrypt existing artifacts
	KeyStatusRetired KeyStatus = "RETIRED"
)

// KeyOrigin records where key material came from
type KeyOrigin string

const (
	// KeyOriginGenerated keys were created by bootstrap or rotation
	KeyOriginGenerated KeyOrigin = "GENERATED"

	// KeyOriginImported keys were supplied through import
	KeyOriginImported KeyOrigin = "IMPORTED"
)

// EncryptionKey is one version in a tenant's key log.
// SealedMaterial is the key material encrypted under the engine's key
// encryption key; plaintext material never reaches the catalog.
type EncryptionKey struct {
	TenantID       string     `json:"tenant_id"`
	Version        int        `json:"version"`
	SealedMaterial []byte     `json:"sealed_material"`
	Status         KeyStatus  `json:"status"`
	Origin         KeyOrigin  `json:"origin"`
	CreatedAt      time.Time  `json:"created_at"`
	RetiredAt      *time.Time `json:"retired_at,omitempty"`
}

// Info strips the material
func (k *EncryptionKey) Info() KeyInfo {
	return KeyInfo{
		TenantID:  k.TenantID,
		Version:   k.Version,
		Status:    k.Status,
		Origin:    k.Origin,
		CreatedAt: k.CreatedAt,
		RetiredAt: k.RetiredAt,
	}
}

// KeyInfo is key metadata safe to display
type KeyInfo struct {
	TenantID  string     `json:"tenant_id"`
	Version   int        `json:"version"`
	Status    KeyStatus  `json:"status"`
	Origin    KeyOrigin  `json:"origin"`
	CreatedAt time.Time  `json:"created_at"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
}
