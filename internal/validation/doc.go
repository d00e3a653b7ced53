// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package validation provides struct validation using go-playground/validator v10.
//
// The package keeps one thread-safe validator instance with the engine's
// custom rules and turns validator output into readable messages keyed by
// the fields' json names.
//
// # Custom Rules
//
//   - tenantid: models.ValidTenantID (letters, digits, '.', '_', '-'; at most 128)
//   - backuptype: FULL, INCREMENTAL or MANUAL
//   - models.BackupConfig: a non-manual schedule needs retention_count or
//     retention_days greater than zero
//
// # Usage
//
//	type CreateBackupRequest struct {
//	    TenantID string `json:"tenant_id" validate:"required,tenantid"`
//	    Type     string `json:"type" validate:"required,backuptype"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return verr.AppError() // apperr.KindValidation, code VALIDATION_ERROR
//	}
//
// # Thread Safety
//
// GetValidator initializes the instance once; the validator caches struct
// metadata and is safe for concurrent use.
package validation
