// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

var (
	// ErrNotFound is reported when a backup or restore id does not exist for the tenant.
	ErrNotFound = apperr.New(apperr.KindNotFound, "NOT_FOUND", "record not found")

	// ErrCloudNotConfigured is reported by SyncToCloud when no remote store is set up.
	ErrCloudNotConfigured = apperr.New(apperr.KindDependency, "CLOUD_NOT_CONFIGURED", "cloud storage is not configured")

	// ErrInvalidTenant is reported for malformed tenant ids.
	ErrInvalidTenant = apperr.New(apperr.KindValidation, "INVALID_TENANT", "invalid tenant id")
)

// Deps are the components behind the Engine. Syncer and Publisher are optional.
type Deps struct {
	Backups   *backup.Manager
	Keys      *keys.Manager
	Configs   *tenantconfig.Store
	Catalog   *catalog.Catalog
	Syncer    *cloud.Syncer
	Publisher events.Publisher
}

// Engine is the caller-facing API. It is safe for concurrent use.
type Engine struct {
	backups   *backup.Manager
	keys      *keys.Manager
	configs   *tenantconfig.Store
	catalog   *catalog.Catalog
	syncer    *cloud.Syncer
	publisher events.Publisher

	// async tracks CreateBackupAsync goroutines
	async sync.WaitGroup
}

// New creates an Engine.
func New(deps Deps) (*Engine, error) {
	if deps.Backups == nil {
		return nil, fmt.Errorf("backup manager is required")
	}
	if deps.Keys == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard
	}

	return &Engine{
		backups:   deps.Backups,
		keys:      deps.Keys,
		configs:   deps.Configs,
		catalog:   deps.Catalog,
		syncer:    deps.Syncer,
		publisher: deps.Publisher,
	}, nil
}

// Wait blocks until every backup started by CreateBackupAsync has finished.
func (e *Engine) Wait() {
	e.async.Wait()
}

// RecoverInterrupted fails records left non-terminal by a previous process.
func (e *Engine) RecoverInterrupted(ctx context.Context) (*backup.RecoveryResult, error) {
	return e.backups.RecoverInterrupted(ctx)
}

func checkTenant(tenantID string) error {
	if !models.ValidTenantID(tenantID) {
		return apperr.Wrapf(ErrInvalidTenant, "%q", tenantID)
	}
	return nil
}

// notFound maps the catalog's miss to ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return apperr.Wrapf(ErrNotFound, "%s %s", what, id)
	}
	return err
}
