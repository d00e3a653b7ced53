// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package keys owns per-tenant symmetric key material.
//
// Each tenant has an append-only log of key versions. Exactly one version is
// ACTIVE and used for new backups; RETIRED versions remain available so that
// any artifact can be decrypted with the version recorded on its backup.
// Nothing in this package deletes a version.
//
// Material is sealed at rest under a key encryption key derived from the
// engine's master secret (HKDF-SHA256) before it reaches the Store.
//
// Locking:
//   - Bootstrap, rotation and import take a per-tenant lock.
//   - Reads of a version (GetKey) take no lock; a version's material never
//     changes once written.
package keys

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/codec"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/tenantlock"
)

// MaterialSize is the length of generated and imported key material.
const MaterialSize = 32

// MaxImportVersion is the largest version ImportKey accepts. A bootstrap
// import activates version+1, which must still fit the artifact header.
const MaxImportVersion = codec.MaxKeyVersion - 1

var (
	// ErrKeyConflict means an import targets a version that holds different material.
	ErrKeyConflict = apperr.New(apperr.KindConflict, "KEY_CONFLICT", "key version already registered with different material")

	// ErrInvalidFormat means wrapped material could not be decoded.
	ErrInvalidFormat = apperr.New(apperr.KindValidation, "INVALID_FORMAT", "key material cannot be decoded")

	// ErrTenantNotFound means the tenant has no key namespace and bootstrap was not requested.
	ErrTenantNotFound = apperr.New(apperr.KindNotFound, "TENANT_NOT_FOUND", "tenant has no key namespace")

	// ErrKeyNotFound means the requested version does not exist.
	ErrKeyNotFound = apperr.New(apperr.KindNotFound, "KEY_NOT_FOUND", "key version not found")
)

// Store persists key rows. The catalog package provides the implementation.
type Store interface {
	// ListKeys returns every version for the tenant in ascending order.
	ListKeys(ctx context.Context, tenantID string) ([]models.EncryptionKey, error)

	// GetKey returns one version. found is false when it does not exist.
	GetKey(ctx context.Context, tenantID string, version int) (key *models.EncryptionKey, found bool, err error)

	// PutKeys inserts new versions in a single transaction. When retireActive
	// is set, the current ACTIVE version is marked RETIRED in the same
	// transaction. Implementations must refuse to overwrite an existing version.
	PutKeys(ctx context.Context, tenantID string, keys []models.EncryptionKey, retireActive bool) error
}

// Key is unsealed material for one version.
type Key struct {
	TenantID string
	Version  int
	Material []byte
}

// Manager implements the tenant key lifecycle.
type Manager struct {
	store  Store
	sealer *sealer
	locks  *tenantlock.Locks
	now    func() time.Time
	random io.Reader

	// exportWorkFactor is the age scrypt work factor for passphrase exports.
	exportWorkFactor int
}

// Option configures a Manager.
type Option func(*Manager)

// WithExportWorkFactor sets the scrypt work factor (log2 N) for passphrase exports.
func WithExportWorkFactor(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.exportWorkFactor = n
		}
	}
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a key manager sealing material under masterSecret.
func NewManager(store Store, masterSecret string, opts ...Option) (*Manager, error) {
	s, err := newSealer(masterSecret)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		store:            store,
		sealer:           s,
		locks:            tenantlock.New(),
		now:              time.Now,
		random:           rand.Reader,
		exportWorkFactor: 18,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// GetActiveKey returns the tenant's ACTIVE key, creating version 1 on first use.
func (m *Manager) GetActiveKey(ctx context.Context, tenantID string) (*Key, error) {
	if k, err := m.findActive(ctx, tenantID); err != nil || k != nil {
		return k, err
	}

	unlock := m.locks.Lock(tenantID)
	defer unlock()

	// Another caller may have bootstrapped while we waited.
	if k, err := m.findActive(ctx, tenantID); err != nil || k != nil {
		return k, err
	}
	return m.bootstrapLocked(ctx, tenantID)
}

// GetKey returns a specific version, ACTIVE or RETIRED.
func (m *Manager) GetKey(ctx context.Context, tenantID string, version int) (*Key, error) {
	row, found, err := m.store.GetKey(ctx, tenantID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load key version %d: %w", version, err)
	}
	if !found {
		return nil, apperr.Wrapf(ErrKeyNotFound, "tenant %s version %d", tenantID, version)
	}
	return m.unseal(row)
}

// RotateKey retires the ACTIVE key and activates a freshly generated one.
// A tenant without keys is bootstrapped at version 1 instead.
func (m *Manager) RotateKey(ctx context.Context, tenantID string) (int, error) {
	unlock := m.locks.Lock(tenantID)
	defer unlock()

	rows, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}
	if len(rows) == 0 {
		k, err := m.bootstrapLocked(ctx, tenantID)
		if err != nil {
			return 0, err
		}
		return k.Version, nil
	}

	next := maxVersion(rows) + 1
	if uint64(next) > codec.MaxKeyVersion {
		return 0, apperr.Wrapf(ErrInvalidFormat, "key version %d exceeds %d", next, uint64(codec.MaxKeyVersion))
	}
	row, err := m.newGeneratedRow(tenantID, next)
	if err != nil {
		return 0, err
	}
	if err := m.store.PutKeys(ctx, tenantID, []models.EncryptionKey{*row}, true); err != nil {
		return 0, fmt.Errorf("failed to store rotated key: %w", err)
	}

	metrics.RecordKeyRotation()
	logging.Info().
		Str("tenant_id", tenantID).
		Int("key_version", next).
		Int("previous_version", activeVersion(rows)).
		Msg("Rotated tenant encryption key")

	return next, nil
}

// ListKeys returns key metadata without material.
func (m *Manager) ListKeys(ctx context.Context, tenantID string) ([]models.KeyInfo, error) {
	rows, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	infos := make([]models.KeyInfo, 0, len(rows))
	for i := range rows {
		infos = append(infos, rows[i].Info())
	}
	return infos, nil
}

// registerImported stores material as a RETIRED version. Must hold the tenant lock.
func (m *Manager) registerImported(ctx context.Context, tenantID string, version int, material []byte, bootstrap bool) error {
	rows, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(rows) == 0 && !bootstrap {
		return apperr.Wrapf(ErrTenantNotFound, "tenant %s", tenantID)
	}

	for i := range rows {
		if rows[i].Version != version {
			continue
		}
		existing, err := m.unseal(&rows[i])
		if err != nil {
			return err
		}
		if bytes.Equal(existing.Material, material) {
			return nil
		}
		return apperr.Wrapf(ErrKeyConflict, "tenant %s version %d", tenantID, version)
	}

	sealed, err := m.sealer.seal(tenantID, version, material)
	if err != nil {
		return err
	}
	imported := models.EncryptionKey{
		TenantID:       tenantID,
		Version:        version,
		SealedMaterial: sealed,
		Status:         models.KeyStatusRetired,
		Origin:         models.KeyOriginImported,
		CreatedAt:      m.now().UTC(),
	}
	retiredAt := imported.CreatedAt
	imported.RetiredAt = &retiredAt

	batch := []models.EncryptionKey{imported}
	if len(rows) == 0 {
		// Namespace bootstrap: the tenant still needs exactly one ACTIVE key.
		active, err := m.newGeneratedRow(tenantID, version+1)
		if err != nil {
			return err
		}
		batch = append(batch, *active)
	}

	if err := m.store.PutKeys(ctx, tenantID, batch, false); err != nil {
		return fmt.Errorf("failed to store imported key: %w", err)
	}
	return nil
}

func (m *Manager) findActive(ctx context.Context, tenantID string) (*Key, error) {
	rows, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	for i := range rows {
		if rows[i].Status == models.KeyStatusActive {
			return m.unseal(&rows[i])
		}
	}
	return nil, nil
}

func (m *Manager) bootstrapLocked(ctx context.Context, tenantID string) (*Key, error) {
	material, err := m.generate()
	if err != nil {
		return nil, err
	}
	sealed, err := m.sealer.seal(tenantID, 1, material)
	if err != nil {
		return nil, err
	}
	row := models.EncryptionKey{
		TenantID:       tenantID,
		Version:        1,
		SealedMaterial: sealed,
		Status:         models.KeyStatusActive,
		Origin:         models.KeyOriginGenerated,
		CreatedAt:      m.now().UTC(),
	}
	if err := m.store.PutKeys(ctx, tenantID, []models.EncryptionKey{row}, false); err != nil {
		return nil, fmt.Errorf("failed to store bootstrap key: %w", err)
	}

	metrics.RecordKeyBootstrap()
	logging.Info().Str("tenant_id", tenantID).Int("key_version", 1).Msg("Bootstrapped tenant encryption key")

	return &Key{TenantID: tenantID, Version: 1, Material: material}, nil
}

func (m *Manager) newGeneratedRow(tenantID string, version int) (*models.EncryptionKey, error) {
	material, err := m.generate()
	if err != nil {
		return nil, err
	}
	sealed, err := m.sealer.seal(tenantID, version, material)
	if err != nil {
		return nil, err
	}
	return &models.EncryptionKey{
		TenantID:       tenantID,
		Version:        version,
		SealedMaterial: sealed,
		Status:         models.KeyStatusActive,
		Origin:         models.KeyOriginGenerated,
		CreatedAt:      m.now().UTC(),
	}, nil
}

func (m *Manager) generate() ([]byte, error) {
	material := make([]byte, MaterialSize)
	if _, err := io.ReadFull(m.random, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return material, nil
}

func (m *Manager) unseal(row *models.EncryptionKey) (*Key, error) {
	material, err := m.sealer.open(row.TenantID, row.Version, row.SealedMaterial)
	if err != nil {
		return nil, fmt.Errorf("tenant %s version %d: %w", row.TenantID, row.Version, err)
	}
	return &Key{TenantID: row.TenantID, Version: row.Version, Material: material}, nil
}

func maxVersion(rows []models.EncryptionKey) int {
	v := 0
	for i := range rows {
		if rows[i].Version > v {
			v = rows[i].Version
		}
	}
	return v
}

func activeVersion(rows []models.EncryptionKey) int {
	for i := range rows {
		if rows[i].Status == models.KeyStatusActive {
			return rows[i].Version
		}
	}
	return 0
}
