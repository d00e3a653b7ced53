// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
)

// envelopeFormat identifies exported key envelopes.
const envelopeFormat = "vaultkeeper-key/v1"

// maxImportSize bounds wrapped input before decoding.
const maxImportSize = 64 * 1024

// envelope is the transportable form of one key version.
type envelope struct {
	Format    string    `json:"format"`
	TenantID  string    `json:"tenant_id"`
	Version   int       `json:"version"`
	Material  string    `json:"material"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportOptions selects what to export and how to wrap it.
type ExportOptions struct {
	// Version to export; 0 exports the ACTIVE key.
	Version int

	// Passphrase wraps the envelope with age scrypt encryption (ASCII armored).
	// Empty exports plain base64.
	Passphrase string
}

// ImportOptions controls how wrapped material is registered.
type ImportOptions struct {
	// Version overrides the version embedded in an envelope. Required for raw material.
	Version int

	// Passphrase opens an age-armored export.
	Passphrase string

	// Bootstrap creates the tenant's key namespace when it has none.
	Bootstrap bool
}

// ExportKey returns key material in a transportable encoding.
// Exporting never changes key status.
func (m *Manager) ExportKey(ctx context.Context, tenantID string, opts ExportOptions) (string, error) {
	var (
		k   *Key
		err error
	)
	if opts.Version == 0 {
		k, err = m.GetActiveKey(ctx, tenantID)
	} else {
		k, err = m.GetKey(ctx, tenantID, opts.Version)
	}
	if err != nil {
		return "", err
	}

	row, _, err := m.store.GetKey(ctx, tenantID, k.Version)
	if err != nil {
		return "", fmt.Errorf("failed to load key metadata: %w", err)
	}
	createdAt := m.now().UTC()
	if row != nil {
		createdAt = row.CreatedAt
	}

	payload, err := json.Marshal(envelope{
		Format:    envelopeFormat,
		TenantID:  tenantID,
		Version:   k.Version,
		Material:  base64.StdEncoding.EncodeToString(k.Material),
		CreatedAt: createdAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode key envelope: %w", err)
	}

	logging.Info().
		Str("tenant_id", tenantID).
		Int("key_version", k.Version).
		Bool("passphrase", opts.Passphrase != "").
		Msg("Exported tenant encryption key")

	if opts.Passphrase == "" {
		return base64.StdEncoding.EncodeToString(payload), nil
	}
	return m.wrapWithPassphrase(payload, opts.Passphrase)
}

// ImportKey registers externally supplied material as a RETIRED version and
// returns the version it was stored under. Importing identical material for
// an existing version succeeds without change.
func (m *Manager) ImportKey(ctx context.Context, tenantID, wrapped string, opts ImportOptions) (int, error) {
	version, material, err := m.decodeWrapped(tenantID, wrapped, opts)
	if err != nil {
		metrics.RecordKeyImport("invalid")
		return 0, err
	}

	unlock := m.locks.Lock(tenantID)
	defer unlock()

	if err := m.registerImported(ctx, tenantID, version, material, opts.Bootstrap); err != nil {
		metrics.RecordKeyImport(outcomeFor(err))
		return 0, err
	}

	metrics.RecordKeyImport("ok")
	logging.Info().Str("tenant_id", tenantID).Int("key_version", version).Msg("Imported tenant encryption key")
	return version, nil
}

func (m *Manager) wrapWithPassphrase(payload []byte, passphrase string) (string, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return "", fmt.Errorf("failed to create scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(m.exportWorkFactor)

	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	w, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return "", fmt.Errorf("failed to start age encryption: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write key envelope: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to finish armor: %w", err)
	}
	return buf.String(), nil
}

func (m *Manager) decodeWrapped(tenantID, wrapped string, opts ImportOptions) (int, []byte, error) {
	wrapped = strings.TrimSpace(wrapped)
	if wrapped == "" {
		return 0, nil, apperr.Wrapf(ErrInvalidFormat, "empty input")
	}
	if len(wrapped) > maxImportSize {
		return 0, nil, apperr.Wrapf(ErrInvalidFormat, "input exceeds %d bytes", maxImportSize)
	}

	var payload []byte
	if strings.HasPrefix(wrapped, armor.Header) {
		if opts.Passphrase == "" {
			return 0, nil, apperr.Wrapf(ErrInvalidFormat, "passphrase-protected export requires a passphrase")
		}
		identity, err := age.NewScryptIdentity(opts.Passphrase)
		if err != nil {
			return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
		}
		r, err := age.Decrypt(armor.NewReader(strings.NewReader(wrapped)), identity)
		if err != nil {
			return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
		}
		payload, err = io.ReadAll(io.LimitReader(r, maxImportSize))
		if err != nil {
			return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
		}
	} else {
		decoded, err := base64.StdEncoding.DecodeString(wrapped)
		if err != nil {
			return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
		}
		payload = decoded
	}

	// Raw material: exactly MaterialSize bytes, version supplied by the caller.
	if len(payload) == MaterialSize {
		if opts.Version <= 0 {
			return 0, nil, apperr.Wrapf(ErrInvalidFormat, "raw key material requires an explicit version")
		}
		if err := checkImportVersion(opts.Version); err != nil {
			return 0, nil, err
		}
		return opts.Version, payload, nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
	}
	if env.Format != envelopeFormat {
		return 0, nil, apperr.Wrapf(ErrInvalidFormat, "unknown envelope format %q", env.Format)
	}
	material, err := base64.StdEncoding.DecodeString(env.Material)
	if err != nil {
		return 0, nil, apperr.Wrap(ErrInvalidFormat, err)
	}
	if len(material) != MaterialSize {
		return 0, nil, apperr.Wrapf(ErrInvalidFormat, "material is %d bytes, want %d", len(material), MaterialSize)
	}

	version := env.Version
	if opts.Version > 0 {
		version = opts.Version
	}
	if version <= 0 {
		return 0, nil, apperr.Wrapf(ErrInvalidFormat, "envelope has no version")
	}
	if err := checkImportVersion(version); err != nil {
		return 0, nil, err
	}

	if env.TenantID != "" && env.TenantID != tenantID {
		logging.Warn().
			Str("tenant_id", tenantID).
			Str("source_tenant_id", env.TenantID).
			Int("key_version", version).
			Msg("Importing key exported from a different tenant")
	}
	return version, material, nil
}

func checkImportVersion(version int) error {
	if uint64(version) > MaxImportVersion {
		return apperr.Wrapf(ErrInvalidFormat, "key version %d exceeds %d", version, uint64(MaxImportVersion))
	}
	return nil
}

func outcomeFor(err error) string {
	switch apperr.CodeOf(err) {
	case ErrKeyConflict.Code:
		return "conflict"
	case ErrTenantNotFound.Code:
		return "tenant_not_found"
	default:
		return "error"
	}
}
