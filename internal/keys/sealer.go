// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const (
	// sealSalt binds the derived KEK to tenant key wrapping.
	sealSalt = "vaultkeeper-tenant-key-encryption"

	// sealInfo is the HKDF info parameter; bump on format change.
	sealInfo = "tenant-key-wrap-v1"

	kekSize       = 32
	sealNonceSize = 12
)

var (
	// ErrEmptyMasterSecret is returned when no master secret is configured.
	ErrEmptyMasterSecret = errors.New("master secret cannot be empty")

	// errUnsealFailed means sealed material was tampered with or the master secret changed.
	errUnsealFailed = errors.New("failed to unseal key material: wrong master secret or corrupted key row")
)

// sealer wraps tenant key material under a key encryption key derived from
// the engine's master secret. The tenant and version are bound as additional
// data so a sealed row cannot be moved to another slot.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(masterSecret string) (*sealer, error) {
	if masterSecret == "" {
		return nil, ErrEmptyMasterSecret
	}

	r := hkdf.New(sha256.New, []byte(masterSecret), []byte(sealSalt), []byte(sealInfo))
	kek := make([]byte, kekSize)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func sealAAD(tenantID string, version int) []byte {
	return []byte(tenantID + ":" + strconv.Itoa(version))
}

func (s *sealer) seal(tenantID string, version int, material []byte) ([]byte, error) {
	nonce := make([]byte, sealNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, material, sealAAD(tenantID, version)), nil
}

func (s *sealer) open(tenantID string, version int, sealed []byte) ([]byte, error) {
	if len(sealed) < sealNonceSize+s.aead.Overhead() {
		return nil, errUnsealFailed
	}
	material, err := s.aead.Open(nil, sealed[:sealNonceSize], sealed[sealNonceSize:], sealAAD(tenantID, version))
	if err != nil {
		return nil, errUnsealFailed
	}
	return material, nil
}
