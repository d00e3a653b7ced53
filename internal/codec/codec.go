// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package codec seals backup artifacts with AES-256-GCM and computes their
// integrity checksums.
//
// The codec never looks up keys. Callers pass the key version and material
// obtained from the keys package, which keeps custody in one place and lets
// tests run with fixed material.
//
// Ciphertext Layout:
//
//	+--------+-------+-------------+----------+------------------------+
//	| "VKA1" | flags | version u32 | nonce 12 | GCM(body) || tag 16    |
//	+--------+-------+-------------+----------+------------------------+
//
// The first 9 bytes are authenticated as GCM additional data, so an artifact
// cannot be relabelled with a different key version. Flag bit 0 marks a zstd
// compressed body.
//
// Checksums are SHA-256 over the full ciphertext. They detect storage
// corruption independently of key correctness.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
)

const (
	// KeySize is the required material length (AES-256).
	KeySize = 32

	nonceSize  = 12
	headerSize = 4 + 1 + 4

	flagCompressed byte = 1 << 0

	// DefaultMaxPlaintext bounds decompression output (4 GiB).
	DefaultMaxPlaintext = 4 << 30

	// MaxKeyVersion is the largest version the 4-byte header can carry.
	MaxKeyVersion = math.MaxUint32
)

var magic = []byte("VKA1")

var (
	// ErrDecryptionFailed covers malformed ciphertext, a wrong key or version,
	// and tampering. No plaintext is ever returned with it.
	ErrDecryptionFailed = apperr.New(apperr.KindIntegrity, "DECRYPTION_FAILED", "decryption failed")

	// ErrChecksumMismatch means the stored ciphertext differs from what was recorded.
	ErrChecksumMismatch = apperr.New(apperr.KindIntegrity, "CHECKSUM_MISMATCH", "artifact checksum mismatch")

	// ErrInvalidKeyMaterial means the material is not KeySize bytes or the version
	// is outside 1..MaxKeyVersion.
	ErrInvalidKeyMaterial = apperr.New(apperr.KindValidation, "INVALID_KEY_MATERIAL", "invalid key material")
)

// Options configures a Codec.
type Options struct {
	// MaxPlaintext caps the decompressed artifact size. Default: DefaultMaxPlaintext
	MaxPlaintext int64

	// DisableCompression stores the body uncompressed
	DisableCompression bool
}

// Codec encrypts and decrypts artifacts. It is safe for concurrent use.
type Codec struct {
	opts       Options
	compressor *compressor
}

// New creates a Codec.
func New(opts Options) (*Codec, error) {
	if opts.MaxPlaintext <= 0 {
		opts.MaxPlaintext = DefaultMaxPlaintext
	}
	comp, err := newCompressor(uint64(opts.MaxPlaintext))
	if err != nil {
		return nil, err
	}
	return &Codec{opts: opts, compressor: comp}, nil
}

// Close releases compressor resources.
func (c *Codec) Close() {
	c.compressor.close()
}

// Encrypt seals plaintext under material and returns the ciphertext with its checksum.
func (c *Codec) Encrypt(plaintext []byte, version int, material []byte) (ciphertext []byte, checksum string, err error) {
	if len(material) != KeySize {
		return nil, "", apperr.Wrapf(ErrInvalidKeyMaterial, "material is %d bytes, want %d", len(material), KeySize)
	}
	if version <= 0 || uint64(version) > MaxKeyVersion {
		return nil, "", apperr.Wrapf(ErrInvalidKeyMaterial, "key version %d outside 1..%d", version, uint64(MaxKeyVersion))
	}

	body := plaintext
	var flags byte
	if !c.opts.DisableCompression && len(plaintext) > 0 {
		body = c.compressor.compress(plaintext)
		flags |= flagCompressed
	}

	gcm, err := newGCM(material)
	if err != nil {
		return nil, "", err
	}

	header := encodeHeader(flags, version)

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+nonceSize+len(body)+gcm.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, body, header)

	return out, Checksum(out), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *Codec) Decrypt(ciphertext []byte, version int, material []byte) ([]byte, error) {
	if len(material) != KeySize {
		return nil, apperr.Wrapf(ErrDecryptionFailed, "material is %d bytes", len(material))
	}

	flags, headerVersion, err := ParseHeader(ciphertext)
	if err != nil {
		return nil, err
	}
	if headerVersion != version {
		return nil, apperr.Wrapf(ErrDecryptionFailed, "artifact sealed with key version %d, got %d", headerVersion, version)
	}

	gcm, err := newGCM(material)
	if err != nil {
		return nil, apperr.Wrap(ErrDecryptionFailed, err)
	}

	rest := ciphertext[headerSize:]
	if len(rest) < nonceSize+gcm.Overhead() {
		return nil, apperr.Wrapf(ErrDecryptionFailed, "ciphertext too short")
	}
	nonce := rest[:nonceSize]

	body, err := gcm.Open(nil, nonce, rest[nonceSize:], ciphertext[:headerSize])
	if err != nil {
		return nil, apperr.Wrap(ErrDecryptionFailed, err)
	}

	if flags&flagCompressed == 0 {
		return body, nil
	}

	plaintext, err := c.compressor.decompress(body)
	if err != nil {
		return nil, apperr.Wrap(ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Verify compares ciphertext against a recorded checksum.
func Verify(ciphertext []byte, checksum string) error {
	got := Checksum(ciphertext)
	if subtle.ConstantTimeCompare([]byte(got), []byte(checksum)) != 1 {
		return apperr.Wrapf(ErrChecksumMismatch, "expected %s, got %s", checksum, got)
	}
	return nil
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParseHeader returns the flags and key version of a ciphertext without decrypting it.
func ParseHeader(ciphertext []byte) (flags byte, version int, err error) {
	if len(ciphertext) < headerSize {
		return 0, 0, apperr.Wrapf(ErrDecryptionFailed, "ciphertext shorter than header")
	}
	if !bytes.Equal(ciphertext[:4], magic) {
		return 0, 0, apperr.Wrapf(ErrDecryptionFailed, "bad magic")
	}
	flags = ciphertext[4]
	if flags&^flagCompressed != 0 {
		return 0, 0, apperr.Wrapf(ErrDecryptionFailed, "unknown flags %#x", flags)
	}
	v := binary.BigEndian.Uint32(ciphertext[5:headerSize])
	if v == 0 {
		return 0, 0, apperr.Wrapf(ErrDecryptionFailed, "zero key version")
	}
	return flags, int(v), nil
}

func encodeHeader(flags byte, version int) []byte {
	h := make([]byte, headerSize)
	copy(h, magic)
	h[4] = flags
	binary.BigEndian.PutUint32(h[5:], uint32(version))
	return h
}

func newGCM(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
