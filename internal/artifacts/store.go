// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// Extension is the file suffix of every stored artifact.
const Extension = ".vka"

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

var (
	// ErrNotFound is returned when no artifact exists at a location.
	ErrNotFound = errors.New("artifact not found")

	// ErrOutsideStore is returned for locations that do not resolve inside the store directory.
	ErrOutsideStore = errors.New("artifact location outside store")

	// ErrStorage wraps filesystem failures (disk full, permissions, I/O errors).
	ErrStorage = apperr.New(apperr.KindDependency, "ARTIFACT_STORAGE", "artifact storage unavailable")
)

// storageErr classifies a filesystem failure as ErrStorage.
func storageErr(op string, err error) error {
	return apperr.Wrap(ErrStorage, fmt.Errorf("failed to %s: %w", op, err))
}

// Store is a directory of tenant artifacts.
type Store struct {
	dir string
}

// New creates the store directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifacts dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts dir: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the artifact of a backup lives.
func (s *Store) Path(tenantID, backupID string) string {
	return filepath.Join(s.dir, tenantID, backupID+Extension)
}

// Put writes an artifact atomically and returns its location.
func (s *Store) Put(tenantID, backupID string, data []byte) (string, error) {
	if !models.ValidTenantID(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	if !models.ValidTenantID(backupID) {
		return "", fmt.Errorf("invalid backup id %q", backupID)
	}

	tenantDir := filepath.Join(s.dir, tenantID)
	if err := os.MkdirAll(tenantDir, dirPerm); err != nil {
		return "", storageErr("create tenant dir", err)
	}

	final := s.Path(tenantID, backupID)
	tmp, err := os.CreateTemp(tenantDir, "."+backupID+"-*.tmp")
	if err != nil {
		return "", storageErr("create temp artifact", err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error
		return "", err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error
		return "", storageErr("set artifact permissions", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error
		return "", storageErr("move artifact into place", err)
	}

	logging.Debug().
		Str("tenant_id", tenantID).
		Str("backup_id", backupID).
		Int("size_bytes", len(data)).
		Msg("Artifact written")

	return final, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck // Write error takes precedence
		return storageErr("write artifact", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck // Sync error takes precedence
		return storageErr("sync artifact", err)
	}
	if err := f.Close(); err != nil {
		return storageErr("close artifact", err)
	}
	return nil
}

// Get reads the artifact at location.
func (s *Store) Get(location string) ([]byte, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is confined to the store dir by resolve
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if err != nil {
		return nil, storageErr("read artifact", err)
	}
	return data, nil
}

// Exists reports whether an artifact is present at location.
func (s *Store) Exists(location string) bool {
	path, err := s.resolve(location)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the artifact at location. A missing file is not an error.
func (s *Store) Delete(location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete artifact", err)
	}
	return nil
}

func (s *Store) resolve(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("%w: empty location", ErrNotFound)
	}
	path := filepath.Clean(location)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideStore, location)
	}
	return path, nil
}
