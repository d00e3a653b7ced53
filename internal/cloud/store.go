// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tomtom215/vaultkeeper/internal/config"
)

// ErrObjectNotFound is returned by Download for a missing object.
var ErrObjectNotFound = errors.New("remote object not found")

// RemoteStore is the object storage capability used for replication.
type RemoteStore interface {
	// Upload stores data at objectPath and returns the object's URI.
	Upload(ctx context.Context, data []byte, objectPath string) (string, error)

	// Download returns the object at uri.
	Download(ctx context.Context, uri string) ([]byte, error)

	// Exists reports whether the object at uri is present.
	Exists(ctx context.Context, uri string) (bool, error)

	// Delete removes the object at uri. A missing object is not an error.
	Delete(ctx context.Context, uri string) error
}

// ObjectPath builds the remote path of a backup artifact.
func ObjectPath(prefix, tenantID, backupID string) string {
	name := backupID + ".vka"
	if prefix == "" {
		return path.Join(tenantID, name)
	}
	return path.Join(prefix, tenantID, name)
}

// splitURI parses scheme://bucket/key.
func splitURI(uri, scheme string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("unsupported object uri %q: want %s://", uri, scheme)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object uri %q", uri)
	}
	return bucket, key, nil
}

// NewRemoteStore builds the configured store wrapped in a circuit breaker.
func NewRemoteStore(ctx context.Context, cfg *config.CloudConfig) (RemoteStore, error) {
	var store RemoteStore
	switch cfg.Provider {
	case "memory":
		store = NewMemoryStore(cfg.Bucket)
	case "s3":
		s3Store, err := NewS3Store(ctx, S3Options{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", cfg.Provider)
	}
	return NewBreakerStore(cfg.Provider, store, &cfg.Breaker), nil
}
