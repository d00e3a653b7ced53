// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

const memoryScheme = "memory"

// MemoryStore is an in-process RemoteStore.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
	uploads int
}

// NewMemoryStore creates an empty store. An empty bucket defaults to "local".
func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string][]byte)}
}

// Upload stores a copy of data.
func (m *MemoryStore) Upload(ctx context.Context, data []byte, objectPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath] = append([]byte(nil), data...)
	m.uploads++
	return fmt.Sprintf("%s://%s/%s", memoryScheme, m.bucket, objectPath), nil
}

// Download returns a copy of the object.
func (m *MemoryStore) Download(ctx context.Context, uri string) ([]byte, error) {
	key, err := m.key(uri)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether the object is stored.
func (m *MemoryStore) Exists(ctx context.Context, uri string) (bool, error) {
	key, err := m.key(uri)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Delete removes the object.
func (m *MemoryStore) Delete(ctx context.Context, uri string) error {
	key, err := m.key(uri)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Objects returns the stored object paths in sorted order.
func (m *MemoryStore) Objects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Uploads returns how many Upload calls succeeded.
func (m *MemoryStore) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}

func (m *MemoryStore) key(uri string) (string, error) {
	bucket, key, err := splitURI(uri, memoryScheme)
	if err != nil {
		return "", err
	}
	if bucket != m.bucket {
		return "", fmt.Errorf("object uri %q is not in bucket %s", uri, m.bucket)
	}
	return key, nil
}

var _ RemoteStore = (*MemoryStore)(nil)
