// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySource keeps tenant data in process memory.
// Used by tests and by the CLI when datasource.provider=memory.
type MemorySource struct {
	mu      sync.RWMutex
	tenants map[string]Dataset
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{tenants: make(map[string]Dataset)}
}

// Put appends records to an entity of a tenant.
func (m *MemorySource) Put(tenantID, entity string, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.tenants[tenantID]
	if !ok {
		ds = make(Dataset)
		m.tenants[tenantID] = ds
	}
	for _, r := range records {
		ds[entity] = append(ds[entity], cloneRecord(r))
	}
}

// Snapshot returns a copy of the tenant's current data.
func (m *MemorySource) Snapshot(tenantID string) Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyDataset(m.tenants[tenantID], nil)
}

// Export returns every entity of the tenant.
func (m *MemorySource) Export(ctx context.Context, tenantID string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Snapshot(tenantID), nil
}

// ExportSince returns records whose updated_at is after since.
// Records without updated_at are never included.
func (m *MemorySource) ExportSince(ctx context.Context, tenantID string, since time.Time) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return copyDataset(m.tenants[tenantID], func(r Record) bool {
		ts, ok := RecordTime(r, FieldUpdatedAt)
		return ok && ts.After(since)
	}), nil
}

// Apply writes the dataset into the tenant.
func (m *MemorySource) Apply(ctx context.Context, tenantID string, dataset Dataset, mode ApplyMode) (ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, err
	}
	if mode != ApplyReplace && mode != ApplyMerge {
		return ApplyResult{}, fmt.Errorf("unknown apply mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tenants[tenantID]
	if !ok {
		current = make(Dataset)
		m.tenants[tenantID] = current
	}

	result := ApplyResult{Applied: make(map[string]int, len(dataset))}
	for _, entity := range dataset.Entities() {
		records := dataset[entity]
		switch mode {
		case ApplyReplace:
			replaced := make([]Record, 0, len(records))
			for _, r := range records {
				replaced = append(replaced, cloneRecord(r))
			}
			current[entity] = replaced
		case ApplyMerge:
			merged, err := mergeRecords(current[entity], records)
			if err != nil {
				if result.EntityErrors == nil {
					result.EntityErrors = make(map[string]string)
				}
				result.EntityErrors[entity] = err.Error()
				continue
			}
			current[entity] = merged
		}
		result.Applied[entity] = len(records)
	}

	return result, nil
}

// mergeRecords upserts incoming records into existing by id, keeping order.
func mergeRecords(existing, incoming []Record) ([]Record, error) {
	index := make(map[string]int, len(existing))
	out := make([]Record, 0, len(existing)+len(incoming))
	for _, r := range existing {
		id, ok := RecordID(r)
		if ok {
			index[id] = len(out)
		}
		out = append(out, r)
	}

	for _, r := range incoming {
		id, ok := RecordID(r)
		if !ok {
			return nil, fmt.Errorf("record without %s cannot be merged", FieldID)
		}
		if pos, found := index[id]; found {
			out[pos] = cloneRecord(r)
			continue
		}
		index[id] = len(out)
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func copyDataset(ds Dataset, keep func(Record) bool) Dataset {
	out := make(Dataset, len(ds))
	for entity, records := range ds {
		copied := make([]Record, 0, len(records))
		for _, r := range records {
			if keep != nil && !keep(r) {
				continue
			}
			copied = append(copied, cloneRecord(r))
		}
		out[entity] = copied
	}
	return out
}

var _ Source = (*MemorySource)(nil)
