// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
datasource.go - Tenant Data Source Contract

The engine never owns tenant data. It exports a tenant's entities through a
Source when taking a backup and hands a decoded dataset back to the same
Source when restoring.

Records are loosely typed maps. Every record carries an "id" field; records
that support incremental export also carry "updated_at".
*/

//nolint:staticcheck // File documentation, not package doc
package datasource

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// Well-known record fields.
const (
	FieldID        = "id"
	FieldTenantID  = "tenant_id"
	FieldUpdatedAt = "updated_at"
)

// Record is one row of an entity.
type Record map[string]any

// Dataset maps an entity name to its ordered records.
type Dataset map[string][]Record

// Counts returns the number of records per entity.
func (d Dataset) Counts() map[string]int {
	counts := make(map[string]int, len(d))
	for name, records := range d {
		counts[name] = len(records)
	}
	return counts
}

// Total returns the number of records across all entities.
func (d Dataset) Total() int {
	total := 0
	for _, records := range d {
		total += len(records)
	}
	return total
}

// Entities returns entity names in sorted order.
func (d Dataset) Entities() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyMode selects how Apply treats existing tenant data.
type ApplyMode string

const (
	// ApplyReplace removes the tenant's existing rows of each entity before inserting.
	ApplyReplace ApplyMode = "REPLACE"

	// ApplyMerge upserts records by id and leaves other rows untouched.
	ApplyMerge ApplyMode = "MERGE"
)

// ApplyResult reports what Apply changed.
// An entity listed in EntityErrors was not applied; entities in Applied were.
type ApplyResult struct {
	Applied      map[string]int    `json:"applied"`
	EntityErrors map[string]string `json:"entity_errors,omitempty"`
}

// Partial reports whether some entities failed to apply.
func (r ApplyResult) Partial() bool {
	return len(r.EntityErrors) > 0
}

// Source exports and re-applies a tenant's data.
type Source interface {
	// Export returns every entity of the tenant.
	Export(ctx context.Context, tenantID string) (Dataset, error)

	// ExportSince returns records updated strictly after since.
	ExportSince(ctx context.Context, tenantID string, since time.Time) (Dataset, error)

	// Apply writes dataset into the tenant. A returned error means nothing
	// useful can be said about what was applied; per-entity failures are
	// reported in ApplyResult.EntityErrors instead.
	Apply(ctx context.Context, tenantID string, dataset Dataset, mode ApplyMode) (ApplyResult, error)
}

// RecordTime extracts a timestamp field from a record.
// Values decoded from JSON arrive as RFC 3339 strings.
func RecordTime(r Record, field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case time.Time:
		return v, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

// RecordID returns a record's id in a comparable string form.
func RecordID(r Record) (string, bool) {
	switch v := r[FieldID].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case nil:
		return "", false
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
