// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
snapshot.go - Tenant Snapshot Producer

Serializes a tenant's dataset into a self-describing artifact:

	{
	  "header": {
	    "format_version": 1,
	    "tenant_id": "school-a",
	    "type": "FULL",
	    "created_at": "2026-03-01T09:00:00Z",
	    "entities": {"students": 2, "courses": 1},
	    "total_records": 3
	  },
	  "entities": {
	    "students": [{"id": "s1", ...}, {"id": "s2", ...}],
	    "courses": [{"id": "c1", ...}]
	  }
	}

The header is checked in full before any record reaches a data source, so an
artifact from a newer engine or another tenant is rejected without side effects.
*/

//nolint:staticcheck // File documentation, not package doc
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/datasource"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// FormatVersion is the artifact format written by this engine.
const FormatVersion = 1

var (
	// ErrSnapshot is returned when the data source fails during export.
	ErrSnapshot = apperr.New(apperr.KindDependency, "SNAPSHOT_FAILED", "snapshot failed")

	// ErrIncompatibleFormat is returned when an artifact cannot be applied by this engine.
	ErrIncompatibleFormat = apperr.New(apperr.KindIntegrity, "INCOMPATIBLE_FORMAT", "incompatible artifact format")
)

// Header describes an artifact's contents.
type Header struct {
	FormatVersion int               `json:"format_version"`
	TenantID      string            `json:"tenant_id"`
	Type          models.BackupType `json:"type"`
	Watermark     *time.Time        `json:"watermark,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Entities      map[string]int    `json:"entities"`
	TotalRecords  int               `json:"total_records"`
}

// Artifact is a decoded snapshot.
type Artifact struct {
	Header   Header             `json:"header"`
	Entities datasource.Dataset `json:"entities"`
}

// Result is the output of Produce.
type Result struct {
	Data   []byte
	Header Header

	// EffectiveType is the capture actually performed.
	EffectiveType models.BackupType

	// Downgraded is set when an incremental request had no watermark.
	Downgraded bool
}

// Producer exports tenant data into artifacts.
type Producer struct {
	source datasource.Source
	now    func() time.Time
}

// NewProducer creates a Producer reading from source.
func NewProducer(source datasource.Source) *Producer {
	return &Producer{source: source, now: time.Now}
}

// Produce exports the tenant and serializes it.
//
// FULL and MANUAL export everything. INCREMENTAL exports records changed after
// watermark; without a watermark it is performed as FULL and reported as Downgraded.
func (p *Producer) Produce(ctx context.Context, tenantID string, typ models.BackupType, watermark *time.Time) (*Result, error) {
	if !typ.Valid() {
		return nil, apperr.Validation("INVALID_BACKUP_TYPE", "unknown backup type %q", typ)
	}

	effective := typ
	downgraded := false
	if typ == models.BackupTypeIncremental && watermark == nil {
		effective = models.BackupTypeFull
		downgraded = true
		logging.Ctx(ctx).Warn().
			Str("tenant_id", tenantID).
			Bool("downgraded", true).
			Str("requested_type", string(typ)).
			Str("type", string(effective)).
			Msg("No completed backup to build on, performing full capture")
	}

	var (
		ds  datasource.Dataset
		err error
	)
	if effective == models.BackupTypeIncremental {
		ds, err = p.source.ExportSince(ctx, tenantID, *watermark)
	} else {
		ds, err = p.source.Export(ctx, tenantID)
	}
	if err != nil {
		return nil, apperr.Wrap(ErrSnapshot, err)
	}
	if ds == nil {
		ds = datasource.Dataset{}
	}

	header := Header{
		FormatVersion: FormatVersion,
		TenantID:      tenantID,
		Type:          effective,
		CreatedAt:     p.now().UTC(),
		Entities:      ds.Counts(),
		TotalRecords:  ds.Total(),
	}
	if effective == models.BackupTypeIncremental {
		w := watermark.UTC()
		header.Watermark = &w
	}

	data, err := json.Marshal(Artifact{Header: header, Entities: ds})
	if err != nil {
		return nil, apperr.Wrap(ErrSnapshot, fmt.Errorf("failed to serialize snapshot: %w", err))
	}

	return &Result{
		Data:          data,
		Header:        header,
		EffectiveType: effective,
		Downgraded:    downgraded,
	}, nil
}

// ParseHeader decodes and checks only the header of an artifact.
func ParseHeader(data []byte) (*Header, error) {
	var envelope struct {
		Header *Header `json:"header"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "failed to parse artifact: %w", err)
	}
	if envelope.Header == nil {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "artifact has no header")
	}
	if err := checkHeader(envelope.Header); err != nil {
		return nil, err
	}
	return envelope.Header, nil
}

// Decode parses an artifact and checks it against tenantID.
// Numbers are decoded as json.Number so integer ids survive unchanged.
func Decode(data []byte, tenantID string) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "failed to parse artifact: %w", err)
	}
	if err := checkHeader(&a.Header); err != nil {
		return nil, err
	}
	if a.Header.TenantID != tenantID {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "artifact belongs to tenant %q", a.Header.TenantID)
	}
	if a.Entities == nil {
		a.Entities = datasource.Dataset{}
	}

	if len(a.Entities) != len(a.Header.Entities) {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "header lists %d entities, body has %d",
			len(a.Header.Entities), len(a.Entities))
	}
	for name, want := range a.Header.Entities {
		records, ok := a.Entities[name]
		if !ok {
			return nil, apperr.Wrapf(ErrIncompatibleFormat, "entity %s missing from body", name)
		}
		if len(records) != want {
			return nil, apperr.Wrapf(ErrIncompatibleFormat, "entity %s has %d records, header says %d",
				name, len(records), want)
		}
	}
	if total := a.Entities.Total(); total != a.Header.TotalRecords {
		return nil, apperr.Wrapf(ErrIncompatibleFormat, "body has %d records, header says %d",
			total, a.Header.TotalRecords)
	}

	return &a, nil
}

func checkHeader(h *Header) error {
	if h.FormatVersion != FormatVersion {
		return apperr.Wrapf(ErrIncompatibleFormat, "unsupported format version %d (supported: %d)",
			h.FormatVersion, FormatVersion)
	}
	if h.TenantID == "" {
		return apperr.Wrapf(ErrIncompatibleFormat, "header has no tenant")
	}
	if !h.Type.Valid() {
		return apperr.Wrapf(ErrIncompatibleFormat, "header has unknown type %q", h.Type)
	}
	return nil
}
