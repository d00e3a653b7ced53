// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func seededSource() *MemorySource {
	src := NewMemorySource()
	src.Put("school-a", "students",
		Record{"id": "s1", "name": "Ada", "updated_at": t0},
		Record{"id": "s2", "name": "Grace", "updated_at": t2},
	)
	src.Put("school-a", "courses", Record{"id": "c1", "title": "Maths", "updated_at": t1})
	src.Put("school-b", "students", Record{"id": "s9", "name": "Linus"})
	return src
}

func TestMemorySource_ExportIsTenantScoped(t *testing.T) {
	t.Parallel()

	ds, err := seededSource().Export(context.Background(), "school-a")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if ds.Total() != 3 {
		t.Errorf("Total() = %d, want 3", ds.Total())
	}
	for _, r := range ds["students"] {
		if r["id"] == "s9" {
			t.Error("school-b record leaked into school-a export")
		}
	}
}

func TestMemorySource_ExportReturnsCopies(t *testing.T) {
	t.Parallel()

	src := seededSource()
	ds, _ := src.Export(context.Background(), "school-a")
	ds["students"][0]["name"] = "mutated"

	again, _ := src.Export(context.Background(), "school-a")
	if again["students"][0]["name"] != "Ada" {
		t.Error("mutating an export changed the source")
	}
}

func TestMemorySource_ExportSince(t *testing.T) {
	t.Parallel()

	ds, err := seededSource().ExportSince(context.Background(), "school-a", t0)
	if err != nil {
		t.Fatalf("ExportSince() error = %v", err)
	}
	counts := ds.Counts()
	if counts["students"] != 1 || counts["courses"] != 1 {
		t.Errorf("Counts() = %v, want students=1 courses=1", counts)
	}
	if ds["students"][0]["id"] != "s2" {
		t.Errorf("expected s2, got %v", ds["students"][0]["id"])
	}
}

func TestMemorySource_ApplyReplace(t *testing.T) {
	t.Parallel()

	src := seededSource()
	res, err := src.Apply(context.Background(), "school-a", Dataset{
		"students": {{"id": "s3", "name": "Hedy"}},
	}, ApplyReplace)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Partial() || res.Applied["students"] != 1 {
		t.Errorf("ApplyResult = %+v", res)
	}

	got := src.Snapshot("school-a")
	if len(got["students"]) != 1 || got["students"][0]["id"] != "s3" {
		t.Errorf("students after replace = %v", got["students"])
	}
	if len(got["courses"]) != 1 {
		t.Error("entities absent from the dataset must be left alone")
	}
	if len(src.Snapshot("school-b")["students"]) != 1 {
		t.Error("other tenant changed")
	}
}

func TestMemorySource_ApplyMerge(t *testing.T) {
	t.Parallel()

	src := seededSource()
	_, err := src.Apply(context.Background(), "school-a", Dataset{
		"students": {
			{"id": "s2", "name": "Grace Hopper"},
			{"id": "s4", "name": "Barbara"},
		},
	}, ApplyMerge)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	students := src.Snapshot("school-a")["students"]
	if len(students) != 3 {
		t.Fatalf("len(students) = %d, want 3", len(students))
	}
	if students[1]["name"] != "Grace Hopper" {
		t.Errorf("s2 not updated in place: %v", students[1])
	}
	if students[2]["id"] != "s4" {
		t.Errorf("s4 not appended: %v", students[2])
	}
}

func TestMemorySource_ApplyMergeWithoutID(t *testing.T) {
	t.Parallel()

	src := seededSource()
	res, err := src.Apply(context.Background(), "school-a", Dataset{
		"students": {{"name": "anonymous"}},
		"courses":  {{"id": "c2", "title": "Art"}},
	}, ApplyMerge)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Partial() {
		t.Fatal("expected partial result")
	}
	if _, ok := res.EntityErrors["students"]; !ok {
		t.Errorf("EntityErrors = %v, want students", res.EntityErrors)
	}
	if res.Applied["courses"] != 1 {
		t.Errorf("courses should still apply: %+v", res)
	}
}

func TestMemorySource_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seededSource().Export(ctx, "school-a"); err == nil {
		t.Error("expected context error")
	}
}

func TestRecordHelpers(t *testing.T) {
	t.Parallel()

	r := Record{"id": json.Number("42"), "updated_at": t1.Format(time.RFC3339Nano)}
	if id, ok := RecordID(r); !ok || id != "42" {
		t.Errorf("RecordID() = %q, %v", id, ok)
	}
	if ts, ok := RecordTime(r, FieldUpdatedAt); !ok || !ts.Equal(t1) {
		t.Errorf("RecordTime() = %v, %v", ts, ok)
	}
	if _, ok := RecordTime(Record{"updated_at": "yesterday"}, FieldUpdatedAt); ok {
		t.Error("unparseable time should not be ok")
	}
	if _, ok := RecordID(Record{}); ok {
		t.Error("missing id should not be ok")
	}
}
