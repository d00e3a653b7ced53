// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package datasource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestDuckDB(t *testing.T) *DuckDBSource {
	t.Helper()

	src, err := OpenDuckDB("", []string{"students", "courses"})
	if err != nil {
		t.Fatalf("OpenDuckDB() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE students (id VARCHAR PRIMARY KEY, tenant_id VARCHAR NOT NULL, name VARCHAR, grade INTEGER, updated_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE courses (id VARCHAR PRIMARY KEY, tenant_id VARCHAR NOT NULL, title VARCHAR, updated_at TIMESTAMP NOT NULL)`,
		`INSERT INTO students VALUES ('s1', 'school-a', 'Ada', 9, TIMESTAMP '2026-03-01 09:00:00')`,
		`INSERT INTO students VALUES ('s2', 'school-a', 'Grace', 10, TIMESTAMP '2026-03-01 11:00:00')`,
		`INSERT INTO students VALUES ('s9', 'school-b', 'Linus', 11, TIMESTAMP '2026-03-01 11:00:00')`,
		`INSERT INTO courses VALUES ('c1', 'school-a', 'Maths', TIMESTAMP '2026-03-01 10:00:00')`,
	} {
		if _, err := src.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	return src
}

func countRows(t *testing.T, src *DuckDBSource, table, tenant string) int {
	t.Helper()
	var n int
	if err := src.DB().QueryRow("SELECT count(*) FROM "+quoteIdent(table)+" WHERE tenant_id = ?", tenant).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestDuckDBSource_Export(t *testing.T) {
	src := newTestDuckDB(t)

	ds, err := src.Export(context.Background(), "school-a")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if got := ds.Counts(); got["students"] != 2 || got["courses"] != 1 {
		t.Errorf("Counts() = %v", got)
	}
	if ds["students"][0]["id"] != "s1" {
		t.Errorf("rows should be ordered by id: %v", ds["students"])
	}
	if _, ok := ds["students"][0]["updated_at"].(string); !ok {
		t.Errorf("timestamps should export as strings, got %T", ds["students"][0]["updated_at"])
	}
}

func TestDuckDBSource_ExportSince(t *testing.T) {
	src := newTestDuckDB(t)

	since := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ds, err := src.ExportSince(context.Background(), "school-a", since)
	if err != nil {
		t.Fatalf("ExportSince() error = %v", err)
	}
	if got := ds.Counts(); got["students"] != 1 || got["courses"] != 1 {
		t.Errorf("Counts() = %v, want students=1 courses=1", got)
	}
}

func TestDuckDBSource_RoundTripThroughJSON(t *testing.T) {
	src := newTestDuckDB(t)
	ctx := context.Background()

	exported, err := src.Export(ctx, "school-a")
	if err != nil {
		t.Fatal(err)
	}

	// Artifacts are JSON; decode with UseNumber the way restores do.
	raw, err := json.Marshal(exported)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Dataset
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatal(err)
	}

	if _, err := src.DB().ExecContext(ctx, "DELETE FROM students WHERE tenant_id = 'school-a'"); err != nil {
		t.Fatal(err)
	}

	res, err := src.Apply(ctx, "school-a", decoded, ApplyReplace)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Partial() {
		t.Fatalf("unexpected entity errors: %v", res.EntityErrors)
	}
	if n := countRows(t, src, "students", "school-a"); n != 2 {
		t.Errorf("students rows = %d, want 2", n)
	}
	if n := countRows(t, src, "students", "school-b"); n != 1 {
		t.Errorf("school-b rows = %d, want 1", n)
	}
}

func TestDuckDBSource_ApplyMerge(t *testing.T) {
	src := newTestDuckDB(t)
	ctx := context.Background()

	_, err := src.Apply(ctx, "school-a", Dataset{
		"students": {
			{"id": "s2", "name": "Grace Hopper", "grade": json.Number("12"), "updated_at": "2026-03-02T08:00:00Z"},
			{"id": "s3", "name": "Hedy", "grade": json.Number("9"), "updated_at": "2026-03-02T08:00:00Z"},
		},
	}, ApplyMerge)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if n := countRows(t, src, "students", "school-a"); n != 3 {
		t.Errorf("students rows = %d, want 3", n)
	}
	var name string
	if err := src.DB().QueryRow("SELECT name FROM students WHERE id = 's2'").Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "Grace Hopper" {
		t.Errorf("s2 name = %q, want Grace Hopper", name)
	}
}

func TestDuckDBSource_ApplyReportsEntityErrors(t *testing.T) {
	src := newTestDuckDB(t)

	res, err := src.Apply(context.Background(), "school-a", Dataset{
		"courses":  {{"id": "c2", "title": "Art", "updated_at": "2026-03-02T08:00:00Z"}},
		"students": {{"id": "s5", "no_such_column": "x", "updated_at": "2026-03-02T08:00:00Z"}},
		"lockers":  {{"id": "l1"}},
	}, ApplyReplace)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, ok := res.EntityErrors["students"]; !ok {
		t.Error("expected students entity error")
	}
	if _, ok := res.EntityErrors["lockers"]; !ok {
		t.Error("expected unknown entity error")
	}
	if res.Applied["courses"] != 1 {
		t.Errorf("courses should apply independently: %+v", res)
	}
	// The failed entity's transaction rolled back, so its old rows survive.
	if n := countRows(t, src, "students", "school-a"); n != 2 {
		t.Errorf("students rows = %d, want 2 after rollback", n)
	}
}
