// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
duckdb.go - DuckDB-backed Tenant Data Source

Each configured table is one entity. Tables are shared between tenants and
partitioned by a tenant_id column; incremental export filters on updated_at.

	CREATE TABLE students (
	    id          VARCHAR PRIMARY KEY,
	    tenant_id   VARCHAR NOT NULL,
	    name        VARCHAR,
	    updated_at  TIMESTAMP NOT NULL
	);

Each entity is applied in its own transaction, so a failing table is
reported in ApplyResult.EntityErrors while the others still commit.
MERGE relies on INSERT OR REPLACE and therefore on a primary key over id.
*/

//nolint:staticcheck // File documentation, not package doc
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver
	"github.com/goccy/go-json"

	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// DuckDBSource exports and applies tenant rows in a DuckDB database.
type DuckDBSource struct {
	db     *sql.DB
	tables []string
}

// OpenDuckDB opens the database at path. An empty path opens an in-memory database.
func OpenDuckDB(path string, tables []string) (*DuckDBSource, error) {
	// Disable auto-install/auto-load to prevent hangs in restricted network environments
	connStr := path + "?autoinstall_known_extensions=false&autoload_known_extensions=false"
	if path == "" {
		connStr = ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false"
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	// In-memory databases exist per connection; keep exactly one.
	if path == "" {
		db.SetMaxOpenConns(1)
	}

	return NewDuckDBSource(db, tables), nil
}

// NewDuckDBSource wraps an existing connection.
// Table names must already be validated identifiers.
func NewDuckDBSource(db *sql.DB, tables []string) *DuckDBSource {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	return &DuckDBSource{db: db, tables: sorted}
}

// DB returns the underlying connection.
func (s *DuckDBSource) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// Export returns every configured table's rows for the tenant.
func (s *DuckDBSource) Export(ctx context.Context, tenantID string) (Dataset, error) {
	return s.export(ctx, tenantID, nil)
}

// ExportSince returns rows updated after since.
func (s *DuckDBSource) ExportSince(ctx context.Context, tenantID string, since time.Time) (Dataset, error) {
	return s.export(ctx, tenantID, &since)
}

func (s *DuckDBSource) export(ctx context.Context, tenantID string, since *time.Time) (Dataset, error) {
	ds := make(Dataset, len(s.tables))
	for _, table := range s.tables {
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(table), FieldTenantID)
		args := []any{tenantID}
		if since != nil {
			query += fmt.Sprintf(" AND %s > ?", FieldUpdatedAt)
			args = append(args, since.UTC())
		}
		query += fmt.Sprintf(" ORDER BY %s", FieldID)

		records, err := s.queryRecords(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to export table %s: %w", table, err)
		}
		ds[table] = records
	}
	return ds, nil
}

func (s *DuckDBSource) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		r := make(Record, len(cols))
		for i, col := range cols {
			r[col] = normalizeValue(values[i])
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Apply writes each entity in its own transaction.
func (s *DuckDBSource) Apply(ctx context.Context, tenantID string, dataset Dataset, mode ApplyMode) (ApplyResult, error) {
	if mode != ApplyReplace && mode != ApplyMerge {
		return ApplyResult{}, fmt.Errorf("unknown apply mode %q", mode)
	}

	known := make(map[string]bool, len(s.tables))
	for _, t := range s.tables {
		known[t] = true
	}

	result := ApplyResult{Applied: make(map[string]int, len(dataset))}
	fail := func(entity string, err error) {
		if result.EntityErrors == nil {
			result.EntityErrors = make(map[string]string)
		}
		result.EntityErrors[entity] = err.Error()
		logging.Warn().Err(err).Str("tenant_id", tenantID).Str("entity", entity).Msg("Entity apply failed")
	}

	for _, entity := range dataset.Entities() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !known[entity] {
			fail(entity, fmt.Errorf("entity %s is not a configured table", entity))
			continue
		}
		n, err := s.applyTable(ctx, tenantID, entity, dataset[entity], mode)
		if err != nil {
			fail(entity, err)
			continue
		}
		result.Applied[entity] = n
	}
	return result, nil
}

func (s *DuckDBSource) applyTable(ctx context.Context, tenantID, table string, records []Record, mode ApplyMode) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if mode == ApplyReplace {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(table), FieldTenantID), tenantID); err != nil {
			return 0, fmt.Errorf("failed to clear tenant rows: %w", err)
		}
	}

	verb := "INSERT INTO"
	if mode == ApplyMerge {
		verb = "INSERT OR REPLACE INTO"
	}

	for i, r := range records {
		cols := recordColumns(r)
		args := make([]any, len(cols))
		quoted := make([]string, len(cols))
		for j, col := range cols {
			quoted[j] = quoteIdent(col)
			if col == FieldTenantID {
				args[j] = tenantID
				continue
			}
			args[j] = sqlValue(col, r[col])
		}

		stmt := fmt.Sprintf("%s %s (%s) VALUES (%s)", verb, quoteIdent(table),
			strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(records), nil
}

// recordColumns returns the record's fields sorted, always including tenant_id.
func recordColumns(r Record) []string {
	cols := make([]string, 0, len(r)+1)
	hasTenant := false
	for k := range r {
		if k == FieldTenantID {
			hasTenant = true
		}
		cols = append(cols, k)
	}
	if !hasTenant {
		cols = append(cols, FieldTenantID)
	}
	sort.Strings(cols)
	return cols
}

// normalizeValue converts driver values into JSON-friendly forms.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// sqlValue converts decoded artifact values back into driver arguments.
// Timestamp columns follow the *_at naming convention.
func sqlValue(col string, v any) any {
	switch x := v.(type) {
	case string:
		if strings.HasSuffix(col, "_at") {
			if ts, err := time.Parse(time.RFC3339Nano, x); err == nil {
				return ts.UTC()
			}
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var _ Source = (*DuckDBSource)(nil)
