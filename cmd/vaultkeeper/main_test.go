// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/engine"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// ========================================
// Helpers
// ========================================

const cloudSection = `
cloud:
  enabled: true
  provider: memory
  bucket: test-bucket
  prefix: vk
  max_attempts: 1
`

// writeConfig writes a config rooted in a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`logging:
  level: disabled
catalog:
  dir: %s
  sync_writes: false
artifacts:
  dir: %s
crypto:
  master_secret: test-master-secret-0123456789
  export_work_factor: 10
events:
  enabled: false
server:
  metrics_addr: ""
`, filepath.Join(dir, "catalog"), filepath.Join(dir, "artifacts")) + extra

	path := filepath.Join(dir, "vaultkeeper.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := execute(t, cfgPath, args...)
	if err != nil {
		t.Fatalf("%s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	return v
}

func createBackup(t *testing.T, cfgPath, tenant string, extra ...string) models.BackupRecord {
	t.Helper()
	args := append([]string{"backup", "create", tenant}, extra...)
	res := decode[engine.BackupResult](t, mustExecute(t, cfgPath, args...))
	if !res.Success || res.Backup == nil {
		t.Fatalf("backup create result = %+v", res)
	}
	return *res.Backup
}

// ========================================
// Commands
// ========================================

func TestCLI_BackupAndRestore(t *testing.T) {
	cfgPath := writeConfig(t, "")

	created := createBackup(t, cfgPath, "acme", "--type", "full", "--label", "nightly")
	if created.Status != models.BackupStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", created.Status)
	}
	if created.Label != "nightly" {
		t.Errorf("label = %q", created.Label)
	}

	list := decode[[]models.BackupRecord](t, mustExecute(t, cfgPath, "backup", "list", "acme"))
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("backup list = %+v", list)
	}

	shown := decode[engine.BackupResult](t, mustExecute(t, cfgPath, "backup", "show", "acme", created.ID))
	if shown.Backup == nil || shown.Backup.Checksum != created.Checksum {
		t.Errorf("backup show = %+v", shown)
	}

	valid := decode[engine.ValidateResult](t, mustExecute(t, cfgPath, "restore", "validate", "acme", created.ID))
	if !valid.Success {
		t.Errorf("restore validate = %+v", valid)
	}

	restored := decode[engine.RestoreResult](t, mustExecute(t, cfgPath, "restore", "run", "acme", created.ID))
	if !restored.Success || restored.Restore == nil {
		t.Fatalf("restore run = %+v", restored)
	}
	if restored.Restore.Status != models.RestoreStatusCompleted {
		t.Errorf("restore status = %s", restored.Restore.Status)
	}
	if restored.Restore.SafetyBackupID == "" {
		t.Error("restore should take a safety backup by default")
	}

	ops := decode[[]models.RestoreOperation](t, mustExecute(t, cfgPath, "restore", "list", "acme"))
	if len(ops) != 1 {
		t.Errorf("restore list length = %d, want 1", len(ops))
	}

	list = decode[[]models.BackupRecord](t, mustExecute(t, cfgPath, "backup", "list", "acme"))
	if len(list) != 2 {
		t.Errorf("backup list after restore = %d, want 2 (with safety backup)", len(list))
	}
}

func TestCLI_RestoreWithoutSafetyBackup(t *testing.T) {
	cfgPath := writeConfig(t, "")
	created := createBackup(t, cfgPath, "acme")

	restored := decode[engine.RestoreResult](t, mustExecute(t, cfgPath,
		"restore", "run", "acme", created.ID, "--no-safety-backup"))
	if restored.Restore == nil || restored.Restore.SafetyBackupID != "" {
		t.Errorf("restore = %+v, want no safety backup", restored.Restore)
	}
}

func TestCLI_FailedResultExitsNonZero(t *testing.T) {
	cfgPath := writeConfig(t, "")

	tests := []struct {
		name     string
		args     []string
		wantKind string
	}{
		{"unknown backup", []string{"backup", "show", "acme", "missing"}, "not_found"},
		{"bad backup type", []string{"backup", "create", "acme", "--type", "WEEKLY"}, "validation"},
		{"restore unknown backup", []string{"restore", "run", "acme", "missing"}, "not_found"},
		{"sync without cloud", []string{"backup", "sync", "acme", "missing"}, "dependency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, cfgPath, tt.args...)
			if !errors.Is(err, errOperationFailed) {
				t.Fatalf("error = %v, want errOperationFailed", err)
			}
			res := decode[engine.Outcome](t, out)
			if res.Success {
				t.Error("success should be false")
			}
			if res.ErrorKind != tt.wantKind {
				t.Errorf("error_kind = %q, want %q", res.ErrorKind, tt.wantKind)
			}
		})
	}
}

func TestCLI_ArgumentErrors(t *testing.T) {
	cfgPath := writeConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"create without tenant", []string{"backup", "create"}},
		{"show without id", []string{"backup", "show", "acme"}},
		{"config set without flags", []string{"config", "set", "acme"}},
		{"prune with two tenants", []string{"prune", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, cfgPath, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, errOperationFailed) {
				t.Error("argument errors should fail before any result is printed")
			}
		})
	}
}

func TestCLI_ConfigSetAndGet(t *testing.T) {
	cfgPath := writeConfig(t, "")

	defaults := decode[models.BackupConfig](t, mustExecute(t, cfgPath, "config", "get", "acme"))
	if defaults.RetentionCount != config.Default().Defaults.RetentionCount {
		t.Errorf("default retention count = %d", defaults.RetentionCount)
	}

	res := decode[engine.ConfigResult](t, mustExecute(t, cfgPath,
		"config", "set", "acme", "--retention-count", "5", "--schedule", "WEEKLY", "--by", "ops"))
	if !res.Success || res.Config == nil {
		t.Fatalf("config set = %+v", res)
	}

	got := decode[models.BackupConfig](t, mustExecute(t, cfgPath, "config", "get", "acme"))
	if got.RetentionCount != 5 {
		t.Errorf("retention count = %d, want 5", got.RetentionCount)
	}
	if got.ScheduleFrequency != models.ScheduleWeekly {
		t.Errorf("schedule = %s, want weekly", got.ScheduleFrequency)
	}
	if got.RetentionDays != defaults.RetentionDays {
		t.Errorf("unchanged field retention days = %d, want %d", got.RetentionDays, defaults.RetentionDays)
	}

	out, err := execute(t, cfgPath, "config", "set", "acme",
		"--retention-count", "0", "--retention-days", "0", "--schedule", "hourly")
	if !errors.Is(err, errOperationFailed) {
		t.Fatalf("rejected patch error = %v", err)
	}
	if rejected := decode[engine.ConfigResult](t, out); rejected.ErrorKind != "validation" {
		t.Errorf("error_kind = %q, want validation", rejected.ErrorKind)
	}
}

func TestCLI_Keys(t *testing.T) {
	cfgPath := writeConfig(t, "")
	createBackup(t, cfgPath, "acme")

	rotated := decode[engine.KeyResult](t, mustExecute(t, cfgPath, "keys", "rotate", "acme"))
	if rotated.Version != 2 {
		t.Errorf("rotated version = %d, want 2", rotated.Version)
	}

	infos := decode[[]models.KeyInfo](t, mustExecute(t, cfgPath, "keys", "list", "acme"))
	if len(infos) != 2 {
		t.Fatalf("key list length = %d, want 2", len(infos))
	}

	t.Setenv(passphraseEnvVar, "correct horse")
	exportPath := filepath.Join(t.TempDir(), "acme-v1.age")
	exported := decode[engine.KeyResult](t, mustExecute(t, cfgPath,
		"keys", "export", "acme", "--version", "1", "--out", exportPath))
	if exported.Wrapped != "" {
		t.Error("wrapped material should not be printed when --out is set")
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Error("passphrase export should be age armored")
	}

	imported := decode[engine.KeyResult](t, mustExecute(t, cfgPath,
		"keys", "import", "beta", exportPath, "--bootstrap"))
	if !imported.Success || imported.Version != 1 {
		t.Errorf("import = %+v", imported)
	}
}

func TestCLI_CloudUpload(t *testing.T) {
	cfgPath := writeConfig(t, cloudSection)

	created := createBackup(t, cfgPath, "acme", "--upload")
	if created.CloudSyncStatus != models.CloudSyncPending {
		t.Errorf("cloud status at completion = %s, want PENDING", created.CloudSyncStatus)
	}

	// The command drains the upload queue before it exits
	shown := decode[engine.BackupResult](t, mustExecute(t, cfgPath, "backup", "show", "acme", created.ID))
	if shown.Backup.CloudSyncStatus != models.CloudSyncSynced {
		t.Errorf("cloud status = %s, want SYNCED", shown.Backup.CloudSyncStatus)
	}
	if shown.Backup.CloudURI == "" {
		t.Error("cloud URI should be recorded")
	}
}

func TestCLI_Prune(t *testing.T) {
	cfgPath := writeConfig(t, "")
	for i := 0; i < 3; i++ {
		createBackup(t, cfgPath, "acme")
	}
	createBackup(t, cfgPath, "beta")
	mustExecute(t, cfgPath, "config", "set", "acme", "--retention-count", "1", "--schedule", "manual")

	one := decode[engine.PruneResult](t, mustExecute(t, cfgPath, "prune", "acme"))
	if one.Prune == nil || len(one.Prune.Pruned) != 2 || one.Prune.Kept != 1 {
		t.Fatalf("prune acme = %+v", one.Prune)
	}

	all := decode[[]backup.PruneResult](t, mustExecute(t, cfgPath, "prune"))
	if len(all) != 2 {
		t.Fatalf("prune all tenants = %d, want 2", len(all))
	}
	for _, r := range all {
		if len(r.Pruned) != 0 {
			t.Errorf("tenant %s pruned %v on second pass", r.TenantID, r.Pruned)
		}
	}
}

func TestCLI_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("crypto:\n  master_secret: short\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, path, "backup", "list", "acme")
	if err == nil || !strings.Contains(err.Error(), "master_secret") {
		t.Errorf("error = %v, want master_secret validation", err)
	}
}

// ========================================
// Serve wiring
// ========================================

func loadApp(t *testing.T, extra string) *app {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, extra))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() }) //nolint:errcheck // test cleanup
	return a
}

func TestHealthChecks(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		a := loadApp(t, "")
		checks := healthChecks(a)
		if _, ok := checks["cloud"]; ok {
			t.Error("cloud check should not be registered without cloud storage")
		}
		if err := checks["catalog"](context.Background()); err != nil {
			t.Errorf("catalog check = %v", err)
		}
	})

	t.Run("with cloud", func(t *testing.T) {
		a := loadApp(t, cloudSection)
		checks := healthChecks(a)
		check, ok := checks["cloud"]
		if !ok {
			t.Fatal("cloud check should be registered")
		}
		if err := check(context.Background()); err != nil {
			t.Errorf("cloud check with closed breaker = %v", err)
		}
	})
}

func TestBuildTree(t *testing.T) {
	a := loadApp(t, cloudSection)

	tree, err := buildTree(a)
	if err != nil {
		t.Fatalf("buildTree() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("tree stopped with %v", err)
	}
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a := loadApp(t, cloudSection)
	a.startWorker(context.Background())
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestApp_CloseAfterCancelDoesNotHang(t *testing.T) {
	a := loadApp(t, cloudSection)
	ctx, cancel := context.WithCancel(context.Background())
	a.startWorker(ctx)
	cancel()
	a.worker.Enqueue("school-a", "queued-after-signal")

	closed := make(chan error, 1)
	go func() { closed <- a.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() blocked after the command context was cancelled")
	}
}
