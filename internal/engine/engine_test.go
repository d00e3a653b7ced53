// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/artifacts"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/codec"
	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/datasource"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

const tenant = "school-a"

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) find(t events.Type) (events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Type == t {
			return e, true
		}
	}
	return events.Event{}, false
}

type testEngine struct {
	*Engine
	source    *datasource.MemorySource
	remote    *cloud.MemoryStore
	artifacts *artifacts.Store
	events    *recordingPublisher
}

func newTestEngine(t *testing.T, withCloud bool) *testEngine {
	t.Helper()

	cat, err := catalog.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	keyManager, err := keys.NewManager(cat, "engine-test-secret", keys.WithExportWorkFactor(10))
	if err != nil {
		t.Fatalf("keys.NewManager() error = %v", err)
	}
	c, err := codec.New(codec.Options{})
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	t.Cleanup(c.Close)

	store, err := artifacts.New(t.TempDir())
	if err != nil {
		t.Fatalf("artifacts.New() error = %v", err)
	}

	te := &testEngine{
		source:    datasource.NewMemorySource(),
		remote:    cloud.NewMemoryStore("engine-test"),
		artifacts: store,
		events:    &recordingPublisher{},
	}
	configs := tenantconfig.New(cat, config.DefaultsConfig{ScheduleFrequency: "manual"})

	deps := backup.Deps{
		Catalog:   cat,
		Keys:      keyManager,
		Codec:     c,
		Source:    te.source,
		Artifacts: store,
		Configs:   configs,
		Publisher: te.events,
	}
	var syncer *cloud.Syncer
	if withCloud {
		syncer = cloud.NewSyncer(cat, store, te.remote, te.events, cloud.SyncerOptions{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		})
		deps.Remote = te.remote
	}

	manager, err := backup.NewManager(deps)
	if err != nil {
		t.Fatalf("backup.NewManager() error = %v", err)
	}

	te.Engine, err = New(Deps{
		Backups:   manager,
		Keys:      keyManager,
		Configs:   configs,
		Catalog:   cat,
		Syncer:    syncer,
		Publisher: te.events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return te
}

func (te *testEngine) seed(tenantID string, n int) {
	for i := 0; i < n; i++ {
		te.source.Put(tenantID, "students", datasource.Record{
			"id":         fmt.Sprintf("s-%d", i),
			"tenant_id":  tenantID,
			"updated_at": time.Now().UTC(),
		})
	}
}

func (te *testEngine) mustBackup(t *testing.T, tenantID string) *models.BackupRecord {
	t.Helper()
	result, err := te.CreateBackup(context.Background(), backup.CreateRequest{TenantID: tenantID, Type: models.BackupTypeFull})
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("CreateBackup() = %+v", result.Outcome)
	}
	return result.Backup
}

// ===================================================================================================
// Construction
// ===================================================================================================

func TestNew_RequiresComponents(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) should fail")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    string
		wantErrBack bool
	}{
		{"validation", apperr.Validation("BAD", "bad input"), "validation", false},
		{"conflict", backup.ErrBackupInProgress, "conflict", false},
		{"integrity", codec.ErrChecksumMismatch, "integrity", false},
		{"artifact storage", fmt.Errorf("failed to write artifact: %w", apperr.Wrap(artifacts.ErrStorage, errors.New("disk full"))), "dependency", false},
		{"plain error is internal", errors.New("boom"), "internal", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := classify(tt.err)
			if out.Success {
				t.Error("Success should be false")
			}
			if out.ErrorKind != tt.wantKind {
				t.Errorf("ErrorKind = %s, want %s", out.ErrorKind, tt.wantKind)
			}
			if (err != nil) != tt.wantErrBack {
				t.Errorf("error returned = %v, want %v", err, tt.wantErrBack)
			}
		})
	}
}

// ===================================================================================================
// Backups
// ===================================================================================================

func TestCreateBackup_Result(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 10)

	rec := te.mustBackup(t, tenant)
	if rec.Status != models.BackupStatusCompleted || rec.KeyVersion != 1 || rec.SizeBytes <= 0 {
		t.Errorf("backup = %+v", rec)
	}
}

func TestCreateBackup_ExpectedFailuresAreResults(t *testing.T) {
	te := newTestEngine(t, false)

	result, err := te.CreateBackup(context.Background(), backup.CreateRequest{TenantID: tenant, Type: "WEEKLY"})
	if err != nil {
		t.Fatalf("CreateBackup() error = %v, want nil", err)
	}
	if result.Success || result.ErrorKind != string(apperr.KindValidation) {
		t.Errorf("outcome = %+v, want validation failure", result.Outcome)
	}
	if result.Message == "" {
		t.Error("Message should explain the failure")
	}
}

func TestCreateBackup_ArtifactStorageFailureIsResult(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 3)
	// A regular file where the tenant directory belongs makes every Put fail.
	if err := os.WriteFile(filepath.Join(te.artifacts.Dir(), tenant), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := te.CreateBackup(context.Background(), backup.CreateRequest{TenantID: tenant, Type: models.BackupTypeFull})
	if err != nil {
		t.Fatalf("CreateBackup() error = %v, want nil", err)
	}
	if result.Success || result.ErrorKind != string(apperr.KindDependency) {
		t.Errorf("outcome = %+v, want dependency failure", result.Outcome)
	}
	if result.ErrorCode != artifacts.ErrStorage.Code {
		t.Errorf("ErrorCode = %s, want %s", result.ErrorCode, artifacts.ErrStorage.Code)
	}

	listed, err := te.ListBackups(context.Background(), tenant, 0)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListBackups() = %+v, %v", listed, err)
	}
	if b := listed[0]; b.Status != models.BackupStatusFailed || b.ErrorKind != string(apperr.KindDependency) {
		t.Errorf("backup = %s/%s, want FAILED/dependency", b.Status, b.ErrorKind)
	}
}

func TestCreateBackup_IncrementalDowngradeMessage(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 3)

	result, err := te.CreateBackup(context.Background(), backup.CreateRequest{TenantID: tenant, Type: models.BackupTypeIncremental})
	if err != nil || !result.Success {
		t.Fatalf("CreateBackup() = %+v, %v", result, err)
	}
	if !strings.Contains(result.Message, "incremental ran as full") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestCreateBackupAsync_Polling(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 5)

	result, err := te.CreateBackupAsync(context.Background(), backup.CreateRequest{TenantID: tenant, Type: models.BackupTypeFull})
	if err != nil || !result.Success {
		t.Fatalf("CreateBackupAsync() = %+v, %v", result, err)
	}
	if result.Backup.Status != models.BackupStatusPending {
		t.Errorf("Status = %s, want PENDING", result.Backup.Status)
	}

	te.Wait()

	polled, err := te.GetBackup(context.Background(), tenant, result.Backup.ID)
	if err != nil || !polled.Success {
		t.Fatalf("GetBackup() = %+v, %v", polled, err)
	}
	if polled.Backup.Status != models.BackupStatusCompleted {
		t.Errorf("polled status = %s, want COMPLETED", polled.Backup.Status)
	}
}

func TestGetBackup_OtherTenant(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	rec := te.mustBackup(t, tenant)

	tests := []struct {
		name     string
		tenantID string
		id       string
		wantKind apperr.Kind
	}{
		{"other tenant", "school-b", rec.ID, apperr.KindNotFound},
		{"unknown id", tenant, "missing", apperr.KindNotFound},
		{"invalid tenant", "a/b", rec.ID, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := te.GetBackup(context.Background(), tt.tenantID, tt.id)
			if err != nil {
				t.Fatalf("GetBackup() error = %v", err)
			}
			if result.Success || result.ErrorKind != string(tt.wantKind) || result.Backup != nil {
				t.Errorf("result = %+v, want %s failure", result, tt.wantKind)
			}
		})
	}
}

func TestListBackups(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	for i := 0; i < 3; i++ {
		te.mustBackup(t, tenant)
	}

	got, err := te.ListBackups(context.Background(), tenant, 2)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	if _, err := te.ListBackups(context.Background(), "", 0); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("ListBackups(\"\") error = %v, want validation", err)
	}
}

func TestValidateBackup(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 4)
	rec := te.mustBackup(t, tenant)

	result, err := te.ValidateBackup(context.Background(), tenant, rec.ID)
	if err != nil || !result.Success {
		t.Fatalf("ValidateBackup() = %+v, %v", result, err)
	}
	if result.Validation.Header.TotalRecords != 4 {
		t.Errorf("TotalRecords = %d, want 4", result.Validation.Header.TotalRecords)
	}
}

// ===================================================================================================
// Cloud Sync
// ===================================================================================================

func TestSyncToCloud(t *testing.T) {
	te := newTestEngine(t, true)
	te.seed(tenant, 2)
	rec := te.mustBackup(t, tenant)

	result, err := te.SyncToCloud(context.Background(), tenant, rec.ID)
	if err != nil || !result.Success {
		t.Fatalf("SyncToCloud() = %+v, %v", result, err)
	}
	if result.Sync.Status != models.CloudSyncSynced || !result.Sync.Uploaded {
		t.Errorf("sync = %+v", result.Sync)
	}

	again, err := te.SyncToCloud(context.Background(), tenant, rec.ID)
	if err != nil || !again.Success {
		t.Fatalf("second SyncToCloud() = %+v, %v", again, err)
	}
	if again.Sync.Uploaded {
		t.Error("second sync should verify, not upload")
	}
	if te.remote.Uploads() != 1 {
		t.Errorf("uploads = %d, want 1", te.remote.Uploads())
	}
	if _, ok := te.events.find(events.CloudSynced); !ok {
		t.Error("cloud.synced event not published")
	}
}

func TestSyncToCloud_NotConfigured(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	rec := te.mustBackup(t, tenant)

	result, err := te.SyncToCloud(context.Background(), tenant, rec.ID)
	if err != nil {
		t.Fatalf("SyncToCloud() error = %v", err)
	}
	if result.Success || result.ErrorCode != ErrCloudNotConfigured.Code {
		t.Errorf("outcome = %+v, want CLOUD_NOT_CONFIGURED", result.Outcome)
	}
}

// ===================================================================================================
// Restores
// ===================================================================================================

func TestRestore_Result(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 6)
	rec := te.mustBackup(t, tenant)

	result, err := te.Restore(context.Background(), backup.RestoreRequest{TenantID: tenant, BackupID: rec.ID, CreateSafetyBackup: true})
	if err != nil || !result.Success {
		t.Fatalf("Restore() = %+v, %v", result, err)
	}
	if result.Restore.Status != models.RestoreStatusCompleted || result.Restore.SafetyBackupID == "" {
		t.Errorf("restore = %+v", result.Restore)
	}

	polled, err := te.GetRestore(context.Background(), tenant, result.Restore.ID)
	if err != nil || !polled.Success || polled.Restore.ID != result.Restore.ID {
		t.Fatalf("GetRestore() = %+v, %v", polled, err)
	}

	ops, err := te.ListRestores(context.Background(), tenant, 0)
	if err != nil || len(ops) != 1 {
		t.Errorf("ListRestores() = %d, %v", len(ops), err)
	}
}

func TestRestore_UnknownBackup(t *testing.T) {
	te := newTestEngine(t, false)

	result, err := te.Restore(context.Background(), backup.RestoreRequest{TenantID: tenant, BackupID: "nope"})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Success || result.Restore != nil {
		t.Errorf("result = %+v, want failure without operation", result)
	}
}

func TestGetRestore_OtherTenant(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	rec := te.mustBackup(t, tenant)
	restored, _ := te.Restore(context.Background(), backup.RestoreRequest{TenantID: tenant, BackupID: rec.ID})

	result, err := te.GetRestore(context.Background(), "school-b", restored.Restore.ID)
	if err != nil {
		t.Fatalf("GetRestore() error = %v", err)
	}
	if result.Success || result.ErrorKind != string(apperr.KindNotFound) {
		t.Errorf("outcome = %+v, want not_found", result.Outcome)
	}
}

// ===================================================================================================
// Keys
// ===================================================================================================

func TestRotateKey_PublishesEvent(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	te.mustBackup(t, tenant)

	result, err := te.RotateKey(context.Background(), tenant)
	if err != nil || !result.Success {
		t.Fatalf("RotateKey() = %+v, %v", result, err)
	}
	if result.Version != 2 {
		t.Errorf("Version = %d, want 2", result.Version)
	}

	evt, ok := te.events.find(events.KeyRotated)
	if !ok || evt.KeyVersion != 2 || evt.TenantID != tenant {
		t.Errorf("key.rotated event = %+v, found = %v", evt, ok)
	}

	infos, err := te.ListKeys(context.Background(), tenant)
	if err != nil || len(infos) != 2 {
		t.Fatalf("ListKeys() = %v, %v", infos, err)
	}
}

func TestExportImportKey(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 2)
	rec := te.mustBackup(t, tenant)

	exported, err := te.ExportKey(context.Background(), tenant, keys.ExportOptions{Passphrase: "correct horse"})
	if err != nil || !exported.Success {
		t.Fatalf("ExportKey() = %+v, %v", exported, err)
	}
	if exported.Version != rec.KeyVersion || exported.Wrapped == "" {
		t.Errorf("export = %+v", exported)
	}

	// Re-importing identical material is a no-op success
	imported, err := te.ImportKey(context.Background(), tenant, exported.Wrapped, keys.ImportOptions{Passphrase: "correct horse"})
	if err != nil || !imported.Success {
		t.Fatalf("ImportKey() = %+v, %v", imported, err)
	}
	if imported.Version != rec.KeyVersion {
		t.Errorf("imported version = %d, want %d", imported.Version, rec.KeyVersion)
	}

	// Wrong passphrase is a validation failure, not an internal error
	bad, err := te.ImportKey(context.Background(), tenant, exported.Wrapped, keys.ImportOptions{Passphrase: "wrong"})
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	if bad.Success || bad.ErrorKind != string(apperr.KindValidation) {
		t.Errorf("outcome = %+v, want validation failure", bad.Outcome)
	}
}

func TestImportKey_UnknownTenant(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	te.mustBackup(t, tenant)

	exported, _ := te.ExportKey(context.Background(), tenant, keys.ExportOptions{})

	result, err := te.ImportKey(context.Background(), "school-b", exported.Wrapped, keys.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	if result.Success || result.ErrorCode != keys.ErrTenantNotFound.Code {
		t.Errorf("outcome = %+v, want TENANT_NOT_FOUND", result.Outcome)
	}

	result, err = te.ImportKey(context.Background(), "school-b", exported.Wrapped, keys.ImportOptions{Bootstrap: true})
	if err != nil || !result.Success {
		t.Fatalf("ImportKey(bootstrap) = %+v, %v", result, err)
	}
}

// ===================================================================================================
// Config and Retention
// ===================================================================================================

func TestUpdateConfig(t *testing.T) {
	te := newTestEngine(t, false)

	count := 3
	result, err := te.UpdateConfig(context.Background(), tenant, tenantconfig.Patch{RetentionCount: &count}, "admin")
	if err != nil || !result.Success {
		t.Fatalf("UpdateConfig() = %+v, %v", result, err)
	}
	if result.Config.RetentionCount != 3 || result.Config.UpdatedBy != "admin" {
		t.Errorf("config = %+v", result.Config)
	}

	freq := "hourly"
	zero := 0
	bad, err := te.UpdateConfig(context.Background(), tenant, tenantconfig.Patch{ScheduleFrequency: &freq, RetentionCount: &zero}, "admin")
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if bad.Success || bad.ErrorKind != string(apperr.KindValidation) {
		t.Errorf("outcome = %+v, want validation failure", bad.Outcome)
	}

	cfg, err := te.GetConfig(context.Background(), tenant)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if cfg.RetentionCount != 3 || cfg.ScheduleFrequency != "manual" {
		t.Errorf("stored config changed by rejected patch: %+v", cfg)
	}
}

func TestPruneTenant(t *testing.T) {
	te := newTestEngine(t, false)
	te.seed(tenant, 1)
	for i := 0; i < 3; i++ {
		te.mustBackup(t, tenant)
	}
	count := 1
	if _, err := te.UpdateConfig(context.Background(), tenant, tenantconfig.Patch{RetentionCount: &count}, "admin"); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	result, err := te.PruneTenant(context.Background(), tenant)
	if err != nil || !result.Success {
		t.Fatalf("PruneTenant() = %+v, %v", result, err)
	}
	if len(result.Prune.Pruned) != 2 {
		t.Errorf("pruned = %v, want 2", result.Prune.Pruned)
	}
}
