// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/models"
	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

// ===================================================================================================
// Keep-Set Selection
// ===================================================================================================

func TestSelectPrunable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	backup := func(id string, status models.BackupStatus, age time.Duration) models.BackupRecord {
		return models.BackupRecord{ID: id, Status: status, CreatedAt: now.Add(-age)}
	}

	// Newest first
	history := []models.BackupRecord{
		backup("b1", models.BackupStatusCompleted, 1*day),
		backup("f1", models.BackupStatusFailed, 2*day),
		backup("b2", models.BackupStatusCompleted, 3*day),
		backup("b3", models.BackupStatusCompleted, 10*day),
		backup("f2", models.BackupStatusFailed, 20*day),
		backup("b4", models.BackupStatusCompleted, 40*day),
	}

	tests := []struct {
		name      string
		policy    models.BackupConfig
		wantPrune []string
	}{
		{
			name:      "no policy keeps everything",
			policy:    models.BackupConfig{},
			wantPrune: nil,
		},
		{
			name:      "count only",
			policy:    models.BackupConfig{RetentionCount: 2},
			wantPrune: []string{"b3", "b4"},
		},
		{
			name:      "days only prunes old completed and failed",
			policy:    models.BackupConfig{RetentionDays: 7},
			wantPrune: []string{"b3", "b4", "f2"},
		},
		{
			name:      "either rule keeps a backup",
			policy:    models.BackupConfig{RetentionCount: 3, RetentionDays: 2},
			wantPrune: []string{"b4", "f2"},
		},
		{
			name:      "count larger than history",
			policy:    models.BackupConfig{RetentionCount: 50},
			wantPrune: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prune, kept := selectPrunable(history, tt.policy, now)

			got := make([]string, 0, len(prune))
			for i := range prune {
				got = append(got, prune[i].ID)
			}
			if len(got) != len(tt.wantPrune) {
				t.Fatalf("pruned = %v, want %v", got, tt.wantPrune)
			}
			for i := range got {
				if got[i] != tt.wantPrune[i] {
					t.Fatalf("pruned = %v, want %v", got, tt.wantPrune)
				}
			}
			if kept != len(history)-len(tt.wantPrune) {
				t.Errorf("kept = %d, want %d", kept, len(history)-len(tt.wantPrune))
			}
		})
	}
}

func TestSelectPrunable_IgnoresNonTerminal(t *testing.T) {
	now := time.Now().UTC()
	history := []models.BackupRecord{
		{ID: "running", Status: models.BackupStatusSnapshotting, CreatedAt: now.AddDate(0, 0, -90)},
		{ID: "done", Status: models.BackupStatusCompleted, CreatedAt: now.AddDate(0, 0, -90)},
	}

	prune, kept := selectPrunable(history, models.BackupConfig{RetentionDays: 1}, now)
	if len(prune) != 1 || prune[0].ID != "done" {
		t.Errorf("pruned = %+v, want [done]", prune)
	}
	if kept != 1 {
		t.Errorf("kept = %d, want 1", kept)
	}
}

// ===================================================================================================
// PruneTenant
// ===================================================================================================

func (e *testEnv) setRetentionCount(t *testing.T, tenantID string, count int) {
	t.Helper()
	if _, err := e.configs.Update(context.Background(), tenantID, tenantconfig.Patch{RetentionCount: &count}, "test"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestPruneTenant_KeepsNewest(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, env.mustBackup(t, testTenant, models.BackupTypeFull).ID)
	}
	env.setRetentionCount(t, testTenant, 2)

	result, err := env.m.PruneTenant(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("PruneTenant() error = %v", err)
	}
	if len(result.Pruned) != 2 || result.Kept != 2 {
		t.Fatalf("result = %+v, want 2 pruned and 2 kept", result)
	}
	if result.FreedBytes <= 0 {
		t.Errorf("FreedBytes = %d, want > 0", result.FreedBytes)
	}

	remaining, _ := env.catalog.ListBackups(context.Background(), testTenant, 0)
	if len(remaining) != 2 || remaining[0].ID != ids[3] || remaining[1].ID != ids[2] {
		t.Errorf("remaining = %v, want the two newest", remaining)
	}
	if env.artifactFiles(t) != 2 {
		t.Errorf("artifact files = %d, want 2", env.artifactFiles(t))
	}
}

func TestPruneTenant_NoPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())
	for i := 0; i < 3; i++ {
		env.mustBackup(t, testTenant, models.BackupTypeFull)
	}

	result, err := env.m.PruneTenant(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("PruneTenant() error = %v", err)
	}
	if len(result.Pruned) != 0 || result.Kept != 3 {
		t.Errorf("result = %+v, want nothing pruned", result)
	}
}

func TestPruneTenant_SkipsBackupReferencedByRestore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())
	oldest := env.mustBackup(t, testTenant, models.BackupTypeFull)
	env.mustBackup(t, testTenant, models.BackupTypeFull)

	// A restore from another process is still running against the oldest backup
	if err := env.catalog.CreateRestore(context.Background(), &models.RestoreOperation{
		ID:             "restore-1",
		TenantID:       testTenant,
		SourceBackupID: oldest.ID,
		Status:         models.RestoreStatusRequested,
		StartedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateRestore() error = %v", err)
	}
	env.setRetentionCount(t, testTenant, 1)

	result, err := env.m.PruneTenant(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("PruneTenant() error = %v", err)
	}
	if len(result.Pruned) != 0 || len(result.Skipped) != 1 || result.Skipped[0] != oldest.ID {
		t.Errorf("result = %+v, want oldest skipped", result)
	}
	if _, err := env.catalog.GetBackup(context.Background(), oldest.ID); err != nil {
		t.Errorf("referenced backup was deleted: %v", err)
	}
}

func TestPruneTenant_DeletesCloudCopy(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())
	oldest := env.mustBackup(t, testTenant, models.BackupTypeFull)
	env.mustBackup(t, testTenant, models.BackupTypeFull)

	data, err := env.artifacts.Get(oldest.StorageLocation)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	uri, err := env.remote.Upload(context.Background(), data, testTenant+"/"+oldest.ID+".vka")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := env.catalog.UpdateBackup(context.Background(), oldest.ID, func(r *models.BackupRecord) error {
		r.CloudSyncStatus = models.CloudSyncSynced
		r.CloudURI = uri
		return nil
	}); err != nil {
		t.Fatalf("UpdateBackup() error = %v", err)
	}
	env.setRetentionCount(t, testTenant, 1)

	result, err := env.m.PruneTenant(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("PruneTenant() error = %v", err)
	}
	if len(result.Pruned) != 1 || result.Pruned[0] != oldest.ID {
		t.Fatalf("result = %+v, want oldest pruned", result)
	}
	if objects := env.remote.Objects(); len(objects) != 0 {
		t.Errorf("remote objects = %v, want none", objects)
	}
}

func TestPruneTenant_BusyTenant(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())

	started, release := env.source.block()
	done := make(chan error, 1)
	go func() {
		_, err := env.m.CreateBackup(context.Background(), CreateRequest{TenantID: testTenant, Type: models.BackupTypeFull})
		done <- err
	}()
	<-started

	_, err := env.m.PruneTenant(context.Background(), testTenant)
	if !errors.Is(err, ErrBackupInProgress) {
		t.Errorf("PruneTenant() error = %v, want ErrBackupInProgress", err)
	}

	results, err := env.m.PruneAll(context.Background())
	if err != nil {
		t.Errorf("PruneAll() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("PruneAll() results = %+v, want busy tenant skipped", results)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
}

func TestPruneAll(t *testing.T) {
	env := newTestEnv(t)
	for _, tenant := range []string{"school-a", "school-b"} {
		env.seed(tenant, 1, time.Now().UTC())
		for i := 0; i < 3; i++ {
			env.mustBackup(t, tenant, models.BackupTypeFull)
		}
		env.setRetentionCount(t, tenant, 1)
	}

	results, err := env.m.PruneAll(context.Background())
	if err != nil {
		t.Fatalf("PruneAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if len(r.Pruned) != 2 {
			t.Errorf("%s pruned = %d, want 2", r.TenantID, len(r.Pruned))
		}
	}
}

func TestPruneTenant_InvalidTenant(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.m.PruneTenant(context.Background(), "../x"); err == nil {
		t.Error("expected error for invalid tenant")
	}
}

func TestPruner_String(t *testing.T) {
	p := NewPruner(nil, 0)
	if p.String() != "retention-pruner" {
		t.Errorf("String() = %q", p.String())
	}
	if p.interval != time.Hour {
		t.Errorf("interval = %v, want 1h", p.interval)
	}
}
