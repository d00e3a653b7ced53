// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package backup

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// interruptedBackup leaves a backup in status as a crashed process would
func (e *testEnv) interruptedBackup(t *testing.T, tenantID string, status models.BackupStatus) *models.BackupRecord {
	t.Helper()
	ctx := context.Background()
	rec := &models.BackupRecord{
		ID:              newID(),
		TenantID:        tenantID,
		Type:            models.BackupTypeFull,
		RequestedType:   models.BackupTypeFull,
		Status:          models.BackupStatusPending,
		CloudSyncStatus: models.CloudSyncNone,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.catalog.CreateBackup(ctx, rec); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	path := []models.BackupStatus{models.BackupStatusSnapshotting, models.BackupStatusEncrypting, models.BackupStatusStored}
	for _, next := range path {
		if rec.Status == status {
			break
		}
		var location string
		if next == models.BackupStatusStored {
			var err error
			location, err = e.artifacts.Put(tenantID, rec.ID, []byte("partial artifact"))
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
		updated, err := e.catalog.UpdateBackup(ctx, rec.ID, func(r *models.BackupRecord) error {
			r.Status = next
			if location != "" {
				r.StorageLocation = location
			}
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateBackup(%s) error = %v", next, err)
		}
		rec = updated
	}
	return rec
}

// interruptedRestore leaves a restore in status as a crashed process would
func (e *testEnv) interruptedRestore(t *testing.T, tenantID, backupID string, status models.RestoreStatus) *models.RestoreOperation {
	t.Helper()
	ctx := context.Background()
	op := &models.RestoreOperation{
		ID:             newID(),
		TenantID:       tenantID,
		SourceBackupID: backupID,
		Status:         models.RestoreStatusRequested,
		StartedAt:      time.Now().UTC(),
	}
	if err := e.catalog.CreateRestore(ctx, op); err != nil {
		t.Fatalf("CreateRestore() error = %v", err)
	}

	for _, next := range []models.RestoreStatus{models.RestoreStatusValidating, models.RestoreStatusApplying} {
		if op.Status == status {
			break
		}
		updated, err := e.catalog.UpdateRestore(ctx, op.ID, func(o *models.RestoreOperation) error {
			o.Status = next
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateRestore(%s) error = %v", next, err)
		}
		op = updated
	}
	return op
}

func TestRecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(testTenant, 2, time.Now().UTC())
	done := env.mustBackup(t, testTenant, models.BackupTypeFull)

	stored := env.interruptedBackup(t, testTenant, models.BackupStatusStored)
	snapshotting := env.interruptedBackup(t, "school-b", models.BackupStatusSnapshotting)
	applying := env.interruptedRestore(t, testTenant, done.ID, models.RestoreStatusApplying)
	validating := env.interruptedRestore(t, "school-b", done.ID, models.RestoreStatusValidating)

	if env.artifactFiles(t) != 2 {
		t.Fatalf("artifact files = %d, want 2", env.artifactFiles(t))
	}

	result, err := env.m.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}
	if result.Backups != 2 || result.Restores != 2 {
		t.Errorf("result = %+v, want 2 backups and 2 restores", result)
	}

	for _, id := range []string{stored.ID, snapshotting.ID} {
		rec, err := env.catalog.GetBackup(ctx, id)
		if err != nil {
			t.Fatalf("GetBackup() error = %v", err)
		}
		if rec.Status != models.BackupStatusFailed || rec.ErrorMessage != InterruptedMessage {
			t.Errorf("backup %s = %s %q, want FAILED interrupted", id, rec.Status, rec.ErrorMessage)
		}
		if rec.ErrorKind != string(apperr.KindInternal) {
			t.Errorf("ErrorKind = %s, want internal", rec.ErrorKind)
		}
	}
	if env.artifactFiles(t) != 1 {
		t.Errorf("artifact files = %d, want only the completed backup's", env.artifactFiles(t))
	}

	op, err := env.catalog.GetRestore(ctx, applying.ID)
	if err != nil {
		t.Fatalf("GetRestore() error = %v", err)
	}
	if op.Status != models.RestoreStatusFailed || !hasWarning(op, warnMixedState) {
		t.Errorf("applying restore = %s %v, want FAILED with mixed state warning", op.Status, op.Warnings)
	}
	if op.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	op, err = env.catalog.GetRestore(ctx, validating.ID)
	if err != nil {
		t.Fatalf("GetRestore() error = %v", err)
	}
	if op.Status != models.RestoreStatusFailed || len(op.Warnings) != 0 {
		t.Errorf("validating restore = %s %v, want FAILED without warnings", op.Status, op.Warnings)
	}

	completed, _ := env.catalog.GetBackup(ctx, done.ID)
	if completed.Status != models.BackupStatusCompleted {
		t.Errorf("completed backup touched: %s", completed.Status)
	}

	// New work is accepted once the stale records are terminal
	env.mustBackup(t, testTenant, models.BackupTypeFull)
	env.seed("school-b", 1, time.Now().UTC())
	env.mustBackup(t, "school-b", models.BackupTypeFull)
}

func TestRecoverInterrupted_Nothing(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.m.RecoverInterrupted(context.Background())
	if err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}
	if result.Backups != 0 || result.Restores != 0 {
		t.Errorf("result = %+v, want nothing recovered", result)
	}
}

func TestRecoverInterrupted_SkipsRunningTenant(t *testing.T) {
	env := newTestEnv(t)
	env.seed(testTenant, 2, time.Now().UTC())

	started, release := env.source.block()
	done := make(chan error, 1)
	go func() {
		_, err := env.m.CreateBackup(context.Background(), CreateRequest{TenantID: testTenant, Type: models.BackupTypeFull})
		done <- err
	}()
	<-started

	result, err := env.m.RecoverInterrupted(context.Background())
	if err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}
	if result.Backups != 0 {
		t.Errorf("Backups = %d, want the live backup left alone", result.Backups)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
}
