// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/models"
)

func TestWorker_ProcessesQueue(t *testing.T) {
	t.Parallel()
	env := newSyncEnv(t)
	env.completedBackup(t, "school-a", "b1")
	env.completedBackup(t, "school-b", "b2")
	syncer := NewSyncer(env.catalog, env.artifacts, env.remote, nil, fastOpts())
	worker := NewWorker(syncer, 4, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Serve(ctx) //nolint:errcheck // Returns ctx.Err() at shutdown

	if !worker.Enqueue("school-a", "b1") || !worker.Enqueue("school-b", "b2") {
		t.Fatal("Enqueue() = false")
	}

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain queue")
	}

	for _, id := range []string{"b1", "b2"} {
		rec, err := env.catalog.GetBackup(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.CloudSyncStatus != models.CloudSyncSynced {
			t.Errorf("%s CloudSyncStatus = %s, want SYNCED", id, rec.CloudSyncStatus)
		}
	}
	if worker.String() != "cloud-sync-worker" {
		t.Errorf("String() = %q", worker.String())
	}
}

func TestWorker_QueueFullMarksFailed(t *testing.T) {
	t.Parallel()
	env := newSyncEnv(t)
	env.completedBackup(t, "school-a", "b1")
	env.completedBackup(t, "school-b", "b2")
	syncer := NewSyncer(env.catalog, env.artifacts, env.remote, nil, fastOpts())

	// Not served, so the single slot stays occupied
	worker := NewWorker(syncer, 1, 0)

	if !worker.Enqueue("school-a", "b1") {
		t.Fatal("first Enqueue() = false")
	}
	if worker.Enqueue("school-b", "b2") {
		t.Fatal("second Enqueue() = true, want queue full")
	}
	if worker.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", worker.Pending())
	}

	rec, _ := env.catalog.GetBackup(context.Background(), "b2")
	if rec.CloudSyncStatus != models.CloudSyncFailed || rec.CloudSyncError != QueueFullMessage {
		t.Errorf("b2 cloud fields = %s %q", rec.CloudSyncStatus, rec.CloudSyncError)
	}
	if rec.Status != models.BackupStatusCompleted {
		t.Errorf("b2 Status = %s", rec.Status)
	}
}

// waitReturns runs worker.Wait and reports whether it returned in time.
func waitReturns(worker *Worker, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWorker_WaitReturnsAfterCancelledServe(t *testing.T) {
	t.Parallel()
	env := newSyncEnv(t)
	ids := []string{"b1", "b2", "b3"}
	for _, id := range ids {
		env.completedBackup(t, "school-a", id)
	}
	syncer := NewSyncer(env.catalog, env.artifacts, env.remote, nil, fastOpts())

	// Serve picks randomly between ctx.Done and the queue, so repeat
	for i := 0; i < 20; i++ {
		worker := NewWorker(syncer, 8, 0)
		for _, id := range ids {
			if !worker.Enqueue("school-a", id) {
				t.Fatal("Enqueue() = false")
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := worker.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}

		if !waitReturns(worker, 2*time.Second) {
			t.Fatalf("run %d: Wait() blocked after Serve stopped", i)
		}
		if worker.Pending() != 0 {
			t.Errorf("run %d: Pending() = %d, want 0", i, worker.Pending())
		}
	}

	for _, id := range ids {
		rec, err := env.catalog.GetBackup(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.CloudSyncStatus == models.CloudSyncSynced {
			t.Errorf("%s was uploaded by a cancelled worker", id)
		}
	}
}

func TestWorker_ConcurrentEnqueueAndWait(t *testing.T) {
	t.Parallel()
	env := newSyncEnv(t)
	syncer := NewSyncer(env.catalog, env.artifacts, env.remote, nil, fastOpts())
	worker := NewWorker(syncer, 64, 0)

	const n = 16
	for i := 0; i < n; i++ {
		env.completedBackup(t, "school-a", fmt.Sprintf("b%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Serve(ctx) //nolint:errcheck // Returns ctx.Err() at shutdown

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			worker.Enqueue("school-a", id)
		}(fmt.Sprintf("b%d", i))
		go func() {
			defer wg.Done()
			worker.Wait()
		}()
	}
	wg.Wait()

	if !waitReturns(worker, 5*time.Second) {
		t.Fatal("worker did not drain queue")
	}
	for i := 0; i < n; i++ {
		rec, err := env.catalog.GetBackup(context.Background(), fmt.Sprintf("b%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if rec.CloudSyncStatus != models.CloudSyncSynced {
			t.Errorf("b%d CloudSyncStatus = %s, want SYNCED", i, rec.CloudSyncStatus)
		}
	}
}
