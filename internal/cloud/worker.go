// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
)

// QueueFullMessage is recorded on a backup whose sync could not be queued
const QueueFullMessage = "cloud sync queue full"

// Request identifies one backup to replicate.
type Request struct {
	TenantID string
	BackupID string
}

// Worker drains sync requests in the background.
type Worker struct {
	syncer  *Syncer
	queue   chan Request
	limiter *rate.Limiter
	name    string

	// pending counts queued plus running requests; idle is closed while it is zero
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// NewWorker creates a worker with a bounded queue. uploadsPerSecond <= 0 disables throttling.
func NewWorker(syncer *Syncer, queueSize int, uploadsPerSecond float64) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	limit := rate.Inf
	if uploadsPerSecond > 0 {
		limit = rate.Limit(uploadsPerSecond)
	}
	idle := make(chan struct{})
	close(idle)
	return &Worker{
		syncer:  syncer,
		queue:   make(chan Request, queueSize),
		limiter: rate.NewLimiter(limit, 1),
		name:    "cloud-sync-worker",
		idle:    idle,
	}
}

// track adjusts the pending count by delta.
func (w *Worker) track(delta int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 && delta > 0 {
		w.idle = make(chan struct{})
	}
	w.pending += delta
	if w.pending == 0 && delta < 0 {
		close(w.idle)
	}
}

// Enqueue schedules a sync without blocking. When the queue is full the
// backup is marked FAILED and false is returned.
func (w *Worker) Enqueue(tenantID, backupID string) bool {
	w.track(1)
	select {
	case w.queue <- Request{TenantID: tenantID, BackupID: backupID}:
		metrics.SetCloudSyncQueueDepth(len(w.queue))
		return true
	default:
		w.track(-1)
		w.syncer.MarkFailed(context.Background(), tenantID, backupID, QueueFullMessage)
		return false
	}
}

// Pending returns the number of queued requests.
func (w *Worker) Pending() int {
	return len(w.queue)
}

// Wait blocks until every enqueued request has been processed or abandoned
// by a stopping Serve.
func (w *Worker) Wait() {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	<-idle
}

// Serve implements suture.Service. On shutdown, requests still queued are
// abandoned and their backups stay PENDING for a later SyncToCloud.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().Int("queue_capacity", cap(w.queue)).Msg("Cloud sync worker started")
	for {
		select {
		case <-ctx.Done():
			w.abandonQueued()
			return ctx.Err()
		case req := <-w.queue:
			metrics.SetCloudSyncQueueDepth(len(w.queue))
			w.process(ctx, req)
		}
	}
}

func (w *Worker) abandonQueued() {
	for {
		select {
		case req := <-w.queue:
			logging.Warn().Str("backup_id", req.BackupID).Msg("Cloud sync abandoned at shutdown")
			w.track(-1)
		default:
			metrics.SetCloudSyncQueueDepth(0)
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, req Request) {
	defer w.track(-1)

	if err := w.limiter.Wait(ctx); err != nil {
		// Shutting down: leave the record PENDING for the next sync call
		logging.Warn().Err(err).Str("backup_id", req.BackupID).Msg("Cloud sync abandoned at shutdown")
		return
	}

	ctx = logging.ContextWithTenant(ctx, req.TenantID)
	result, err := w.syncer.SyncToCloud(ctx, req.BackupID)
	if err != nil {
		if !apperr.IsExpected(err) {
			logging.Ctx(ctx).Error().Err(err).Str("backup_id", req.BackupID).Msg("Cloud sync error")
		}
		return
	}
	logging.Ctx(ctx).Debug().
		Str("backup_id", req.BackupID).
		Str("cloud_uri", result.CloudURI).
		Msg("Queued cloud sync finished")
}

// String implements fmt.Stringer for suture logging.
func (w *Worker) String() string {
	return w.name
}
