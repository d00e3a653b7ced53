// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/artifacts"
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

const testTenant = "school-a"

// scriptedSource wraps a MemorySource with hooks for blocking and failing calls
type scriptedSource struct {
	*datasource.MemorySource

	mu        sync.Mutex
	exportErr error
	gate      chan struct{}
	started   chan struct{}
	startOnce *sync.Once
	applyFn   func(call int, tenantID string, ds datasource.Dataset, mode datasource.ApplyMode) (datasource.ApplyResult, bool, error)
	modes     []datasource.ApplyMode
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{MemorySource: datasource.NewMemorySource()}
}

// block makes the next exports wait until the returned func is called.
func (s *scriptedSource) block() (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.started = make(chan struct{})
	s.startOnce = &sync.Once{}
	gate := s.gate
	var once sync.Once
	return s.started, func() { once.Do(func() { close(gate) }) }
}

func (s *scriptedSource) failExports(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportErr = err
}

func (s *scriptedSource) wait(ctx context.Context) error {
	s.mu.Lock()
	gate, started, once, err := s.gate, s.started, s.startOnce, s.exportErr
	s.mu.Unlock()

	if started != nil {
		once.Do(func() { close(started) })
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *scriptedSource) Export(ctx context.Context, tenantID string) (datasource.Dataset, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.MemorySource.Export(ctx, tenantID)
}

func (s *scriptedSource) ExportSince(ctx context.Context, tenantID string, since time.Time) (datasource.Dataset, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.MemorySource.ExportSince(ctx, tenantID, since)
}

func (s *scriptedSource) Apply(ctx context.Context, tenantID string, ds datasource.Dataset, mode datasource.ApplyMode) (datasource.ApplyResult, error) {
	s.mu.Lock()
	s.modes = append(s.modes, mode)
	call := len(s.modes)
	fn := s.applyFn
	s.mu.Unlock()

	if fn != nil {
		if result, handled, err := fn(call, tenantID, ds, mode); handled {
			return result, err
		}
	}
	return s.MemorySource.Apply(ctx, tenantID, ds, mode)
}

func (s *scriptedSource) applyModes() []datasource.ApplyMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datasource.ApplyMode(nil), s.modes...)
}

// fakeQueue records enqueued backups
type fakeQueue struct {
	mu       sync.Mutex
	requests []string
}

func (q *fakeQueue) Enqueue(_, backupID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, backupID)
	return true
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.requests...)
}

// failingArtifacts wraps a real store and fails the configured operations
type failingArtifacts struct {
	*artifacts.Store

	mu     sync.Mutex
	putErr error
	getErr error
}

func (f *failingArtifacts) fail(put, get error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErr, f.getErr = put, get
}

func (f *failingArtifacts) Put(tenantID, backupID string, data []byte) (string, error) {
	f.mu.Lock()
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Store.Put(tenantID, backupID, data)
}

func (f *failingArtifacts) Get(location string) ([]byte, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Get(location)
}

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

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) has(t events.Type) bool {
	for _, got := range p.types() {
		if got == t {
			return true
		}
	}
	return false
}

type testEnv struct {
	m         *Manager
	catalog   *catalog.Catalog
	keys      *keys.Manager
	source    *scriptedSource
	artifacts *artifacts.Store
	configs   *tenantconfig.Store
	queue     *fakeQueue
	remote    *cloud.MemoryStore
	events    *recordingPublisher
}

type envOption func(*Deps, *testEnv)

// withoutQueue leaves the manager without cloud replication
func withoutQueue() envOption {
	return func(d *Deps, _ *testEnv) { d.SyncQueue = nil }
}

// withFailingArtifacts routes artifact I/O through a store whose failures the test controls
func withFailingArtifacts(f **failingArtifacts) envOption {
	return func(d *Deps, e *testEnv) {
		*f = &failingArtifacts{Store: e.artifacts}
		d.Artifacts = *f
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cat, err := catalog.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	keyManager, err := keys.NewManager(cat, "test-master-secret", keys.WithExportWorkFactor(10))
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

	env := &testEnv{
		catalog:   cat,
		keys:      keyManager,
		source:    newScriptedSource(),
		artifacts: store,
		configs:   tenantconfig.New(cat, config.DefaultsConfig{ScheduleFrequency: "manual"}),
		queue:     &fakeQueue{},
		remote:    cloud.NewMemoryStore("test"),
		events:    &recordingPublisher{},
	}

	deps := Deps{
		Catalog:   cat,
		Keys:      keyManager,
		Codec:     c,
		Source:    env.source,
		Artifacts: store,
		Configs:   env.configs,
		SyncQueue: env.queue,
		Remote:    env.remote,
		Publisher: env.events,
	}
	for _, opt := range opts {
		opt(&deps, env)
	}

	env.m, err = NewManager(deps)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return env
}

// seed adds n student records to the tenant
func (e *testEnv) seed(tenantID string, n int, updatedAt time.Time) {
	for i := 0; i < n; i++ {
		e.source.Put(tenantID, "students", datasource.Record{
			"id":         fmt.Sprintf("s-%d-%d", updatedAt.UnixNano(), i),
			"tenant_id":  tenantID,
			"name":       fmt.Sprintf("Student %d", i),
			"updated_at": updatedAt,
		})
	}
}

func (e *testEnv) mustBackup(t *testing.T, tenantID string, typ models.BackupType) *models.BackupRecord {
	t.Helper()
	rec, err := e.m.CreateBackup(context.Background(), CreateRequest{TenantID: tenantID, Type: typ, CreatedBy: "test"})
	if err != nil {
		t.Fatalf("CreateBackup(%s) error = %v", typ, err)
	}
	if rec.Status != models.BackupStatusCompleted {
		t.Fatalf("CreateBackup(%s) status = %s", typ, rec.Status)
	}
	return rec
}

func (e *testEnv) studentCount(tenantID string) int {
	return len(e.source.Snapshot(tenantID)["students"])
}

// artifactFiles counts files under the artifact store
func (e *testEnv) artifactFiles(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(e.artifacts.Dir(), func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir() error = %v", err)
	}
	return count
}
