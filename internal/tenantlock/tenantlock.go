// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package tenantlock provides in-process mutual exclusion keyed by tenant id.
//
// Entries are reference counted and removed when the last holder or waiter
// releases them, so the map does not grow with the number of tenants ever seen.
//
//	locks := tenantlock.New()
//
//	unlock, ok := locks.TryLock(tenantID)
//	if !ok {
//	    return ErrBackupInProgress
//	}
//	defer unlock()
package tenantlock

import (
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks is a set of per-tenant mutexes. The zero value is not usable; call New.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock set.
func New() *Locks {
	return &Locks{entries: make(map[string]*entry)}
}

func (l *Locks) acquire(tenantID string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[tenantID]
	if !ok {
		e = &entry{}
		l.entries[tenantID] = e
	}
	e.refs++
	return e
}

func (l *Locks) release(tenantID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, tenantID)
	}
}

// Lock blocks until the tenant's lock is held and returns its release func.
func (l *Locks) Lock(tenantID string) func() {
	e := l.acquire(tenantID)
	e.mu.Lock()
	return l.unlocker(tenantID, e)
}

// TryLock acquires the tenant's lock only if it is free.
func (l *Locks) TryLock(tenantID string) (func(), bool) {
	e := l.acquire(tenantID)
	if !e.mu.TryLock() {
		l.release(tenantID, e)
		return nil, false
	}
	return l.unlocker(tenantID, e), true
}

// Held reports whether any caller currently holds or waits on the tenant's lock.
func (l *Locks) Held(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[tenantID]
	return ok
}

func (l *Locks) unlocker(tenantID string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.release(tenantID, e)
		})
	}
}
