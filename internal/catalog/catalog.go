// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	backupPrefix          = "backup:"
	backupIndexPrefix     = "backupidx:"
	restorePrefix         = "restore:"
	restoreIndexPrefix    = "restoreidx:"
	keyPrefix             = "key:"
	configPrefix          = "config:"
	inflightBackupPrefix  = "inflight:backup:"
	inflightRestorePrefix = "inflight:restore:"
)

// maxConflictRetries bounds retries of a transaction that lost a write conflict
const maxConflictRetries = 5

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("catalog: record not found")

	// ErrInvalidTransition is returned when an update would move a record along an illegal edge.
	ErrInvalidTransition = errors.New("catalog: invalid status transition")

	// ErrImmutable is returned when an update changes artifact fields that are already sealed.
	ErrImmutable = errors.New("catalog: backup artifact is immutable")

	// ErrBackupInProgress is returned when the tenant already has a non-terminal backup.
	ErrBackupInProgress = apperr.New(apperr.KindConflict, "BACKUP_IN_PROGRESS", "a backup is already in progress for this tenant")

	// ErrRestoreInProgress is returned when the tenant already has a non-terminal restore.
	ErrRestoreInProgress = apperr.New(apperr.KindConflict, "RESTORE_IN_PROGRESS", "a restore is already in progress for this tenant")
)

// Options configures Open.
type Options struct {
	// Dir holds the Badger files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM (tests, throwaway runs).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Catalog is the durable store of backup records, restore operations,
// tenant key versions and tenant backup configs.
//
// Key layout:
//
//	backup:{tenant}:{id}           BackupRecord
//	backupidx:{id}                 tenant
//	restore:{tenant}:{id}          RestoreOperation
//	restoreidx:{id}                tenant
//	key:{tenant}:{version:010d}    EncryptionKey
//	config:{tenant}                BackupConfig
//	inflight:backup:{tenant}       id of the tenant's non-terminal backup
//	inflight:restore:{tenant}      id of the tenant's non-terminal restore
//
// The inflight markers are read and written by every create, so two
// concurrent creates for one tenant collide as a Badger write conflict.
type Catalog struct {
	db *badger.DB
}

// Open opens (or creates) a catalog.
func Open(opts Options) (*Catalog, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("catalog dir is required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
		bopts.SyncWrites = opts.SyncWrites
	}

	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("dir", opts.Dir).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Catalog opened")

	return &Catalog{db: db}, nil
}

// OpenInMemory opens an in-memory catalog.
func OpenInMemory() (*Catalog, error) {
	return Open(Options{InMemory: true})
}

// DB returns the underlying Badger handle.
func (c *Catalog) DB() *badger.DB {
	return c.db
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RunGC runs value-log garbage collection until nothing is left to rewrite.
func (c *Catalog) RunGC(ratio float64) error {
	for {
		err := c.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (c *Catalog) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = c.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		metrics.RecordCatalogConflictRetry()
	}
	return fmt.Errorf("transaction conflicted %d times: %w", maxConflictRetries, err)
}

func (c *Catalog) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.View(fn)
}

func getJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, out)
	})
}

func unmarshal(val []byte, out interface{}) error {
	return json.Unmarshal(val, out)
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func deleteKey(txn *badger.Txn, key string) error {
	if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// scanPrefix calls decode with every value under prefix, in key order.
func scanPrefix(txn *badger.Txn, prefix string, decode func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		if err := it.Item().Value(decode); err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
	}
	return nil
}

// ListTenants returns every tenant that has backups, restores, keys or a config.
func (c *Catalog) ListTenants(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := c.view(ctx, func(txn *badger.Txn) error {
		for _, prefix := range []string{backupPrefix, restorePrefix, keyPrefix, configPrefix} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefix)
			it := txn.NewIterator(opts)
			for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
				rest := strings.TrimPrefix(string(it.Item().Key()), prefix)
				tenant, _, _ := strings.Cut(rest, ":")
				seen[tenant] = struct{}{}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	tenants := make([]string, 0, len(seen))
	for t := range seen {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants, nil
}
