// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package services

import (
	"context"
	"time"

	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// GarbageCollector runs Badger value-log GC. Satisfied by *catalog.Catalog.
type GarbageCollector interface {
	RunGC(ratio float64) error
}

// BadgerGCService runs catalog value-log GC on an interval.
//
// A failed GC pass is logged and retried on the next tick rather than
// returned, so a full disk does not put the data layer into restart backoff.
type BadgerGCService struct {
	gc       GarbageCollector
	interval time.Duration
	ratio    float64
	name     string
}

// NewBadgerGCService creates the service. interval defaults to 10m and
// ratio to 0.5.
func NewBadgerGCService(gc GarbageCollector, interval time.Duration, ratio float64) *BadgerGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &BadgerGCService{
		gc:       gc,
		interval: interval,
		ratio:    ratio,
		name:     "badger-gc",
	}
}

// Serve implements suture.Service.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.gc.RunGC(s.ratio); err != nil {
				logging.Warn().Err(err).Msg("Catalog value-log GC failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Catalog value-log GC finished")
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *BadgerGCService) String() string {
	return s.name
}
