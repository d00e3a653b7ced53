// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package cloud

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
)

// BreakerStore wraps a RemoteStore with a circuit breaker.
//
// A missing object is an answer, not a failure, so ErrObjectNotFound does
// not count against the breaker.
type BreakerStore struct {
	store RemoteStore
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerStore creates the wrapper. The breaker opens after
// cfg.FailureThreshold consecutive failures.
func NewBreakerStore(provider string, store RemoteStore, cfg *config.BreakerConfig) *BreakerStore {
	cbName := "cloud-" + provider

	// Initialize circuit breaker state metrics
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= cfg.FailureThreshold
			if shouldTrip {
				logging.Warn().
					Str("breaker", cbName).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerStore{store: store, cb: cb, name: cbName}
}

// State returns the breaker's current state name.
func (b *BreakerStore) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Str("breaker", b.name).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// Upload stores data through the breaker.
func (b *BreakerStore) Upload(ctx context.Context, data []byte, objectPath string) (string, error) {
	result, err := b.execute(func() (any, error) {
		return b.store.Upload(ctx, data, objectPath)
	})
	if err != nil {
		return "", err
	}
	return castResult[string](result)
}

// Download fetches an object through the breaker.
func (b *BreakerStore) Download(ctx context.Context, uri string) ([]byte, error) {
	result, err := b.execute(func() (any, error) {
		return b.store.Download(ctx, uri)
	})
	if err != nil {
		return nil, err
	}
	return castResult[[]byte](result)
}

// Exists checks an object through the breaker.
func (b *BreakerStore) Exists(ctx context.Context, uri string) (bool, error) {
	result, err := b.execute(func() (any, error) {
		return b.store.Exists(ctx, uri)
	})
	if err != nil {
		return false, err
	}
	return castResult[bool](result)
}

// Delete removes an object through the breaker.
func (b *BreakerStore) Delete(ctx context.Context, uri string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.store.Delete(ctx, uri)
	})
	return err
}

func castResult[T any](result any) (T, error) {
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var _ RemoteStore = (*BreakerStore)(nil)
