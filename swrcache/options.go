/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"fmt"
	"time"

	"github.com/acronis/go-cachekit/log"
	"github.com/acronis/go-cachekit/retry"
)

const (
	// DefaultMaxSizeBytes is the default byte budget bounding the total estimated size of all entries.
	DefaultMaxSizeBytes = 10 * 1024 * 1024

	// DefaultCleanupInterval is the default interval between periodic sweeps of fully expired entries.
	DefaultCleanupInterval = time.Minute

	// DefaultRetryInitialInterval is the initial backoff interval of the default fetch retry policy.
	DefaultRetryInitialInterval = 100 * time.Millisecond

	// DefaultRetryMaxAttempts is the max number of retry attempts of the default fetch retry policy.
	DefaultRetryMaxAttempts = 3
)

// Options represents options for the cache.
type Options struct {
	// MaxSizeBytes is a byte budget bounding the total estimated size of all entries.
	// When a write makes the total exceed it, the oldest-written entries are evicted.
	// If zero, DefaultMaxSizeBytes is used.
	MaxSizeBytes int

	// DefaultTTL is the TTL applied to writes that don't specify their own.
	// Zero means entries don't expire.
	DefaultTTL time.Duration

	// DefaultStaleTTL is the stale window applied to writes that don't specify their own.
	// It extends beyond TTL: an entry is served stale while ttl < age < ttl+staleTTL.
	// Zero means no stale window (hard miss right after TTL).
	DefaultStaleTTL time.Duration

	// CleanupInterval is the interval between periodic sweeps of fully expired entries.
	// If zero, DefaultCleanupInterval is used.
	CleanupInterval time.Duration

	// DisablePeriodicCleanup disables the internal cleanup goroutine.
	// Useful when the sweep is driven externally, e.g. by service.PeriodicWorker
	// running a CleanupWorker.
	DisablePeriodicCleanup bool

	// SizeEstimator estimates the serialized size of cached values.
	// If nil, JSONSizeEstimator is used.
	SizeEstimator SizeEstimator

	// RetryPolicy is the backoff policy applied to every fetcher invocation.
	// If nil, an exponential policy with DefaultRetryInitialInterval and
	// DefaultRetryMaxAttempts is used.
	RetryPolicy retry.Policy

	// Logger is used for reporting background refresh failures and cleanup activity.
	// If nil, logging is disabled.
	Logger log.FieldLogger

	// MetricsCollector collects statistics about cache usage.
	// If nil, metrics are disabled.
	MetricsCollector MetricsCollector
}

// GetOpts represents per-read options for Cache.Get.
type GetOpts struct {
	// TTL overrides the cache-wide default TTL for the entry written on miss or refresh.
	TTL time.Duration

	// StaleTTL overrides the cache-wide default stale window for the entry written on miss or refresh.
	StaleTTL time.Duration

	// Version is an opaque tag. A read whose version differs from the stored entry's version
	// is always a miss, independent of TTL state. An empty version matches any stored entry.
	Version string

	// ForceRefresh makes Get invoke the fetcher unconditionally, bypassing the lookup.
	ForceRefresh bool
}

// SetOpts represents per-write options for Cache.Set and Cache.Warm entries.
type SetOpts struct {
	// TTL overrides the cache-wide default TTL. Zero means the default is applied.
	TTL time.Duration

	// StaleTTL overrides the cache-wide default stale window. Zero means the default is applied.
	StaleTTL time.Duration

	// Version is an opaque tag stored with the entry, compared on versioned reads.
	Version string
}

// WarmEntry is a single (key, value, options) tuple for Cache.Warm.
type WarmEntry[V any] struct {
	Key   string
	Value V
	Opts  SetOpts
}

func validateTTLs(ttl, staleTTL time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("ttl must not be negative, got %s", ttl)
	}
	if staleTTL < 0 {
		return fmt.Errorf("staleTTL must not be negative, got %s", staleTTL)
	}
	if staleTTL != 0 && staleTTL < ttl {
		return fmt.Errorf("staleTTL (%s) must not be less than ttl (%s)", staleTTL, ttl)
	}
	return nil
}
