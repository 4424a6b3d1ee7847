/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/acronis/go-cachekit/log"
	"github.com/acronis/go-cachekit/retry"
)

// Fetcher produces the authoritative value for a key.
// It's invoked through the cache's retry policy on miss, force refresh, and background refresh.
type Fetcher[V any] func(ctx context.Context) (V, error)

type cacheEntry[V any] struct {
	key       string
	value     V
	storedAt  time.Time
	ttl       time.Duration
	staleTTL  time.Duration
	version   string
	sizeBytes int
}

// isFresh reports whether the entry is within its TTL. Zero TTL means no expiration.
func (e *cacheEntry[V]) isFresh(now time.Time) bool {
	return e.ttl == 0 || now.Sub(e.storedAt) <= e.ttl
}

// isServableStale reports whether the entry is past its TTL but still within the stale window
// (ttl < age < ttl+staleTTL).
func (e *cacheEntry[V]) isServableStale(now time.Time) bool {
	if e.ttl == 0 || e.staleTTL == 0 {
		return false
	}
	age := now.Sub(e.storedAt)
	return age > e.ttl && age < e.ttl+e.staleTTL
}

// isFullyExpired reports whether the entry is past both its TTL and stale window.
func (e *cacheEntry[V]) isFullyExpired(now time.Time) bool {
	if e.ttl == 0 {
		return false
	}
	age := now.Sub(e.storedAt)
	if e.staleTTL == 0 {
		return age > e.ttl
	}
	return age >= e.ttl+e.staleTTL
}

// matchesVersion reports whether the entry satisfies the requested version.
// An empty requested version matches any stored entry.
func (e *cacheEntry[V]) matchesVersion(requested string) bool {
	return requested == "" || e.version == requested
}

// Cache represents a size-bounded stale-while-revalidate cache.
//
// It's supposed to be constructed once by the composition root and passed by reference;
// Close must be called to stop the internal cleanup goroutine.
type Cache[V any] struct {
	maxSizeBytes    int
	defaultTTL      time.Duration
	defaultStaleTTL time.Duration

	sizeEstimator    SizeEstimator
	retryPolicy      retry.Policy
	logger           log.FieldLogger
	metricsCollector MetricsCollector

	mu             sync.RWMutex
	writeList      *list.List               // entries in write order, oldest at front
	entries        map[string]*list.Element // map of cache entries, value is a writeList element
	totalSizeBytes int

	hits      atomic.Int64
	misses    atomic.Int64
	staleHits atomic.Int64

	cancelCleanup context.CancelFunc
	closeOnce     sync.Once
}

// New creates a new Cache with default options.
func New[V any]() (*Cache[V], error) {
	return NewWithOpts[V](Options{})
}

// NewWithOpts creates a new Cache with the provided options
// and starts the periodic cleanup goroutine (unless disabled).
func NewWithOpts[V any](opts Options) (*Cache[V], error) {
	if opts.MaxSizeBytes < 0 {
		return nil, fmt.Errorf("maxSizeBytes must be greater or equal to 0, got %d", opts.MaxSizeBytes)
	}
	if opts.MaxSizeBytes == 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if err := validateTTLs(opts.DefaultTTL, opts.DefaultStaleTTL); err != nil {
		return nil, err
	}
	if opts.CleanupInterval < 0 {
		return nil, fmt.Errorf("cleanupInterval must be greater or equal to 0, got %s", opts.CleanupInterval)
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.SizeEstimator == nil {
		opts.SizeEstimator = JSONSizeEstimator{}
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = retry.NewExponentialBackoffPolicy(DefaultRetryInitialInterval, DefaultRetryMaxAttempts)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}

	c := &Cache[V]{
		maxSizeBytes:     opts.MaxSizeBytes,
		defaultTTL:       opts.DefaultTTL,
		defaultStaleTTL:  opts.DefaultStaleTTL,
		sizeEstimator:    opts.SizeEstimator,
		retryPolicy:      opts.RetryPolicy,
		logger:           opts.Logger,
		metricsCollector: opts.MetricsCollector,
		writeList:        list.New(),
		entries:          make(map[string]*list.Element),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelCleanup = cancel
	if !opts.DisablePeriodicCleanup {
		go c.runPeriodicCleanup(ctx, opts.CleanupInterval)
	}
	return c, nil
}

const (
	outcomeHit = iota
	outcomeStaleHit
	outcomeMiss
)

// Get returns the value for the provided key, fetching it when needed.
//
// A fresh entry is returned as is. A stale entry (past TTL but within the stale window)
// is returned immediately, and a detached background refresh is scheduled; the refresh
// is never awaited by the caller and its errors are only logged. On miss (absent key,
// version mismatch, or full expiry) the fetcher is invoked synchronously through the
// retry policy, and its error after exhaustion propagates to the caller.
//
// Concurrent misses and concurrent stale reads of the same key are not deduplicated:
// each call invokes or schedules its own fetch.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetcher[V], opts GetOpts) (V, error) {
	ttl, staleTTL := c.effectiveTTLs(opts.TTL, opts.StaleTTL)
	if err := validateTTLs(ttl, staleTTL); err != nil {
		var zero V
		return zero, err
	}

	if opts.ForceRefresh {
		return c.fetchAndStore(ctx, key, fetch, ttl, staleTTL, opts.Version)
	}

	now := time.Now()
	var value V
	outcome := outcomeMiss
	c.mu.RLock()
	if elem, found := c.entries[key]; found {
		entry := elem.Value.(*cacheEntry[V])
		switch {
		case !entry.matchesVersion(opts.Version):
		case entry.isFresh(now):
			value, outcome = entry.value, outcomeHit
		case entry.isServableStale(now):
			value, outcome = entry.value, outcomeStaleHit
		}
	}
	c.mu.RUnlock()

	switch outcome {
	case outcomeHit:
		c.hits.Inc()
		c.metricsCollector.IncHits()
		return value, nil
	case outcomeStaleHit:
		c.staleHits.Inc()
		c.metricsCollector.IncStaleHits()
		c.refreshInBackground(key, fetch, ttl, staleTTL, opts.Version)
		return value, nil
	default:
		c.misses.Inc()
		c.metricsCollector.IncMisses()
		return c.fetchAndStore(ctx, key, fetch, ttl, staleTTL, opts.Version)
	}
}

// Set stores a value for the provided key, recomputing its estimated size
// and evicting the oldest-written entries if the size budget is exceeded.
// An overwritten key becomes the most recently written one for eviction purposes.
func (c *Cache[V]) Set(key string, value V, opts SetOpts) error {
	ttl, staleTTL := c.effectiveTTLs(opts.TTL, opts.StaleTTL)
	if err := validateTTLs(ttl, staleTTL); err != nil {
		return err
	}
	return c.store(key, value, ttl, staleTTL, opts.Version)
}

// Warm applies the provided entries through the same path as Set, in the order given.
// It's best-effort, not transactional: an entry that fails (e.g. its size can't be estimated)
// is skipped, and the rest proceed; all failures are reported in the joined returned error.
// Later entries may evict earlier ones of the same batch when the budget is exceeded.
func (c *Cache[V]) Warm(entries []WarmEntry[V]) error {
	var errs []error
	for i := range entries {
		if err := c.Set(entries[i].Key, entries[i].Value, entries[i].Opts); err != nil {
			errs = append(errs, fmt.Errorf("warm entry %q: %w", entries[i].Key, err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes the entry for the provided key if present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	elem, found := c.entries[key]
	if found {
		c.removeElem(elem)
	}
	amount, size := len(c.entries), c.totalSizeBytes
	c.mu.Unlock()

	if found {
		c.metricsCollector.SetAmount(amount)
		c.metricsCollector.SetSizeBytes(size)
	}
	return found
}

// Clear removes all entries and zeroes the resident-size accounting.
// Statistics counters are kept; use ResetStats to zero them.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.writeList.Init()
	c.totalSizeBytes = 0
	c.mu.Unlock()

	c.metricsCollector.SetAmount(0)
	c.metricsCollector.SetSizeBytes(0)
}

// Cleanup removes every fully expired entry, i.e. one whose age exceeds
// TTL plus the stale window (or just TTL if no stale window is configured).
// Merely stale entries are kept. Returns the number of removed entries.
func (c *Cache[V]) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	var removed int
	for elem := c.writeList.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*cacheEntry[V]).isFullyExpired(now) {
			c.removeElem(elem)
			removed++
		}
		elem = next
	}
	amount, size := len(c.entries), c.totalSizeBytes
	c.mu.Unlock()

	if removed > 0 {
		c.metricsCollector.AddExpirations(removed)
		c.metricsCollector.SetAmount(amount)
		c.metricsCollector.SetSizeBytes(size)
	}
	return removed
}

// Len returns the number of entries in the cache, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
// HitRate is hits/(hits+misses); stale hits are tracked separately and excluded from the ratio.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	amount, size := len(c.entries), c.totalSizeBytes
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:          hits,
		Misses:        misses,
		StaleHits:     c.staleHits.Load(),
		HitRate:       hitRate,
		EntriesAmount: amount,
		SizeBytes:     size,
	}
}

// ResetStats zeroes the hit/miss/stale-hit counters. Cache entries are not affected.
func (c *Cache[V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.staleHits.Store(0)
}

// Close stops the periodic cleanup goroutine.
// It doesn't clear the store and doesn't reset statistics.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(c.cancelCleanup)
}

func (c *Cache[V]) effectiveTTLs(ttl, staleTTL time.Duration) (time.Duration, time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if staleTTL == 0 {
		staleTTL = c.defaultStaleTTL
	}
	return ttl, staleTTL
}

func (c *Cache[V]) fetchAndStore(
	ctx context.Context, key string, fetch Fetcher[V], ttl, staleTTL time.Duration, version string,
) (V, error) {
	value, err := c.invokeFetch(ctx, fetch)
	if err != nil {
		var zero V
		return zero, err
	}
	if storeErr := c.store(key, value, ttl, staleTTL, version); storeErr != nil {
		// The caller still gets the fetched value, it's just not cached.
		c.logger.Warn("fetched value was not cached", log.String("cache_key", key), log.Error(storeErr))
	}
	return value, nil
}

func (c *Cache[V]) invokeFetch(ctx context.Context, fetch Fetcher[V]) (V, error) {
	var value V
	err := retry.DoWithRetry(ctx, c.retryPolicy, nil, nil, func(ctx context.Context) error {
		v, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return fetchErr
		}
		value = v
		return nil
	})
	return value, err
}

// refreshInBackground schedules a detached refresh of the provided key.
// The original caller never awaits it; failures keep the existing stale entry and are only logged.
func (c *Cache[V]) refreshInBackground(key string, fetch Fetcher[V], ttl, staleTTL time.Duration, version string) {
	logger := c.logger.With(log.String("cache_key", key), log.String("refresh_id", xid.New().String()))
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error(fmt.Sprintf("panic in background cache refresh: %+v", p))
			}
		}()

		start := time.Now()
		value, err := c.invokeFetch(context.Background(), fetch)
		if err != nil {
			logger.Error("background cache refresh failed, stale entry is kept", log.Error(err))
			return
		}
		if err = c.store(key, value, ttl, staleTTL, version); err != nil {
			logger.Error("background cache refresh failed to store new value", log.Error(err))
			return
		}
		logger.Debug("background cache refresh succeeded", log.DurationIn(time.Since(start), time.Millisecond))
	}()
}

func (c *Cache[V]) store(key string, value V, ttl, staleTTL time.Duration, version string) error {
	size, err := c.sizeEstimator.SizeOf(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	entry := &cacheEntry[V]{
		key:       key,
		value:     value,
		storedAt:  time.Now(),
		ttl:       ttl,
		staleTTL:  staleTTL,
		version:   version,
		sizeBytes: size,
	}
	if elem, found := c.entries[key]; found {
		c.totalSizeBytes += size - elem.Value.(*cacheEntry[V]).sizeBytes
		elem.Value = entry
		c.writeList.MoveToBack(elem)
	} else {
		c.entries[key] = c.writeList.PushBack(entry)
		c.totalSizeBytes += size
	}
	evicted := c.evictOverBudget()
	amount, totalSize := len(c.entries), c.totalSizeBytes
	c.mu.Unlock()

	c.metricsCollector.SetAmount(amount)
	c.metricsCollector.SetSizeBytes(totalSize)
	if evicted > 0 {
		c.metricsCollector.AddEvictions(evicted)
	}
	return nil
}

// evictOverBudget removes the oldest-written entries while the total size exceeds the budget.
// Must be called with the mutex held.
func (c *Cache[V]) evictOverBudget() (evicted int) {
	for c.totalSizeBytes > c.maxSizeBytes {
		elem := c.writeList.Front()
		if elem == nil {
			break
		}
		c.removeElem(elem)
		evicted++
	}
	return evicted
}

// removeElem removes the entry from both the map and the write-order list
// and updates the size accounting. Must be called with the mutex held.
func (c *Cache[V]) removeElem(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[V])
	c.writeList.Remove(elem)
	delete(c.entries, entry.key)
	c.totalSizeBytes -= entry.sizeBytes
}

func (c *Cache[V]) runPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits          int64
	Misses        int64
	StaleHits     int64
	HitRate       float64
	EntriesAmount int
	SizeBytes     int
}
