/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"context"

	"github.com/acronis/go-cachekit/log"
)

// CleanupWorker adapts the cache's cleanup sweep to the service.Worker interface,
// so it can be driven by service.PeriodicWorker inside a service.WorkerUnit.
// Build the cache with Options.DisablePeriodicCleanup in this case to avoid double sweeping.
type CleanupWorker[V any] struct {
	cache  *Cache[V]
	logger log.FieldLogger
}

// NewCleanupWorker creates a new CleanupWorker for the provided cache.
func NewCleanupWorker[V any](cache *Cache[V], logger log.FieldLogger) *CleanupWorker[V] {
	return &CleanupWorker[V]{cache: cache, logger: logger}
}

// Run removes all fully expired entries. It's a part of the service.Worker interface implementation.
func (w *CleanupWorker[V]) Run(_ context.Context) error {
	if removed := w.cache.Cleanup(); removed > 0 {
		w.logger.Debug("expired cache entries removed", log.Int("removed_entries", removed))
	}
	return nil
}
