/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package swrcache provides an in-memory, size-bounded cache with stale-while-revalidate semantics,
// retry-wrapped fetching, periodic cleanup of expired entries, and Prometheus metrics.
//
// Each entry is fresh for its TTL, then may be served stale for an additional stale-TTL window
// while a detached background refresh fetches the new value. Reads beyond the stale window,
// version-mismatched reads, and reads of absent keys invoke the caller-supplied fetcher
// synchronously. Total resident size is bounded by a byte budget; the oldest-written entries
// are evicted first when the budget is exceeded.
package swrcache
