/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-cachekit/log/logtest"
)

func TestCleanupWorker(t *testing.T) {
	cache := makeCache(t, Options{})
	require.NoError(t, cache.Set("expired", cvDocument{Name: "expired"}, SetOpts{TTL: time.Second}))
	require.NoError(t, cache.Set("fresh", cvDocument{Name: "fresh"}, SetOpts{TTL: time.Minute}))
	backdate(t, cache, "expired", 2*time.Second)

	logRecorder := logtest.NewRecorder()
	worker := NewCleanupWorker(cache, logRecorder)
	require.NoError(t, worker.Run(context.Background()))

	require.Equal(t, 1, cache.Len())
	require.True(t, cache.Delete("fresh"))

	entry, found := logRecorder.FindEntry("expired cache entries removed")
	require.True(t, found)
	removedField, found := entry.FindField("removed_entries")
	require.True(t, found)
	require.EqualValues(t, 1, removedField.Int)
}

func TestCleanupWorkerNothingToRemove(t *testing.T) {
	cache := makeCache(t, Options{})
	require.NoError(t, cache.Set("fresh", cvDocument{Name: "fresh"}, SetOpts{TTL: time.Minute}))

	logRecorder := logtest.NewRecorder()
	require.NoError(t, NewCleanupWorker(cache, logRecorder).Run(context.Background()))

	require.Equal(t, 1, cache.Len())
	require.Empty(t, logRecorder.Entries())
}
