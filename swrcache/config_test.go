/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-cachekit/config"
)

func TestConfig(t *testing.T) {
	cfgData := bytes.NewBufferString(`
cache:
  maxSizeBytes: 10Mi
  defaultTTL: 5m
  defaultStaleTTL: 30m
  cleanupInterval: 90s
  retries:
    maxAttempts: 5
    policy:
      strategy: exponential
      exponentialBackoffInitialInterval: 200ms
      exponentialBackoffMultiplier: 2.5
`)
	cfg := NewConfigWithKeyPrefix("cache")
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, config.ByteSize(10*1024*1024), cfg.MaxSizeBytes)
	require.Equal(t, config.TimeDuration(5*time.Minute), cfg.DefaultTTL)
	require.Equal(t, config.TimeDuration(30*time.Minute), cfg.DefaultStaleTTL)
	require.Equal(t, config.TimeDuration(90*time.Second), cfg.CleanupInterval)
	require.Equal(t, 5, cfg.Retries.MaxAttempts)
	require.Equal(t, RetryPolicyExponential, cfg.Retries.Policy.Strategy)
	require.Equal(t, config.TimeDuration(200*time.Millisecond), cfg.Retries.Policy.ExponentialBackoffInitialInterval)
	require.Equal(t, 2.5, cfg.Retries.Policy.ExponentialBackoffMultiplier)
	require.NotNil(t, cfg.Retries.GetPolicy())

	opts := cfg.CacheOpts()
	require.Equal(t, 10*1024*1024, opts.MaxSizeBytes)
	require.Equal(t, 5*time.Minute, opts.DefaultTTL)
	require.Equal(t, 30*time.Minute, opts.DefaultStaleTTL)
	require.Equal(t, 90*time.Second, opts.CleanupInterval)
	require.NotNil(t, opts.RetryPolicy)

	cache, err := NewWithOpts[string](opts)
	require.NoError(t, err)
	defer cache.Close()
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString("{}"), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, config.ByteSize(DefaultMaxSizeBytes), cfg.MaxSizeBytes)
	require.Equal(t, config.TimeDuration(0), cfg.DefaultTTL)
	require.Equal(t, config.TimeDuration(0), cfg.DefaultStaleTTL)
	require.Equal(t, config.TimeDuration(DefaultCleanupInterval), cfg.CleanupInterval)
	require.Equal(t, DefaultRetryMaxAttempts, cfg.Retries.MaxAttempts)
	require.Nil(t, cfg.Retries.GetPolicy(), "no policy strategy configured")
}

func TestConfigConstantRetryPolicy(t *testing.T) {
	cfgData := bytes.NewBufferString(`
maxSizeBytes: 1Ki
retries:
  maxAttempts: 2
  policy:
    strategy: constant
    constantBackoffInterval: 50ms
`)
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, config.ByteSize(1024), cfg.MaxSizeBytes)
	require.Equal(t, RetryPolicyConstant, cfg.Retries.Policy.Strategy)
	require.Equal(t, config.TimeDuration(50*time.Millisecond), cfg.Retries.Policy.ConstantBackoffInterval)
	require.NotNil(t, cfg.Retries.GetPolicy())
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "unknown retry policy strategy",
			cfgData: "retries:\n  policy:\n    strategy: fibonacci\n",
			wantErr: "cache retry policy must be one of",
		},
		{
			name:    "negative max attempts",
			cfgData: "retries:\n  maxAttempts: -1\n",
			wantErr: "cache max fetch retry attempts must be positive",
		},
		{
			name:    "stale ttl less than ttl",
			cfgData: "defaultTTL: 10m\ndefaultStaleTTL: 1m\n",
			wantErr: "must not be less than",
		},
		{
			name:    "negative cleanup interval",
			cfgData: "cleanupInterval: -1s\n",
			wantErr: "cache cleanup interval must be positive",
		},
		{
			name:    "multiplier not greater than 1",
			cfgData: "retries:\n  policy:\n    strategy: exponential\n    exponentialBackoffInitialInterval: 100ms\n    exponentialBackoffMultiplier: 1\n",
			wantErr: "cache exponential backoff multiplier must be greater than 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
