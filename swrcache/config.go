/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-cachekit/config"
	"github.com/acronis/go-cachekit/retry"
)

const (
	// RetryPolicyExponential is a policy for exponential fetch retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant fetch retries.
	RetryPolicyConstant = "constant"

	// configuration properties
	cfgKeyMaxSizeBytes                            = "maxSizeBytes"
	cfgKeyDefaultTTL                              = "defaultTTL"
	cfgKeyDefaultStaleTTL                         = "defaultStaleTTL"
	cfgKeyCleanupInterval                         = "cleanupInterval"
	cfgKeyRetriesMax                              = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// PolicyConfig represents configuration options for the fetch retry policy.
type PolicyConfig struct {
	// Strategy is a strategy for retry policy.
	Strategy string `mapstructure:"strategy"`

	// ExponentialBackoffInitialInterval is the initial interval for exponential backoff.
	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval"`

	// ExponentialBackoffMultiplier is the multiplier for exponential backoff.
	ExponentialBackoffMultiplier float64 `mapstructure:"exponentialBackoffMultiplier"`

	// ConstantBackoffInterval is the interval for constant backoff.
	ConstantBackoffInterval config.TimeDuration `mapstructure:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) error {
	strategy, err := dp.GetString(cfgKeyRetriesPolicyStrategy)
	if err != nil {
		return err
	}
	c.Strategy = strategy

	if c.Strategy != "" && c.Strategy != RetryPolicyExponential && c.Strategy != RetryPolicyConstant {
		return errors.New("cache retry policy must be one of: [exponential, constant]")
	}

	if c.Strategy == RetryPolicyExponential {
		var interval time.Duration
		interval, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("cache exponential backoff initial interval must be positive")
		}
		c.ExponentialBackoffInitialInterval = config.TimeDuration(interval)

		var multiplier float64
		multiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier)
		if err != nil {
			return err
		}
		if multiplier <= 1 {
			return errors.New("cache exponential backoff multiplier must be greater than 1")
		}
		c.ExponentialBackoffMultiplier = multiplier

		return nil
	}

	if c.Strategy == RetryPolicyConstant {
		var interval time.Duration
		interval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("cache constant backoff interval must be positive")
		}
		c.ConstantBackoffInterval = config.TimeDuration(interval)
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *PolicyConfig) SetProviderDefaults(_ config.DataProvider) {}

// RetriesConfig represents configuration options for retrying fetcher invocations.
type RetriesConfig struct {
	// MaxAttempts is the maximum number of attempts to retry a failed fetch.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// Policy of a retry: [exponential, constant]. Default is exponential.
	Policy PolicyConfig `mapstructure:"policy"`
}

// GetPolicy returns a retry policy based on the strategy or nil if none is configured.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	if c.Policy.Strategy == RetryPolicyExponential {
		return retry.PolicyFunc(func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = time.Duration(c.Policy.ExponentialBackoffInitialInterval)
			eb.Multiplier = c.Policy.ExponentialBackoffMultiplier
			var bf backoff.BackOff = eb
			if c.MaxAttempts > 0 {
				bf = backoff.WithMaxRetries(eb, uint64(c.MaxAttempts))
			}
			bf.Reset()
			return bf
		})
	}
	if c.Policy.Strategy == RetryPolicyConstant {
		return retry.PolicyFunc(func() backoff.BackOff {
			var bf backoff.BackOff = backoff.NewConstantBackOff(time.Duration(c.Policy.ConstantBackoffInterval))
			if c.MaxAttempts > 0 {
				bf = backoff.WithMaxRetries(bf, uint64(c.MaxAttempts))
			}
			bf.Reset()
			return bf
		})
	}
	return nil
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	maxAttempts, err := dp.GetInt(cfgKeyRetriesMax)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return errors.New("cache max fetch retry attempts must be positive")
	}
	c.MaxAttempts = maxAttempts

	return c.Policy.Set(config.NewKeyPrefixedDataProvider(dp, ""))
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetriesConfig) SetProviderDefaults(_ config.DataProvider) {}

// Config represents options for the cache configuration.
type Config struct {
	// MaxSizeBytes is a byte budget bounding the total estimated size of all entries.
	MaxSizeBytes config.ByteSize `mapstructure:"maxSizeBytes"`

	// DefaultTTL is the TTL applied to writes that don't specify their own. Zero means no expiration.
	DefaultTTL config.TimeDuration `mapstructure:"defaultTTL"`

	// DefaultStaleTTL is the stale window applied to writes that don't specify their own.
	DefaultStaleTTL config.TimeDuration `mapstructure:"defaultStaleTTL"`

	// CleanupInterval is the interval between periodic sweeps of fully expired entries.
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval"`

	// Retries is a configuration for retrying fetcher invocations.
	Retries RetriesConfig `mapstructure:"retries"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	maxSize, err := dp.GetSizeInBytes(cfgKeyMaxSizeBytes)
	if err != nil {
		return err
	}
	c.MaxSizeBytes = config.ByteSize(maxSize)

	defaultTTL, err := dp.GetDuration(cfgKeyDefaultTTL)
	if err != nil {
		return err
	}
	defaultStaleTTL, err := dp.GetDuration(cfgKeyDefaultStaleTTL)
	if err != nil {
		return err
	}
	if err = validateTTLs(defaultTTL, defaultStaleTTL); err != nil {
		return err
	}
	c.DefaultTTL = config.TimeDuration(defaultTTL)
	c.DefaultStaleTTL = config.TimeDuration(defaultStaleTTL)

	cleanupInterval, err := dp.GetDuration(cfgKeyCleanupInterval)
	if err != nil {
		return err
	}
	if cleanupInterval < 0 {
		return errors.New("cache cleanup interval must be positive")
	}
	c.CleanupInterval = config.TimeDuration(cleanupInterval)

	return c.Retries.Set(config.NewKeyPrefixedDataProvider(dp, ""))
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxSizeBytes, "10M")
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyRetriesMax, DefaultRetryMaxAttempts)
}

// CacheOpts returns cache options based on the configuration.
func (c *Config) CacheOpts() Options {
	return Options{
		MaxSizeBytes:    int(c.MaxSizeBytes),
		DefaultTTL:      time.Duration(c.DefaultTTL),
		DefaultStaleTTL: time.Duration(c.DefaultStaleTTL),
		CleanupInterval: time.Duration(c.CleanupInterval),
		RetryPolicy:     c.Retries.GetPolicy(),
	}
}
