/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/retry"
)

// Retry strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

// Default values.
const (
	DefaultTimeout                           = time.Minute
	DefaultRetriesMaxAttempts                = 2
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2
	DefaultConstantBackoffInterval           = 2 * time.Second
	DefaultRateLimitsLimit                   = 1
	DefaultRateLimitsBurst                   = 1
	DefaultSlowRequestThreshold              = 10 * time.Second
)

const (
	cfgKeyTimeout                                 = "timeout"
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMax                              = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                         = "rateLimits.limit"
	cfgKeyRateLimitsBurst                         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyLoggerEnabled                           = "logger.enabled"
	cfgKeyLoggerMode                              = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold              = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents options for HTTP client configuration.
type Config struct {
	// Timeout is the maximum time to wait for a single request (all retries are not included).
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Retries    RetriesConfig   `mapstructure:"retries" yaml:"retries"`
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits"`
	Logger     LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Metrics    MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

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

// NewDefaultConfig returns the configuration with all default values set.
func NewDefaultConfig() *Config {
	return &Config{
		Timeout: DefaultTimeout,
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: DefaultRetriesMaxAttempts,
			Policy: PolicyConfig{
				Strategy:                          RetryPolicyExponential,
				ExponentialBackoffInitialInterval: DefaultExponentialBackoffInitialInterval,
				ExponentialBackoffMultiplier:      DefaultExponentialBackoffMultiplier,
			},
		},
		Logger: LoggerConfig{
			Enabled:              true,
			Mode:                 string(LoggingModeFailed),
			SlowRequestThreshold: DefaultSlowRequestThreshold,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMax, DefaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, RetryPolicyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, DefaultExponentialBackoffInitialInterval.String())
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, DefaultExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyRetriesPolicyConstantInterval, DefaultConstantBackoffInterval.String())
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsLimit, DefaultRateLimitsLimit)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitsBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, "0s")
	dp.SetDefault(cfgKeyLoggerEnabled, true)
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLoggerSlowRequestThreshold, DefaultSlowRequestThreshold.String())
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("cannot be negative"))
	}
	if err = c.Retries.set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.set(dp); err != nil {
		return err
	}
	if err = c.Logger.set(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxAttempts is the maximum number of retry attempts after the first failed one.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts"`

	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`
}

// PolicyConfig represents configuration options for policy retry.
type PolicyConfig struct {
	// Strategy is one of [exponential, constant].
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval"`
	ExponentialBackoffMultiplier      float64       `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier"`
	ConstantBackoffInterval           time.Duration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval"`
}

func (c *RetriesConfig) set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMax); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMax, fmt.Errorf("cannot be negative"))
	}

	if c.Policy.Strategy, err = dp.GetStringFromSet(
		cfgKeyRetriesPolicyStrategy, []string{RetryPolicyExponential, RetryPolicyConstant}, false); err != nil {
		return err
	}

	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		if c.Policy.ExponentialBackoffInitialInterval, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
			return err
		}
		if c.Policy.ExponentialBackoffInitialInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, fmt.Errorf("cannot be negative"))
		}
		if c.Policy.ExponentialBackoffMultiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
			return err
		}
		if c.Policy.ExponentialBackoffMultiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, fmt.Errorf("must be greater than 1"))
		}
	case RetryPolicyConstant:
		if c.Policy.ConstantBackoffInterval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if c.Policy.ConstantBackoffInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, fmt.Errorf("cannot be negative"))
		}
	}
	return nil
}

// GetPolicy returns a retry policy limited by MaxAttempts or nil if retries are disabled.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	if !c.Enabled {
		return nil
	}
	maxAttempts := uint64(c.MaxAttempts)
	policy := c.Policy
	switch policy.Strategy {
	case RetryPolicyExponential:
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = policy.ExponentialBackoffInitialInterval
			bf.Multiplier = policy.ExponentialBackoffMultiplier
			bf.MaxElapsedTime = 0
			bf.Reset()
			return backoff.WithMaxRetries(bf, maxAttempts)
		})
	case RetryPolicyConstant:
		return retry.PolicyFunc(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.ConstantBackoffInterval), maxAttempts)
		})
	}
	return nil
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Limit is the maximum number of requests per second.
	Limit int `mapstructure:"limit" yaml:"limit"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst" yaml:"burst"`

	// WaitTimeout is the maximum time to wait for a rate limiter slot. Zero means only the request context bounds it.
	WaitTimeout time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout"`
}

func (c *RateLimitConfig) set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("cannot be negative"))
	}
	if c.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("cannot be negative"))
	}
	return nil
}

// TransportOpts returns options for the rate limiting round tripper.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: c.WaitTimeout,
	}
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Mode is one of [all, failed, none].
	Mode string `mapstructure:"mode" yaml:"mode"`

	// SlowRequestThreshold makes requests that take longer to be logged in the "failed" mode too.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold"`
}

func (c *LoggerConfig) set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLoggerSlowRequestThreshold); err != nil {
		return err
	}
	if c.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	c.Mode, err = dp.GetStringFromSet(cfgKeyLoggerMode,
		[]string{string(LoggingModeAll), string(LoggingModeFailed), string(LoggingModeNone)}, true)
	return err
}

// TransportOpts returns options for the logging round tripper.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 LoggingMode(c.Mode),
		SlowRequestThreshold: c.SlowRequestThreshold,
	}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}
