/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"fmt"
	"time"

	"github.com/acronis/go-prooflens/config"
)

const cfgDefaultKeyPrefix = "scheduler"

const (
	cfgKeyQueueCapacity    = "queueCapacity"
	cfgKeyBaseInterval     = "baseInterval"
	cfgKeyMinInterval      = "minInterval"
	cfgKeyDecayFactor      = "decayFactor"
	cfgKeyQuotaInterval    = "quotaInterval"
	cfgKeyQuotaCooldown    = "quotaCooldown"
	cfgKeyWaitTimeout      = "waitTimeout"
	cfgKeyMaxPriority      = "maxPriority"
	cfgKeyCoalesce         = "coalesce"
	cfgKeyAbandonOnTimeout = "abandonOnTimeout"
	cfgKeyStatsInterval    = "statsInterval"
)

// Default values.
const (
	DefaultQueueCapacity = 15
	DefaultBaseInterval  = 4500 * time.Millisecond
	DefaultMinInterval   = 0
	DefaultDecayFactor   = 0.8
	DefaultQuotaInterval = 10 * time.Second
	DefaultQuotaCooldown = 10 * time.Second
	DefaultWaitTimeout   = 110 * time.Second
	DefaultMaxPriority   = 9
	DefaultStatsInterval = time.Minute
)

// Config represents a set of configuration parameters for the scheduler.
type Config struct {
	QueueCapacity    int           `mapstructure:"queueCapacity" yaml:"queueCapacity"`
	BaseInterval     time.Duration `mapstructure:"baseInterval" yaml:"baseInterval"`
	MinInterval      time.Duration `mapstructure:"minInterval" yaml:"minInterval"`
	DecayFactor      float64       `mapstructure:"decayFactor" yaml:"decayFactor"`
	QuotaInterval    time.Duration `mapstructure:"quotaInterval" yaml:"quotaInterval"`
	QuotaCooldown    time.Duration `mapstructure:"quotaCooldown" yaml:"quotaCooldown"`
	WaitTimeout      time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout"`
	MaxPriority      int           `mapstructure:"maxPriority" yaml:"maxPriority"`
	Coalesce         bool          `mapstructure:"coalesce" yaml:"coalesce"`
	AbandonOnTimeout bool          `mapstructure:"abandonOnTimeout" yaml:"abandonOnTimeout"`
	StatsInterval    time.Duration `mapstructure:"statsInterval" yaml:"statsInterval"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig returns the configuration with all default values set.
func NewDefaultConfig() *Config {
	return &Config{
		QueueCapacity:    DefaultQueueCapacity,
		BaseInterval:     DefaultBaseInterval,
		MinInterval:      DefaultMinInterval,
		DecayFactor:      DefaultDecayFactor,
		QuotaInterval:    DefaultQuotaInterval,
		QuotaCooldown:    DefaultQuotaCooldown,
		WaitTimeout:      DefaultWaitTimeout,
		MaxPriority:      DefaultMaxPriority,
		Coalesce:         true,
		AbandonOnTimeout: true,
		StatsInterval:    DefaultStatsInterval,
		keyPrefix:        cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the scheduler in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQueueCapacity, DefaultQueueCapacity)
	dp.SetDefault(cfgKeyBaseInterval, DefaultBaseInterval.String())
	dp.SetDefault(cfgKeyMinInterval, time.Duration(DefaultMinInterval).String())
	dp.SetDefault(cfgKeyDecayFactor, DefaultDecayFactor)
	dp.SetDefault(cfgKeyQuotaInterval, DefaultQuotaInterval.String())
	dp.SetDefault(cfgKeyQuotaCooldown, DefaultQuotaCooldown.String())
	dp.SetDefault(cfgKeyWaitTimeout, DefaultWaitTimeout.String())
	dp.SetDefault(cfgKeyMaxPriority, DefaultMaxPriority)
	dp.SetDefault(cfgKeyCoalesce, true)
	dp.SetDefault(cfgKeyAbandonOnTimeout, true)
	dp.SetDefault(cfgKeyStatsInterval, DefaultStatsInterval.String())
}

// Set sets scheduler configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.QueueCapacity, err = dp.GetInt(cfgKeyQueueCapacity); err != nil {
		return err
	}
	if c.QueueCapacity <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueCapacity, fmt.Errorf("must be positive"))
	}

	if err = c.setIntervals(dp); err != nil {
		return err
	}

	if c.DecayFactor, err = dp.GetFloat64(cfgKeyDecayFactor); err != nil {
		return err
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		return dp.WrapKeyErr(cfgKeyDecayFactor, fmt.Errorf("must be in (0, 1)"))
	}

	if c.WaitTimeout, err = dp.GetDuration(cfgKeyWaitTimeout); err != nil {
		return err
	}
	if c.WaitTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyWaitTimeout, fmt.Errorf("must be positive"))
	}

	if c.MaxPriority, err = dp.GetInt(cfgKeyMaxPriority); err != nil {
		return err
	}
	if c.MaxPriority < 0 {
		return dp.WrapKeyErr(cfgKeyMaxPriority, fmt.Errorf("cannot be negative"))
	}

	if c.Coalesce, err = dp.GetBool(cfgKeyCoalesce); err != nil {
		return err
	}
	if c.AbandonOnTimeout, err = dp.GetBool(cfgKeyAbandonOnTimeout); err != nil {
		return err
	}

	if c.StatsInterval, err = dp.GetDuration(cfgKeyStatsInterval); err != nil {
		return err
	}
	if c.StatsInterval < 0 {
		return dp.WrapKeyErr(cfgKeyStatsInterval, fmt.Errorf("cannot be negative"))
	}
	return nil
}

func (c *Config) setIntervals(dp config.DataProvider) (err error) {
	for _, item := range []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyBaseInterval, &c.BaseInterval},
		{cfgKeyMinInterval, &c.MinInterval},
		{cfgKeyQuotaInterval, &c.QuotaInterval},
		{cfgKeyQuotaCooldown, &c.QuotaCooldown},
	} {
		if *item.dst, err = dp.GetDuration(item.key); err != nil {
			return err
		}
		if *item.dst < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
	}
	return nil
}

func (c *Config) governorOpts(now func() time.Time) GovernorOpts {
	return GovernorOpts{
		BaseInterval:  c.BaseInterval,
		MinInterval:   c.MinInterval,
		DecayFactor:   c.DecayFactor,
		QuotaInterval: c.QuotaInterval,
		QuotaCooldown: c.QuotaCooldown,
		Now:           now,
	}
}
