/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"fmt"

	"github.com/acronis/go-prooflens/config"
)

const cfgDefaultKeyPrefix = "cache"

const cfgKeyMaxEntries = "maxEntries"

// Config represents a set of configuration parameters for the result cache.
type Config struct {
	// MaxEntries bounds the cache with LRU eviction. 0 means unbounded.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the cache in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxEntries, 0)
}

// Set sets cache configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries < 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("cannot be negative"))
	}
	return nil
}
