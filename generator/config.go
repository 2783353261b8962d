/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package generator

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/httpclient"
)

const cfgDefaultKeyPrefix = "downstream"

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderEcho   = "echo"
)

// Default values.
const (
	DefaultProvider = ProviderGemini
	DefaultBaseURL  = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-2.5-flash"
)

// APIKeyEnvVar is the environment variable the credential is read from in addition to the config.
const APIKeyEnvVar = "GOOGLE_API_KEY"

const (
	cfgKeyProvider    = "provider"
	cfgKeyAPIKey      = "apiKey"
	cfgKeyBaseURL     = "baseURL"
	cfgKeyModel       = "model"
	cfgKeyGeneration  = "generation"
	cfgKeyEchoLatency = "echoLatency"
)

// GenerationConfig holds the sampling parameters sent with every request. Zero values are omitted.
type GenerationConfig struct {
	Temperature     *float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature,omitempty"`
	MaxOutputTokens int      `mapstructure:"maxOutputTokens" yaml:"maxOutputTokens" json:"maxOutputTokens,omitempty"`
	TopP            *float64 `mapstructure:"topP" yaml:"topP" json:"topP,omitempty"`
	TopK            int      `mapstructure:"topK" yaml:"topK" json:"topK,omitempty"`
}

// Config represents a set of configuration parameters for the downstream generator.
type Config struct {
	Provider    string           `mapstructure:"provider" yaml:"provider"`
	APIKey      string           `mapstructure:"apiKey" yaml:"apiKey"`
	BaseURL     string           `mapstructure:"baseURL" yaml:"baseURL"`
	Model       string           `mapstructure:"model" yaml:"model"`
	Generation  GenerationConfig `mapstructure:"generation" yaml:"generation"`
	EchoLatency time.Duration    `mapstructure:"echoLatency" yaml:"echoLatency"`

	// Client configures the HTTP client (timeout, retries, rate limits, logging, metrics).
	// Its keys are at the same level as the keys above.
	Client httpclient.Config `mapstructure:",squash" yaml:",inline"`

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
		Provider:  DefaultProvider,
		BaseURL:   DefaultBaseURL,
		Model:     DefaultModel,
		Client:    *httpclient.NewDefaultConfig(),
		keyPrefix: cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the generator in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyProvider, DefaultProvider)
	dp.SetDefault(cfgKeyAPIKey, "")
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeyModel, DefaultModel)
	dp.SetDefault(cfgKeyEchoLatency, "0s")
	c.Client.SetProviderDefaults(dp)
}

// Set sets generator configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Provider, err = dp.GetStringFromSet(cfgKeyProvider, []string{ProviderGemini, ProviderEcho}, true); err != nil {
		return err
	}

	if err = dp.BindEnv(cfgKeyAPIKey, APIKeyEnvVar); err != nil {
		return err
	}
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if u, parseErr := url.Parse(c.BaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("must be an absolute URL"))
	}

	if c.Model, err = dp.GetString(cfgKeyModel); err != nil {
		return err
	}
	if c.Model == "" {
		return dp.WrapKeyErr(cfgKeyModel, fmt.Errorf("cannot be empty"))
	}

	c.Generation = GenerationConfig{}
	if err = dp.UnmarshalKey(cfgKeyGeneration, &c.Generation); err != nil {
		return err
	}
	if c.Generation.MaxOutputTokens < 0 {
		return dp.WrapKeyErr(cfgKeyGeneration+".maxOutputTokens", fmt.Errorf("cannot be negative"))
	}
	if c.Generation.TopK < 0 {
		return dp.WrapKeyErr(cfgKeyGeneration+".topK", fmt.Errorf("cannot be negative"))
	}

	if c.EchoLatency, err = dp.GetDuration(cfgKeyEchoLatency); err != nil {
		return err
	}
	if c.EchoLatency < 0 {
		return dp.WrapKeyErr(cfgKeyEchoLatency, fmt.Errorf("cannot be negative"))
	}

	return c.Client.Set(dp)
}
