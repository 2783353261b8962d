/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/httpserver/middleware"
)

const cfgDefaultKeyPrefix = "server"

// PortEnvVar is the environment variable with the listening port, kept for compatibility with PaaS deployments.
const PortEnvVar = "PORT"

const (
	cfgKeyAddress                 = "address"
	cfgKeyTLSEnabled              = "tls.enabled"
	cfgKeyTLSCert                 = "tls.cert"
	cfgKeyTLSKey                  = "tls.key"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyTimeoutsIdle            = "timeouts.idle"
	cfgKeyTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyCORSEnabled             = "cors.enabled"
	cfgKeyCORSAllowedOrigins      = "cors.allowedOrigins"
	cfgKeyCORSAllowedMethods      = "cors.allowedMethods"
	cfgKeyCORSAllowedHeaders      = "cors.allowedHeaders"
	cfgKeyCORSExposedHeaders      = "cors.exposedHeaders"
	cfgKeyCORSAllowCredentials    = "cors.allowCredentials"
	cfgKeyCORSMaxAge              = "cors.maxAge"
	cfgKeyRateLimitEnabled        = "rateLimit.enabled"
	cfgKeyRateLimitAlg            = "rateLimit.alg"
	cfgKeyRateLimitCount          = "rateLimit.count"
	cfgKeyRateLimitDuration       = "rateLimit.duration"
	cfgKeyRateLimitBurst          = "rateLimit.burst"
	cfgKeyRateLimitMaxKeys        = "rateLimit.maxKeys"
	cfgKeyRateLimitDryRun         = "rateLimit.dryRun"
)

// Default values.
const (
	DefaultAddress = ":10000"

	// Analysis requests may wait for the downstream for almost two minutes,
	// so the write and shutdown timeouts are longer than usual.
	DefaultTimeoutsWrite      = 150 * time.Second
	DefaultTimeoutsRead       = 15 * time.Second
	DefaultTimeoutsReadHeader = 10 * time.Second
	DefaultTimeoutsIdle       = time.Minute
	DefaultTimeoutsShutdown   = 2 * time.Minute

	DefaultMaxBodySize          = "1M"
	DefaultMaxBodySizeBytes     = 1024 * 1024
	DefaultSlowRequestThreshold = 5 * time.Second

	DefaultCORSMaxAge = 10 * time.Minute

	DefaultRateLimitAlg      = middleware.RateLimitAlgLeakyBucket
	DefaultRateLimitCount    = 60
	DefaultRateLimitDuration = time.Minute
	DefaultRateLimitBurst    = 10
)

// Default CORS values. Any origin may call the API.
var (
	DefaultCORSAllowedOrigins = []string{"*"}
	DefaultCORSAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	DefaultCORSAllowedHeaders = []string{"Content-Type", "X-Request-ID"}
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address   string          `mapstructure:"address" yaml:"address"`
	TLS       TLSConfig       `mapstructure:"tls" yaml:"tls"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address: DefaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      DefaultTimeoutsWrite,
			Read:       DefaultTimeoutsRead,
			ReadHeader: DefaultTimeoutsReadHeader,
			Idle:       DefaultTimeoutsIdle,
			Shutdown:   DefaultTimeoutsShutdown,
		},
		Limits: LimitsConfig{MaxBodySizeBytes: DefaultMaxBodySizeBytes},
		Log:    LogConfig{SlowRequestThreshold: DefaultSlowRequestThreshold},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: DefaultCORSAllowedOrigins,
			AllowedMethods: DefaultCORSAllowedMethods,
			AllowedHeaders: DefaultCORSAllowedHeaders,
			MaxAge:         DefaultCORSMaxAge,
		},
		RateLimit: RateLimitConfig{
			Alg:      DefaultRateLimitAlg,
			Count:    DefaultRateLimitCount,
			Duration: DefaultRateLimitDuration,
			Burst:    DefaultRateLimitBurst,
			MaxKeys:  middleware.DefaultRateLimitMaxKeys,
		},
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

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)

	dp.SetDefault(cfgKeyTimeoutsWrite, DefaultTimeoutsWrite)
	dp.SetDefault(cfgKeyTimeoutsRead, DefaultTimeoutsRead)
	dp.SetDefault(cfgKeyTimeoutsReadHeader, DefaultTimeoutsReadHeader)
	dp.SetDefault(cfgKeyTimeoutsIdle, DefaultTimeoutsIdle)
	dp.SetDefault(cfgKeyTimeoutsShutdown, DefaultTimeoutsShutdown)

	dp.SetDefault(cfgKeyLimitsMaxBodySize, DefaultMaxBodySize)

	dp.SetDefault(cfgKeyLogRequestStart, false)
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold)

	dp.SetDefault(cfgKeyCORSEnabled, true)
	dp.SetDefault(cfgKeyCORSAllowedOrigins, DefaultCORSAllowedOrigins)
	dp.SetDefault(cfgKeyCORSAllowedMethods, DefaultCORSAllowedMethods)
	dp.SetDefault(cfgKeyCORSAllowedHeaders, DefaultCORSAllowedHeaders)
	dp.SetDefault(cfgKeyCORSAllowCredentials, false)
	dp.SetDefault(cfgKeyCORSMaxAge, DefaultCORSMaxAge)

	dp.SetDefault(cfgKeyRateLimitEnabled, false)
	dp.SetDefault(cfgKeyRateLimitAlg, string(DefaultRateLimitAlg))
	dp.SetDefault(cfgKeyRateLimitCount, DefaultRateLimitCount)
	dp.SetDefault(cfgKeyRateLimitDuration, DefaultRateLimitDuration)
	dp.SetDefault(cfgKeyRateLimitBurst, DefaultRateLimitBurst)
	dp.SetDefault(cfgKeyRateLimitMaxKeys, middleware.DefaultRateLimitMaxKeys)
	dp.SetDefault(cfgKeyRateLimitDryRun, false)
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if err = dp.BindEnv(cfgKeyAddress, PortEnvVar); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}
	// A bare port number comes from the PORT variable.
	if _, convErr := strconv.Atoi(c.Address); convErr == nil {
		c.Address = ":" + c.Address
	}

	if err = c.TLS.set(dp); err != nil {
		return err
	}
	if err = c.Timeouts.set(dp); err != nil {
		return err
	}
	if err = c.Limits.set(dp); err != nil {
		return err
	}
	if err = c.Log.set(dp); err != nil {
		return err
	}
	if err = c.CORS.set(dp); err != nil {
		return err
	}
	return c.RateLimit.set(dp)
}

// TLSConfig contains configuration parameters needed to serve HTTPS.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert"`
	Key         string `mapstructure:"key" yaml:"key"`
}

func (s *TLSConfig) set(dp config.DataProvider) error {
	var err error
	if s.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if s.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if s.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if s.Enabled && (s.Certificate == "" || s.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      time.Duration `mapstructure:"write" yaml:"write"`
	Read       time.Duration `mapstructure:"read" yaml:"read"`
	ReadHeader time.Duration `mapstructure:"readHeader" yaml:"readHeader"`
	Idle       time.Duration `mapstructure:"idle" yaml:"idle"`
	Shutdown   time.Duration `mapstructure:"shutdown" yaml:"shutdown"`
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyTimeoutsWrite, &t.Write},
		{cfgKeyTimeoutsRead, &t.Read},
		{cfgKeyTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyTimeoutsIdle, &t.Idle},
		{cfgKeyTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
		*item.dst = dur
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body in bytes. Zero disables the limit.
	MaxBodySizeBytes uint64 `mapstructure:"maxBodySize" yaml:"maxBodySize"`
}

func (l *LimitsConfig) set(dp config.DataProvider) (err error) {
	l.MaxBodySizeBytes, err = dp.GetSizeInBytes(cfgKeyLimitsMaxBodySize)
	return err
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart         bool          `mapstructure:"requestStart" yaml:"requestStart"`
	RequestHeaders       []string      `mapstructure:"requestHeaders" yaml:"requestHeaders"`
	ExcludedEndpoints    []string      `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold"`
}

func (l *LogConfig) set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if l.RequestHeaders, err = dp.GetStringSlice(cfgKeyLogRequestHeaders); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoints); err != nil {
		return err
	}
	if l.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	return nil
}

// CORSConfig represents a set of configuration parameters for cross-origin requests.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
	AllowedMethods   []string      `mapstructure:"allowedMethods" yaml:"allowedMethods"`
	AllowedHeaders   []string      `mapstructure:"allowedHeaders" yaml:"allowedHeaders"`
	ExposedHeaders   []string      `mapstructure:"exposedHeaders" yaml:"exposedHeaders"`
	AllowCredentials bool          `mapstructure:"allowCredentials" yaml:"allowCredentials"`
	MaxAge           time.Duration `mapstructure:"maxAge" yaml:"maxAge"`
}

func (c *CORSConfig) set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyCORSEnabled); err != nil {
		return err
	}
	if c.AllowedOrigins, err = dp.GetStringSlice(cfgKeyCORSAllowedOrigins); err != nil {
		return err
	}
	if c.Enabled && len(c.AllowedOrigins) == 0 {
		return dp.WrapKeyErr(cfgKeyCORSAllowedOrigins, fmt.Errorf("cannot be empty when CORS is enabled"))
	}
	if c.AllowedMethods, err = dp.GetStringSlice(cfgKeyCORSAllowedMethods); err != nil {
		return err
	}
	if c.AllowedHeaders, err = dp.GetStringSlice(cfgKeyCORSAllowedHeaders); err != nil {
		return err
	}
	if c.ExposedHeaders, err = dp.GetStringSlice(cfgKeyCORSExposedHeaders); err != nil {
		return err
	}
	if c.AllowCredentials, err = dp.GetBool(cfgKeyCORSAllowCredentials); err != nil {
		return err
	}
	if c.MaxAge, err = dp.GetDuration(cfgKeyCORSMaxAge); err != nil {
		return err
	}
	if c.MaxAge < 0 {
		return dp.WrapKeyErr(cfgKeyCORSMaxAge, fmt.Errorf("cannot be negative"))
	}
	return nil
}

// Opts converts the configuration into the options of the CORS middleware.
func (c *CORSConfig) Opts() middleware.CORSOpts {
	return middleware.CORSOpts{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAgeSeconds:    int(c.MaxAge / time.Second),
	}
}

// RateLimitConfig represents a set of configuration parameters for the inbound per-client rate limit.
type RateLimitConfig struct {
	Enabled  bool                    `mapstructure:"enabled" yaml:"enabled"`
	Alg      middleware.RateLimitAlg `mapstructure:"alg" yaml:"alg"`
	Count    int                     `mapstructure:"count" yaml:"count"`
	Duration time.Duration           `mapstructure:"duration" yaml:"duration"`
	Burst    int                     `mapstructure:"burst" yaml:"burst"`
	MaxKeys  int                     `mapstructure:"maxKeys" yaml:"maxKeys"`
	DryRun   bool                    `mapstructure:"dryRun" yaml:"dryRun"`
}

func (r *RateLimitConfig) set(dp config.DataProvider) error {
	var err error
	if r.Enabled, err = dp.GetBool(cfgKeyRateLimitEnabled); err != nil {
		return err
	}

	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyRateLimitAlg, []string{
		string(middleware.RateLimitAlgLeakyBucket), string(middleware.RateLimitAlgSlidingWindow),
	}, true); err != nil {
		return err
	}
	r.Alg = middleware.RateLimitAlg(alg)

	if r.Count, err = dp.GetInt(cfgKeyRateLimitCount); err != nil {
		return err
	}
	if r.Count <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitCount, fmt.Errorf("must be positive"))
	}
	if r.Duration, err = dp.GetDuration(cfgKeyRateLimitDuration); err != nil {
		return err
	}
	if r.Duration <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitDuration, fmt.Errorf("must be positive"))
	}
	if r.Burst, err = dp.GetInt(cfgKeyRateLimitBurst); err != nil {
		return err
	}
	if r.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitBurst, fmt.Errorf("cannot be negative"))
	}
	if r.MaxKeys, err = dp.GetInt(cfgKeyRateLimitMaxKeys); err != nil {
		return err
	}
	if r.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxKeys, fmt.Errorf("cannot be negative"))
	}
	if r.DryRun, err = dp.GetBool(cfgKeyRateLimitDryRun); err != nil {
		return err
	}
	return nil
}
