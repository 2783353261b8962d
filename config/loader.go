/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const redactedValue = "<redacted>"

// Loader loads configuration values from data provider (with initializing default values before)
// and sets them in configuration objects.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a new configurations loader with an ability to read values from the environment variables.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new configurations' loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// Load sets configuration objects from defaults and environment variables only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromFile loads configuration values from file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader loads configuration values from reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// DumpYAML writes the effective settings as YAML. Values of keys that look like credentials are redacted.
func (l *Loader) DumpYAML(w io.Writer) error {
	src, ok := l.DataProvider.(interface{ AllSettings() map[string]interface{} })
	if !ok {
		return errors.New("data provider cannot list its settings")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redactSecrets(src.AllSettings())); err != nil {
		return err
	}
	return enc.Close()
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(dataProviderFor(cfg, l.DataProvider))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(dataProviderFor(cfg, l.DataProvider)); err != nil {
			return err
		}
	}
	return nil
}

func redactSecrets(settings map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		lk := strings.ToLower(k)
		switch typed := v.(type) {
		case map[string]interface{}:
			res[k] = redactSecrets(typed)
		default:
			if (strings.Contains(lk, "apikey") || strings.Contains(lk, "secret")) && v != "" {
				res[k] = redactedValue
				continue
			}
			res[k] = v
		}
	}
	return res
}
