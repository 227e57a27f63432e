/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader fills configuration sections from a DataProvider.
// Every section first registers its defaults, then all sections read and validate their values.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a loader backed by viper that also reads environment variables with the prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new configurations' loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// SetOverrides registers values keyed by full keys ("server.address"). They win over every other source.
func (l *Loader) SetOverrides(overrides map[string]interface{}) {
	for key, val := range overrides {
		l.DataProvider.Set(key, val)
	}
}

// LoadFromPath loads the file at path, choosing its format by extension, and fills the sections.
// An empty path loads defaults and environment variables only.
func (l *Loader) LoadFromPath(path string, cfg Config, cfgs ...Config) error {
	if path == "" {
		return l.Load(cfg, cfgs...)
	}
	return l.LoadFromFile(path, DataTypeFromPath(path), cfg, cfgs...)
}

// LoadFromFile loads configuration values from file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// LoadFromReader loads configuration values from reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// Load fills the sections from the data already in the provider.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	sections := append([]Config{cfg}, cfgs...)
	for _, section := range sections {
		section.SetProviderDefaults(l.sectionProvider(section))
	}
	for _, section := range sections {
		if err := section.Set(l.sectionProvider(section)); err != nil {
			return err
		}
	}
	return nil
}

// sectionProvider scopes keys of a section with a prefix under its KeyPrefix.
func (l *Loader) sectionProvider(cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(l.DataProvider, kp.KeyPrefix())
	}
	return l.DataProvider
}
