/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// DataType is a format of configuration data.
type DataType string

// Supported formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataTypeFromPath picks the format by the file extension. Anything but ".json" is read as YAML.
func DataTypeFromPath(path string) DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DataTypeJSON
	}
	return DataTypeYAML
}

// DataProvider is the source of configuration values. Keys are dotted paths ("server.limits.maxBodySize").
// Values are resolved in order: Set overrides, environment variables, file data, defaults.
type DataProvider interface {
	// Sources.
	UseEnvVars(prefix string)
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error
	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	// Typed getters. Errors are wrapped with the key.
	IsSet(key string) bool
	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)

	// UnmarshalKey decodes a whole subtree, e.g. a list of static routes, into rawVal.
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}
