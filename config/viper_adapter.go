/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is DataProvider implementation that uses viper library under the hood.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes every key resolvable from an environment variable.
// With the "wireserver" prefix, "server.limits.maxBodySize" is looked up as WIRESERVER_SERVER_LIMITS_MAXBODYSIZE.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// Set registers an override. Command line flags of wireserver are applied this way.
func (va *ViperAdapter) Set(key string, value interface{}) { va.viper.Set(key, value) }

// SetDefault sets the value used when no source has the key.
func (va *ViperAdapter) SetDefault(key string, value interface{}) { va.viper.SetDefault(key, value) }

// IsSet checks to see if the key has been set in any of the data locations.
func (va *ViperAdapter) IsSet(key string) bool { return va.viper.IsSet(key) }

// Get retrieves any value given the key to use.
func (va *ViperAdapter) Get(key string) interface{} { return va.viper.Get(key) }

// castKey converts the raw value of the key and wraps a conversion error with the key.
func castKey[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	v, err := castFn(va.viper.Get(key))
	return v, WrapKeyErrIfNeeded(key, err)
}

// GetBool retrieves the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) { return castKey(va, key, cast.ToBoolE) }

// GetInt retrieves the value of the key as an int.
func (va *ViperAdapter) GetInt(key string) (int, error) { return castKey(va, key, cast.ToIntE) }

// GetFloat64 retrieves the value of the key as a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) { return castKey(va, key, cast.ToFloat64E) }

// GetString retrieves the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) { return castKey(va, key, cast.ToStringE) }

// GetStringFromSet retrieves an enumerated value such as a dispatch mode or a log level.
// The matched element of the set is returned, so ignoreCase yields the canonical spelling.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return s, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice retrieves a list such as cache.excludedPaths.
// A comma-separated string, which is what an environment variable yields, is split and trimmed.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castKey(va, key, func(val interface{}) ([]string, error) {
		s, ok := val.(string)
		if !ok {
			if val == nil {
				return nil, nil
			}
			return cast.ToStringSliceE(val)
		}
		var res []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				res = append(res, part)
			}
		}
		return res, nil
	})
}

// GetDuration retrieves a timeout or an interval ("15s", "1m30s" or nanoseconds).
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castKey(va, key, func(val interface{}) (time.Duration, error) {
		switch v := val.(type) {
		case nil:
			return 0, nil
		case TimeDuration:
			return time.Duration(v), nil
		}
		return cast.ToDurationE(val)
	})
}

// GetByteSize retrieves a size limit ("64K", "512KB", "1Mi" or a number of bytes).
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	return castKey(va, key, func(val interface{}) (ByteSize, error) {
		switch v := val.(type) {
		case nil:
			return 0, nil
		case ByteSize:
			return v, nil
		case string:
			var bs ByteSize
			err := bs.UnmarshalText([]byte(v))
			return bs, err
		case float32, float64:
			return ByteSize(uint64(cast.ToFloat64(v))), nil
		}
		num, err := cast.ToInt64E(val)
		if err != nil {
			return 0, fmt.Errorf("unsupported type for byte size: %T", val)
		}
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	})
}

// A DecoderConfigOption configures mapstructure decoding in UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WithCustomTypesDecodeHook makes mapstructure decode ByteSize and TimeDuration
// fields from their human-readable string forms ("512KB", "30s") and comma-separated lists.
func WithCustomTypesDecodeHook() DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// UnmarshalKey decodes the subtree of the key into rawVal.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		options = append(options, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
