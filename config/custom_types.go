/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size limit such as server.limits.maxBodySize.
// It decodes from a number of bytes and from human-readable strings ("64K", "512KB", "1Mi").
type ByteSize uint64

// TimeDuration is a timeout or an interval such as server.timeouts.read.
// It decodes from a number of nanoseconds and from strings ("15s", "1m30s").
type TimeDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*ByteSize)(nil)
	_ encoding.TextUnmarshaler = (*TimeDuration)(nil)
)

// UnmarshalText implements encoding.TextUnmarshaler, which is also used by mapstructure.TextUnmarshallerHookFunc.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, isNum, err := parseNonNegativeInt(s); isNum {
		*b = ByteSize(num)
		return err
	}
	// Power-of-two suffixes of Kubernetes quantities ("Ki", "Mi") mean the same as bytefmt's "K", "M".
	if len(s) > 2 && s[len(s)-1] == 'i' && strings.ContainsRune("KMGTPE", rune(s[len(s)-2])) {
		s = s[:len(s)-1]
	}
	num, err := bytefmt.ToBytes(s)
	if err != nil {
		return fmt.Errorf("invalid byte size format (%s): %w", text, err)
	}
	*b = ByteSize(num)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error { return unmarshalJSONText(data, b) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error { return unmarshalYAMLText(value, b, "byte size") }

func (b ByteSize) String() string { return bytefmt.ByteSize(uint64(b)) }

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (interface{}, error) { return b.String(), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, isNum, err := parseNonNegativeInt(s); isNum {
		*d = TimeDuration(num)
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", text, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) error { return unmarshalJSONText(data, d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalYAMLText(value, d, "time duration")
}

func (d TimeDuration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d TimeDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// MarshalYAML implements yaml.Marshaler.
func (d TimeDuration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// parseNonNegativeInt reports isNum for any integer literal; negative ones yield an error.
func parseNonNegativeInt(s string) (num int64, isNum bool, err error) {
	num, parseErr := strconv.ParseInt(s, 10, 64)
	if parseErr != nil {
		return 0, false, nil
	}
	if num < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return num, true, nil
}

// unmarshalJSONText accepts both quoted and bare JSON values.
func unmarshalJSONText(data []byte, u encoding.TextUnmarshaler) error {
	return u.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

func unmarshalYAMLText(value *yaml.Node, u encoding.TextUnmarshaler, what string) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid %s format: %v", what, value)
	}
	return u.UnmarshalText([]byte(raw))
}
