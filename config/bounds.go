/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Range violations reported by the bounded getters, wrapped with the full key.
var (
	ErrShouldBePositive = errors.New("should be positive")
	ErrCannotBeNegative = errors.New("cannot be negative")
	ErrShouldBeSet      = errors.New("should be set")
)

// GetPositiveInt reads an integer greater than zero (pools, cache capacity, rate).
func GetPositiveInt(dp DataProvider, key string) (int, error) {
	v, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("%w, got %d", ErrShouldBePositive, v))
	}
	return v, nil
}

// GetNonNegativeInt reads an integer where zero means "unset" or "none".
func GetNonNegativeInt(dp DataProvider, key string) (int, error) {
	v, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("%w, got %d", ErrCannotBeNegative, v))
	}
	return v, nil
}

// GetNonNegativeFloat64 reads a float where zero disables the feature.
func GetNonNegativeFloat64(dp DataProvider, key string) (float64, error) {
	v, err := dp.GetFloat64(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dp.WrapKeyErr(key, ErrCannotBeNegative)
	}
	return v, nil
}

// GetPositiveDuration reads a timeout or an interval greater than zero.
func GetPositiveDuration(dp DataProvider, key string) (time.Duration, error) {
	v, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, dp.WrapKeyErr(key, ErrShouldBePositive)
	}
	return v, nil
}

// GetPositiveByteSize reads a size limit greater than zero.
func GetPositiveByteSize(dp DataProvider, key string) (ByteSize, error) {
	v, err := dp.GetByteSize(key)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, dp.WrapKeyErr(key, ErrShouldBePositive)
	}
	return v, nil
}

// GetHostPort reads a listen or dial address in "host:port" form. The host may be empty (":8080").
// An empty value is accepted only when required is false.
func GetHostPort(dp DataProvider, key string, required bool) (string, error) {
	v, err := dp.GetString(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		if required {
			return "", dp.WrapKeyErr(key, ErrShouldBeSet)
		}
		return "", nil
	}
	if _, _, err = net.SplitHostPort(v); err != nil {
		return "", dp.WrapKeyErr(key, fmt.Errorf("should be host:port: %w", err))
	}
	return v, nil
}
