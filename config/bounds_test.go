/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, yamlData string) DataProvider {
	t.Helper()
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(yamlData), DataTypeYAML))
	return NewKeyPrefixedDataProvider(va, "server")
}

func TestBoundedGetters(t *testing.T) {
	dp := newTestProvider(t, `
server:
  workers: 8
  zero: 0
  negative: -3
  rate: 0.5
  timeout: 2s
  zeroTimeout: 0s
  maxBody: 64K
  zeroSize: 0
  address: ":8080"
  origin: "origin.test"
`)

	workers, err := GetPositiveInt(dp, "workers")
	require.NoError(t, err)
	require.Equal(t, 8, workers)
	_, err = GetPositiveInt(dp, "zero")
	require.ErrorIs(t, err, ErrShouldBePositive)
	require.EqualError(t, err, "server.zero: should be positive, got 0")

	zero, err := GetNonNegativeInt(dp, "zero")
	require.NoError(t, err)
	require.Zero(t, zero)
	_, err = GetNonNegativeInt(dp, "negative")
	require.ErrorIs(t, err, ErrCannotBeNegative)

	rate, err := GetNonNegativeFloat64(dp, "rate")
	require.NoError(t, err)
	require.Equal(t, 0.5, rate)
	_, err = GetNonNegativeFloat64(dp, "negative")
	require.EqualError(t, err, "server.negative: cannot be negative")

	timeout, err := GetPositiveDuration(dp, "timeout")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, timeout)
	_, err = GetPositiveDuration(dp, "zeroTimeout")
	require.EqualError(t, err, "server.zeroTimeout: should be positive")

	size, err := GetPositiveByteSize(dp, "maxBody")
	require.NoError(t, err)
	require.Equal(t, ByteSize(64*1024), size)
	_, err = GetPositiveByteSize(dp, "zeroSize")
	require.ErrorIs(t, err, ErrShouldBePositive)

	addr, err := GetHostPort(dp, "address", true)
	require.NoError(t, err)
	require.Equal(t, ":8080", addr)
	_, err = GetHostPort(dp, "origin", false)
	require.ErrorContains(t, err, "server.origin: should be host:port")
	_, err = GetHostPort(dp, "unset", true)
	require.EqualError(t, err, "server.unset: should be set")
	empty, err := GetHostPort(dp, "unset", false)
	require.NoError(t, err)
	require.Empty(t, empty)
}
