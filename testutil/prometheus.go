/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertCounterValue asserts that the sum of all series of the named counter family equals wantValue.
func AssertCounterValue(t assert.TestingT, g prometheus.Gatherer, name string, wantValue float64) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	families, err := g.Gather()
	if !assert.NoError(t, err) {
		return false
	}
	var got float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got += m.GetCounter().GetValue()
		}
	}
	return assert.Equal(t, wantValue, got, "counter %s", name)
}

// RequireCounterValue calls AssertCounterValue and fail test immediately in case of error.
func RequireCounterValue(t require.TestingT, g prometheus.Gatherer, name string, wantValue float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertCounterValue(t, g, name, wantValue) {
		return
	}
	t.FailNow()
}

// AssertSamplesCountInHistogram asserts that the named histogram family has wantSamplesCount observations in total.
func AssertSamplesCountInHistogram(t assert.TestingT, g prometheus.Gatherer, name string, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	families, err := g.Gather()
	if !assert.NoError(t, err) {
		return false
	}
	var got uint64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got += m.GetHistogram().GetSampleCount()
		}
	}
	return assert.Equal(t, wantSamplesCount, int(got), "histogram %s", name)
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fail test immediately in case of error.
func RequireSamplesCountInHistogram(t require.TestingT, g prometheus.Gatherer, name string, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertSamplesCountInHistogram(t, g, name, wantSamplesCount) {
		return
	}
	t.FailNow()
}
