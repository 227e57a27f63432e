/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type sinkDescs struct {
	connections *prometheus.Desc
	requests    *prometheus.Desc
	timeouts    *prometheus.Desc
	errors      *prometheus.Desc
	dropped     *prometheus.Desc
	rateLimited *prometheus.Desc
	cacheHits   *prometheus.Desc
	cacheStores *prometheus.Desc
	statuses    *prometheus.Desc
}

func newSinkDescs(namespace string) sinkDescs {
	newDesc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return sinkDescs{
		connections: newDesc("connections_total", "Number of accepted connections."),
		requests:    newDesc("requests_total", "Number of answered requests."),
		timeouts:    newDesc("timeouts_total", "Number of connections closed because of a read timeout."),
		errors:      newDesc("errors_total", "Number of connections terminated by an error."),
		dropped:     newDesc("dropped_connections_total", "Number of connections dropped because all workers were busy."),
		rateLimited: newDesc("rate_limited_requests_total", "Number of requests refused by the rate limiter."),
		cacheHits:   newDesc("cache_hits_total", "Number of requests served from the response cache."),
		cacheStores: newDesc("cache_stores_total", "Number of responses stored in the response cache."),
		statuses:    newDesc("responses_total", "Number of answered requests by status code.", labelStatusCode),
	}
}

var _ prometheus.Collector = (*Sink)(nil)

// Describe implements prometheus.Collector.
func (s *Sink) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.descs.connections
	ch <- s.descs.requests
	ch <- s.descs.timeouts
	ch <- s.descs.errors
	ch <- s.descs.dropped
	ch <- s.descs.rateLimited
	ch <- s.descs.cacheHits
	ch <- s.descs.cacheStores
	ch <- s.descs.statuses
	s.durations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (s *Sink) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	counter := func(desc *prometheus.Desc, val uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(val), labels...)
	}
	counter(s.descs.connections, snap.Connections)
	counter(s.descs.requests, snap.Requests)
	counter(s.descs.timeouts, snap.Timeouts)
	counter(s.descs.errors, snap.Errors)
	counter(s.descs.dropped, snap.Dropped)
	counter(s.descs.rateLimited, snap.RateLimited)
	counter(s.descs.cacheHits, snap.CacheHits)
	counter(s.descs.cacheStores, snap.CacheStores)
	for code, cnt := range snap.Statuses {
		counter(s.descs.statuses, cnt, strconv.Itoa(code))
	}
	s.durations.Collect(ch)
}

// MustRegister does registration of the sink in Prometheus and panics if any error occurs.
func (s *Sink) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(s)
}

// Unregister cancels registration of the sink in Prometheus.
func (s *Sink) Unregister(reg prometheus.Registerer) {
	reg.Unregister(s)
}
