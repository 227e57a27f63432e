/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package metrics provides the operational counters of the server.
// Sink is safe for concurrent use, is exported to Prometheus as a collector,
// and periodically logs a one-line summary.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-wireserver/log"
)

// DefaultSummaryEvery is how many observed requests pass between two logged summaries.
const DefaultSummaryEvery = 1000

// DefaultRequestDurationBuckets is default buckets into which observations of serving requests are counted.
var DefaultRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15}

const (
	labelMethod     = "method"
	labelStatusCode = "status_code"
)

// methodLabelOther replaces methods outside of knownMethods in labels.
const methodLabelOther = "OTHER"

var knownMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "DELETE": {}, "PATCH": {}, "OPTIONS": {},
}

// methodLabel keeps the number of label values bounded whatever methods clients send.
func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return methodLabelOther
}

// SinkOpts represents options for Sink.
type SinkOpts struct {
	// Namespace is a namespace for Prometheus metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets into which observations of serving requests are counted.
	DurationBuckets []float64

	// SummaryEvery defines how often (in observed requests) the summary is logged.
	// Zero means DefaultSummaryEvery, negative disables summary logging.
	SummaryEvery int

	// Logger receives the periodic summary. Nil disables summary logging.
	Logger log.FieldLogger
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Connections uint64
	Requests    uint64
	Timeouts    uint64
	Errors      uint64
	Dropped     uint64
	RateLimited uint64
	CacheHits   uint64
	CacheStores uint64
	Statuses    map[int]uint64
}

// Sink accumulates counters. Counters are created once and never reset.
type Sink struct {
	connections atomic.Uint64
	requests    atomic.Uint64
	timeouts    atomic.Uint64
	errors      atomic.Uint64
	dropped     atomic.Uint64
	rateLimited atomic.Uint64
	cacheHits   atomic.Uint64
	cacheStores atomic.Uint64

	statusesMu sync.Mutex
	statuses   map[int]uint64

	durations    *prometheus.HistogramVec
	summaryEvery uint64
	logger       log.FieldLogger

	descs sinkDescs
}

// NewSink creates a new Sink with default options.
func NewSink() *Sink {
	return NewSinkWithOpts(SinkOpts{})
}

// NewSinkWithOpts is a more configurable version of creating Sink.
func NewSinkWithOpts(opts SinkOpts) *Sink {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultRequestDurationBuckets
	}
	var summaryEvery uint64
	switch {
	case opts.SummaryEvery == 0:
		summaryEvery = DefaultSummaryEvery
	case opts.SummaryEvery > 0:
		summaryEvery = uint64(opts.SummaryEvery)
	}
	if opts.Logger == nil {
		summaryEvery = 0
	}
	return &Sink{
		statuses: make(map[int]uint64),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "request_duration_seconds",
			Help:      "A histogram of the durations of served requests.",
			Buckets:   buckets,
		}, []string{labelMethod, labelStatusCode}),
		summaryEvery: summaryEvery,
		logger:       opts.Logger,
		descs:        newSinkDescs(opts.Namespace),
	}
}

// IncConnections counts an accepted connection.
func (s *Sink) IncConnections() { s.connections.Inc() }

// IncTimeouts counts a connection terminated by a read timeout.
func (s *Sink) IncTimeouts() { s.timeouts.Inc() }

// IncErrors counts a connection terminated by an error (parse failure, upstream failure, write failure).
func (s *Sink) IncErrors() { s.errors.Inc() }

// IncDropped counts a connection dropped because the worker pool was saturated.
func (s *Sink) IncDropped() { s.dropped.Inc() }

// IncRateLimited counts a request refused by the rate limiter.
func (s *Sink) IncRateLimited() { s.rateLimited.Inc() }

// IncCacheHits counts a request served from the response cache.
func (s *Sink) IncCacheHits() { s.cacheHits.Inc() }

// IncCacheStores counts a response stored in the response cache.
func (s *Sink) IncCacheStores() { s.cacheStores.Inc() }

// ObserveRequest records a successfully answered request.
// Every SummaryEvery requests the summary is logged.
func (s *Sink) ObserveRequest(method string, status int, latency time.Duration) {
	n := s.requests.Inc()

	s.statusesMu.Lock()
	s.statuses[status]++
	s.statusesMu.Unlock()

	s.durations.WithLabelValues(methodLabel(method), strconv.Itoa(status)).Observe(latency.Seconds())

	if s.summaryEvery != 0 && n%s.summaryEvery == 0 {
		s.logger.Info(s.Summary())
	}
}

// Snapshot returns a copy of all counters.
func (s *Sink) Snapshot() Snapshot {
	snap := Snapshot{
		Connections: s.connections.Load(),
		Requests:    s.requests.Load(),
		Timeouts:    s.timeouts.Load(),
		Errors:      s.errors.Load(),
		Dropped:     s.dropped.Load(),
		RateLimited: s.rateLimited.Load(),
		CacheHits:   s.cacheHits.Load(),
		CacheStores: s.cacheStores.Load(),
	}
	s.statusesMu.Lock()
	snap.Statuses = make(map[int]uint64, len(s.statuses))
	for code, cnt := range s.statuses {
		snap.Statuses[code] = cnt
	}
	s.statusesMu.Unlock()
	return snap
}

// Summary returns a one-line human-readable summary of all counters.
// Status codes are listed in ascending order.
func (s *Sink) Summary() string {
	return s.Snapshot().String()
}

// String formats the snapshot as a summary line.
func (snap Snapshot) String() string {
	codes := make([]int, 0, len(snap.Statuses))
	for code := range snap.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	statuses := make([]string, 0, len(codes))
	for _, code := range codes {
		statuses = append(statuses, fmt.Sprintf("%d=%d", code, snap.Statuses[code]))
	}
	return fmt.Sprintf("[metrics] conns=%d reqs=%d timeouts=%d errors=%d dropped=%d ratelimited=%d "+
		"cache(hit/store)=%d/%d statuses={%s}",
		snap.Connections, snap.Requests, snap.Timeouts, snap.Errors, snap.Dropped, snap.RateLimited,
		snap.CacheHits, snap.CacheStores, strings.Join(statuses, ", "))
}
