/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import "time"

// Access log messages.
const (
	AccessLogMessage     = "request served"
	AccessLogSlowMessage = "slow request served"
)

// AccessLogger writes one entry per answered request to the connection logger.
// Requests are logged at info level when enabled and at debug level otherwise.
// Requests slower than the threshold are always logged at warn level.
type AccessLogger struct {
	enabled       bool
	slowThreshold time.Duration
}

// NewAccessLogger creates an AccessLogger from the access section of the logging configuration.
func NewAccessLogger(cfg AccessConfig) *AccessLogger {
	return &AccessLogger{enabled: cfg.Enabled, slowThreshold: time.Duration(cfg.SlowThreshold)}
}

// Log writes the access entry. A nil AccessLogger logs at debug level only.
func (a *AccessLogger) Log(logger FieldLogger, status int, latency time.Duration) {
	fields := []Field{Status(status), DurationIn(latency, time.Millisecond)}
	switch {
	case a != nil && a.slowThreshold > 0 && latency >= a.slowThreshold:
		logger.Warn(AccessLogSlowMessage, append(fields, Duration("threshold", a.slowThreshold))...)
	case a != nil && a.enabled:
		logger.Info(AccessLogMessage, fields...)
	default:
		logger.Debug(AccessLogMessage, fields...)
	}
}
