/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-client admission control for wireserver connections.
//
// The default algorithm is a lock-free token bucket per key. Leaky bucket (GCRA) and
// sliding window algorithms are available as alternatives. Idle keys are swept so the
// key table does not grow with the number of distinct clients ever seen.
// Decisions can additionally be recorded to Redis for offline analysis.
package ratelimit
