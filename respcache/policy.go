/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"github.com/vasayxtx/go-glob"
)

// DefaultMaxEntrySize is the largest body that is cached.
const DefaultMaxEntrySize = 512 * 1024

// Policy decides which requests may be served from the cache and which responses may be stored.
type Policy struct {
	maxEntrySize int
	excluded     []func(string) bool
}

// NewPolicy creates a Policy. Paths matching any of the excluded glob patterns ("/admin/*") are never cached.
func NewPolicy(maxEntrySize int, excludedPaths []string) *Policy {
	if maxEntrySize <= 0 {
		maxEntrySize = DefaultMaxEntrySize
	}
	p := &Policy{maxEntrySize: maxEntrySize}
	for _, pattern := range excludedPaths {
		p.excluded = append(p.excluded, glob.Compile(pattern))
	}
	return p
}

// Cacheable reports whether a request may be looked up in and stored to the cache.
func (p *Policy) Cacheable(method, path string) bool {
	if method != "GET" {
		return false
	}
	normalized := NormalizePath(path)
	for _, excluded := range p.excluded {
		if excluded(normalized) {
			return false
		}
	}
	return true
}

// Storable reports whether a response to a cacheable request may be stored.
func (p *Policy) Storable(status, bodySize int) bool {
	return status == 200 && bodySize <= p.maxEntrySize
}

// MaxEntrySize returns the cacheable body ceiling.
func (p *Policy) MaxEntrySize() int {
	return p.maxEntrySize
}
