/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"strings"

	"github.com/acronis/go-wireserver/httpwire"
)

// keyPathEscaper re-escapes the decoded path so that "?" in the key always starts the query.
var keyPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F")

// Key derives the cache key "METHOD [scope]path[?query]".
// Scope is empty for locally served responses and "host:port" for forwarded ones,
// so the same path on different origins never collides.
func Key(req *httpwire.Request, scope string) string {
	path := keyPath(req)
	var sb strings.Builder
	sb.Grow(len(req.Method) + len(scope) + len(path) + len(req.RawQuery) + 2)
	sb.WriteString(req.Method)
	sb.WriteByte(' ')
	sb.WriteString(scope)
	sb.WriteString(path)
	if req.RawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(req.RawQuery)
	}
	return sb.String()
}

// keyPath returns the normalized path with "%" and "?" escaped.
// A path that failed to decode keeps its raw form: it has a "%" not followed by a valid escape,
// so it never equals an escaped one.
func keyPath(req *httpwire.Request) string {
	path := NormalizePath(req.Path)
	if req.Path == req.RawPath && strings.IndexByte(req.RawPath, '%') >= 0 {
		return path
	}
	return keyPathEscaper.Replace(path)
}

// NormalizePath strips trailing slashes unless the path is the root; an empty path becomes "/".
func NormalizePath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
