/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpwire reads HTTP/1.1 requests from raw connections and writes responses back.
// Only the subset a one-request-per-connection server needs is supported:
// chunked request bodies, pipelining and keep-alive are rejected or ignored.
package httpwire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default limits.
const (
	DefaultMaxHeaderBytes  = 64 * 1024
	DefaultMaxHeaderFields = 100
	DefaultMaxBodyBytes    = 1024 * 1024
)

const (
	defaultHTTPPort    = 80
	defaultConnectPort = 443
)

// ParserOpts configures Parser limits. Zero values mean defaults.
type ParserOpts struct {
	MaxHeaderBytes  int
	MaxHeaderFields int
	MaxBodyBytes    int64
}

// Parser reads requests with the configured size limits. It is stateless and safe for concurrent use.
type Parser struct {
	maxHeaderBytes  int
	maxHeaderFields int
	maxBodyBytes    int64
}

// NewParser creates a new Parser.
func NewParser(opts ParserOpts) *Parser {
	p := &Parser{maxHeaderBytes: opts.MaxHeaderBytes, maxHeaderFields: opts.MaxHeaderFields, maxBodyBytes: opts.MaxBodyBytes}
	if p.maxHeaderBytes <= 0 {
		p.maxHeaderBytes = DefaultMaxHeaderBytes
	}
	if p.maxHeaderFields <= 0 {
		p.maxHeaderFields = DefaultMaxHeaderFields
	}
	if p.maxBodyBytes <= 0 {
		p.maxBodyBytes = DefaultMaxBodyBytes
	}
	return p
}

var defaultParser = NewParser(ParserOpts{})

// Parse reads one request using default limits.
func Parse(r *bufio.Reader) (*Request, error) {
	return defaultParser.Parse(r)
}

// Parse reads exactly one request (header block and Content-Length body) from r.
// Malformed input is reported as *ParseError. Network errors, timeouts included, are returned as is.
func (p *Parser) Parse(r *bufio.Reader) (*Request, error) {
	lines, err := readHeaderBlock(r, p.maxHeaderBytes)
	if err != nil {
		return nil, err
	}

	req := &Request{}
	if err = parseRequestLine(lines[0], req); err != nil {
		return nil, err
	}
	if req.Header, err = parseHeaderFields(lines[1:], p.maxHeaderFields); err != nil {
		return nil, err
	}

	if err = resolveTarget(req); err != nil {
		return nil, err
	}

	if te := req.Header.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		return nil, newParseError(ErrUnsupportedEncoding, "%q", te)
	}

	contentLength := parseContentLength(req.Header.Get("Content-Length"))
	if contentLength > p.maxBodyBytes {
		return nil, newParseError(ErrBodyTooLarge, "content length %d exceeds %d", contentLength, p.maxBodyBytes)
	}
	if contentLength > 0 {
		req.Body = make([]byte, contentLength)
		if n, readErr := io.ReadFull(r, req.Body); readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return nil, newParseError(ErrIncompleteBody, "got %d of %d bytes", n, contentLength)
			}
			return nil, fmt.Errorf("read request body: %w", readErr)
		}
	}
	return req, nil
}

// readHeaderBlock reads lines up to and including the empty line that terminates the header block.
// Leading empty lines are skipped. The returned slice always has at least one line.
func readHeaderBlock(r *bufio.Reader, maxBytes int) ([]string, error) {
	var lines []string
	var line []byte
	total := 0
	for {
		chunk, err := r.ReadSlice('\n')
		total += len(chunk)
		if total > maxBytes {
			return nil, newParseError(ErrHeaderTooLarge, "exceeds %d bytes", maxBytes)
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if total == 0 {
					return nil, newParseError(ErrEmptyRequest, "")
				}
				return nil, newParseError(ErrIncompleteHeader, "stream ended after %d bytes", total)
			}
			if IsTimeout(err) {
				return nil, err
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		text := strings.TrimRight(string(line), "\r\n")
		line = line[:0]
		if text == "" {
			if len(lines) == 0 {
				continue
			}
			return lines, nil
		}
		lines = append(lines, text)
	}
}

func parseRequestLine(line string, req *Request) error {
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return newParseError(ErrMalformedRequestLine, "%q", line)
	}
	req.Method = strings.ToUpper(tokens[0])
	req.Target = tokens[1]
	req.Proto = tokens[2]
	return nil
}

// parseHeaderFields skips lines without a colon. Repeated names keep the last value.
// More than maxFields fields fail with ErrHeaderTooLarge.
func parseHeaderFields(lines []string, maxFields int) (Header, error) {
	var h Header
	fields := 0
	for _, line := range lines {
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		if name == "" {
			continue
		}
		if fields++; fields > maxFields {
			return Header{}, newParseError(ErrHeaderTooLarge, "more than %d fields", maxFields)
		}
		h.Set(name, strings.TrimSpace(line[idx+1:]))
	}
	return h, nil
}

func resolveTarget(req *Request) error {
	switch {
	case req.Method == "CONNECT":
		// CONNECT is refused later whatever its target, so a malformed authority is not a parse failure.
		if host, port, err := splitHostPort(req.Target, defaultConnectPort); err == nil {
			req.Host, req.Port = host, port
		}
		return nil

	case hasPrefixFold(req.Target, "http://"):
		u, err := url.Parse(req.Target)
		if err != nil {
			return newParseError(ErrMalformedRequestLine, "target %q: %v", req.Target, err)
		}
		host, port, err := splitHostPort(u.Host, defaultHTTPPort)
		if err != nil {
			return err
		}
		req.Host, req.Port = host, port
		req.AbsoluteForm = true
		req.RawPath = u.EscapedPath()
		if req.RawPath == "" {
			req.RawPath = "/"
		}
		req.RawQuery = u.RawQuery
		req.Path = decodePath(req.RawPath)
		return nil

	case strings.HasPrefix(req.Target, "/") || req.Target == "*":
		hostHeader, ok := req.Header.Lookup("Host")
		if !ok || hostHeader == "" {
			return newParseError(ErrMissingHost, "")
		}
		host, port, err := splitHostPort(hostHeader, defaultHTTPPort)
		if err != nil {
			return err
		}
		req.Host, req.Port = host, port
		target := req.Target
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target = target[:i]
		}
		req.RawPath, req.RawQuery, _ = strings.Cut(target, "?")
		req.Path = decodePath(req.RawPath)
		return nil
	}
	return newParseError(ErrMalformedRequestLine, "unsupported target %q", req.Target)
}

// splitHostPort accepts "host", "host:port", "[v6]" and "[v6]:port".
func splitHostPort(hostport string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		if host, portStr, err = net.SplitHostPort(hostport + ":" + strconv.Itoa(defaultPort)); err != nil {
			return "", 0, newParseError(ErrMalformedHost, "%q", hostport)
		}
	}
	if host == "" || strings.ContainsAny(host, " \t/") {
		return "", 0, newParseError(ErrMalformedHost, "%q", hostport)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, newParseError(ErrMalformedHost, "invalid port in %q", hostport)
	}
	return host, port, nil
}

// decodePath percent-decodes with path semantics ("+" is kept). Invalid escapes keep the raw form.
func decodePath(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// parseContentLength treats absent, unparsable and negative values as zero.
func parseContentLength(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
