/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpwire

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
)

// Proto is the only protocol version written by this package.
const Proto = "HTTP/1.1"

// Response is a fully buffered response.
type Response struct {
	Status int
	Header Header
	Body   []byte
}

// NewResponse creates a response with the given Content-Type (omitted when empty).
func NewResponse(status int, contentType string, body []byte) *Response {
	resp := &Response{Status: status, Body: body}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	return resp
}

// Clone returns a copy with its own header. The body is shared and must not be modified.
func (r *Response) Clone() *Response {
	return &Response{Status: r.Status, Header: r.Header.Clone(), Body: r.Body}
}

// NewTextResponse creates a "text/plain" response.
func NewTextResponse(status int, text string) *Response {
	return NewResponse(status, "text/plain; charset=utf-8", []byte(text))
}

// NewStatusResponse creates a plain-text response whose body is the reason phrase of the status.
func NewStatusResponse(status int) *Response {
	return NewTextResponse(status, StatusText(status))
}

// StatusText returns the reason phrase for the code.
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

// managedHeaders are always computed by WriteHead callers and never copied from a Header.
var managedHeaders = []string{"Content-Length", "Connection", "Transfer-Encoding"}

// WriteHead writes the status line, the header fields, Content-Length when contentLength >= 0,
// "Connection: close" and the terminating empty line. It does not flush.
func WriteHead(w *bufio.Writer, status int, reason string, h *Header, contentLength int64) error {
	if reason == "" {
		reason = StatusText(status)
	}
	w.WriteString(Proto)
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(status))
	w.WriteByte(' ')
	w.WriteString(reason)
	w.WriteString("\r\n")
	return writeFields(w, h, contentLength)
}

// WriteRequestHead writes a request line with the origin-form target uri followed by the header block
// written the same way as by WriteHead. It does not flush.
func WriteRequestHead(w *bufio.Writer, method, uri string, h *Header, contentLength int64) error {
	w.WriteString(method)
	w.WriteByte(' ')
	w.WriteString(uri)
	w.WriteByte(' ')
	w.WriteString(Proto)
	w.WriteString("\r\n")
	return writeFields(w, h, contentLength)
}

func writeFields(w *bufio.Writer, h *Header, contentLength int64) error {
	if h != nil {
	fields:
		for _, f := range h.fields {
			for _, managed := range managedHeaders {
				if strings.EqualFold(f.Name, managed) {
					continue fields
				}
			}
			w.WriteString(f.Name)
			w.WriteString(": ")
			w.WriteString(f.Value)
			w.WriteString("\r\n")
		}
	}
	if contentLength >= 0 {
		w.WriteString("Content-Length: ")
		w.WriteString(strconv.FormatInt(contentLength, 10))
		w.WriteString("\r\n")
	}
	_, err := w.WriteString("Connection: close\r\n\r\n")
	return err
}

// Write serializes the response with an exact Content-Length and flushes the writer.
func (r *Response) Write(w *bufio.Writer) error {
	if err := WriteHead(w, r.Status, "", &r.Header, int64(len(r.Body))); err != nil {
		return err
	}
	if _, err := w.Write(r.Body); err != nil {
		return err
	}
	return w.Flush()
}

// ResponseHead is the status line and header block of a response read from an upstream server.
type ResponseHead struct {
	Proto  string
	Status int
	Reason string
	Header Header
}

// ContentLength returns the declared body length, or -1 when it is absent or invalid.
func (h *ResponseHead) ContentLength() int64 {
	v, ok := h.Header.Lookup("Content-Length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Chunked reports whether the body uses chunked transfer coding.
func (h *ResponseHead) Chunked() bool {
	return strings.Contains(strings.ToLower(h.Header.Get("Transfer-Encoding")), "chunked")
}

// ReadResponseHead reads a status line and headers. The body is left in r.
func ReadResponseHead(r *bufio.Reader, maxHeaderBytes int) (*ResponseHead, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	lines, err := readHeaderBlock(r, maxHeaderBytes)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, newParseError(ErrMalformedStatusLine, "%q", lines[0])
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 999 {
		return nil, newParseError(ErrMalformedStatusLine, "%q", lines[0])
	}
	head := &ResponseHead{Proto: parts[0], Status: status}
	if head.Header, err = parseHeaderFields(lines[1:], DefaultMaxHeaderFields); err != nil {
		return nil, err
	}
	if len(parts) == 3 {
		head.Reason = parts[2]
	}
	return head, nil
}

// HasBody reports whether a body follows the head. Responses to HEAD and 1xx/204/304 responses have none.
func (h *ResponseHead) HasBody(requestMethod string) bool {
	return requestMethod != "HEAD" && (h.Status < 100 || h.Status >= 200) && h.Status != 204 && h.Status != 304
}

// BodyReader returns a reader for the response body: Content-Length delimited,
// de-chunked (chunked framing is never re-emitted), or everything until the upstream closes the connection.
// A body shorter than its Content-Length ends with io.ErrUnexpectedEOF.
func (h *ResponseHead) BodyReader(r *bufio.Reader, requestMethod string) io.Reader {
	if !h.HasBody(requestMethod) {
		return strings.NewReader("")
	}
	if h.Chunked() {
		return httputil.NewChunkedReader(r)
	}
	if n := h.ContentLength(); n >= 0 {
		return &exactLengthReader{r: r, remaining: n}
	}
	return r
}

type exactLengthReader struct {
	r         io.Reader
	remaining int64
}

func (l *exactLengthReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if err == io.EOF && l.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
