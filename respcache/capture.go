/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

// Capture records a streamed body for caching up to a byte ceiling.
// Once more than max bytes are written it releases its buffer and stops recording;
// writes keep succeeding so it can be used in an io.MultiWriter next to the client connection.
type Capture struct {
	max      int
	buf      []byte
	overflow bool
}

// NewCapture creates a new Capture with the given ceiling.
func NewCapture(max int) *Capture {
	return &Capture{max: max}
}

// Write implements io.Writer.
func (c *Capture) Write(p []byte) (int, error) {
	if c.overflow {
		return len(p), nil
	}
	if len(c.buf)+len(p) > c.max {
		c.overflow = true
		c.buf = nil
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Bytes returns the recorded body and false if the ceiling was crossed.
func (c *Capture) Bytes() ([]byte, bool) {
	if c.overflow {
		return nil, false
	}
	return c.buf, true
}
