// Package streamio defines the byte-stream abstraction shared by every
// destination the model router can forward to (spec §4.3 "Remote-vs-local
// uniformity": both branches return a byte stream; the SSE layer treats
// them identically). internal/engine and internal/remote each produce a
// Stream; internal/router never needs to know which one it's holding.
package streamio

import (
	"io"
	"net/http"
)

// Stream is an HTTP response reduced to what downstream cares about: a
// status code, headers worth preserving (notably Content-Type), and a
// body that is read and closed exactly once. Close releases whatever
// resource produced the body — a held lock, a pooled connection, a child
// process's read guard — so callers must always close it, typically via
// defer or at the end of an SSE adapter's lifetime.
type Stream struct {
	StatusCode int
	Header     http.Header

	body    io.ReadCloser
	release func()
}

// New wraps body as a Stream. release, if non-nil, runs once after body
// is closed — used to drop an engine read guard or similar bookkeeping.
func New(statusCode int, header http.Header, body io.ReadCloser, release func()) *Stream {
	return &Stream{StatusCode: statusCode, Header: header, body: body, release: release}
}

// FromResponse adapts a raw *http.Response into a Stream, taking
// ownership of resp.Body.
func FromResponse(resp *http.Response, release func()) *Stream {
	return New(resp.StatusCode, resp.Header, resp.Body, release)
}

func (s *Stream) Read(p []byte) (int, error) { return s.body.Read(p) }

func (s *Stream) Close() error {
	err := s.body.Close()
	if s.release != nil {
		s.release()
	}
	return err
}
