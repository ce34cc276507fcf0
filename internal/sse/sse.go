// Package sse implements the SSE streaming layer (spec §4.4): a
// forwarded variant that proxies a byte stream verbatim, and a direct
// variant that frames an internally-produced event sequence onto the
// wire with keep-alive discipline.
//
// Grounded on the teacher's streamChat/streamMetrics handlers (SSE
// headers, flush-per-chunk) and the jan-server chat route's
// channel-based streaming goroutine (a producer goroutine feeding a
// buffered channel that the HTTP handler drains). golang.org/x/sync's
// errgroup ties DirectFromStream's scanning goroutine and its SSE writer
// to one cancellable scope, the way several of the pack's manifests use
// errgroup for paired producer/consumer goroutines.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/streamio"
)

func setSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// Forwarded proxies stream as an HTTP SSE response body with no
// re-framing: bytes pass through verbatim (spec §4.4 "Forwarded
// variant"). Client disconnect (ctx done) closes stream, cancelling its
// underlying source; the child-process handle itself is not shut down,
// only the resources held on behalf of this one stream (spec §4.4
// "Connection lifecycle").
func Forwarded(ctx context.Context, w http.ResponseWriter, stream *streamio.Stream) error {
	setSSEHeaders(w.Header())
	w.WriteHeader(stream.StatusCode)
	flusher, _ := w.(http.Flusher)

	var once sync.Once
	closeStream := func() { once.Do(func() { _ = stream.Close() }) }
	defer closeStream()

	copyDone := make(chan error, 1)
	go func() {
		copyDone <- copyFlushing(w, flusher, stream)
	}()

	select {
	case <-ctx.Done():
		closeStream()
		<-copyDone
		return apierr.Wrap(apierr.ErrCancelled, ctx.Err().Error())
	case err := <-copyDone:
		return err
	}
}

func copyFlushing(w io.Writer, flusher http.Flusher, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return apierr.Wrap(apierr.ErrTransport, werr.Error())
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return apierr.Wrap(apierr.ErrTransport, err.Error())
		}
	}
}

// Event is one unit of an internally-produced event sequence (spec §4.4
// "Direct variant"): data is framed as one or more "data: <line>" SSE
// lines followed by a blank separator.
type Event struct {
	Data string
}

// EventSource feeds Direct. Events must close when the sequence ends;
// Errs carries a terminal producer error, if any — both variants
// surface producer errors as stream termination, never retry them
// (spec §4.4 "Cancellation and ordering").
type EventSource struct {
	Events <-chan Event
	Errs   <-chan error
}

// Direct adapts src onto the SSE wire format, emitting a keep-alive
// comment line after keepAlive of producer silence (0 disables
// keep-alive). Event order on the wire matches producer order; neither
// batching nor merging occurs (spec §4.4).
func Direct(ctx context.Context, w http.ResponseWriter, src EventSource, keepAlive time.Duration) error {
	setSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	var timerC <-chan time.Time
	var timer *time.Timer
	if keepAlive > 0 {
		timer = time.NewTimer(keepAlive)
		defer timer.Stop()
		timerC = timer.C
	}

	resetTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(keepAlive)
	}

	for {
		select {
		case <-ctx.Done():
			return apierr.Wrap(apierr.ErrCancelled, ctx.Err().Error())

		case err, ok := <-src.Errs:
			if ok && err != nil {
				return err
			}

		case ev, ok := <-src.Events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, flusher, ev); err != nil {
				return err
			}
			resetTimer()

		case <-timerC:
			if _, err := io.WriteString(w, ":\n\n"); err != nil {
				return apierr.Wrap(apierr.ErrTransport, err.Error())
			}
			if flusher != nil {
				flusher.Flush()
			}
			resetTimer()
		}
	}
}

func writeEvent(w io.Writer, flusher http.Flusher, ev Event) error {
	for _, line := range strings.Split(ev.Data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return apierr.Wrap(apierr.ErrTransport, err.Error())
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return apierr.Wrap(apierr.ErrTransport, err.Error())
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// DirectFromStream re-frames an upstream SSE-shaped byte stream (a
// "data: ...\n\n" line protocol, as produced by a llama.cpp child or an
// OpenAI-compatible upstream) through the Direct variant instead of
// passing it through verbatim — used by callers that want Direct's own
// keep-alive and per-event flush discipline rather than trusting the
// upstream's framing and timing (Forwarded is the right choice when
// verbatim passthrough is acceptable, e.g. plain chat completions).
func DirectFromStream(ctx context.Context, w http.ResponseWriter, stream *streamio.Stream, keepAlive time.Duration) error {
	defer stream.Close()

	events := make(chan Event)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		return scanDataLines(gctx, stream, events)
	})
	g.Go(func() error {
		return Direct(gctx, w, EventSource{Events: events}, keepAlive)
	})

	return g.Wait()
}

func scanDataLines(ctx context.Context, r io.Reader, out chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		select {
		case out <- Event{Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return apierr.Wrap(apierr.ErrTransport, err.Error())
	}
	return nil
}
