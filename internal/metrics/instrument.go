package metrics

import (
	"time"

	"github.com/modelgate/modelgate/internal/streamio"
)

// InstrumentStream wraps stream so that every chunk read off it is
// recorded as one "token" event, with time-to-first-token measured from
// wrap time to the first Read and time-per-output-token measured between
// successive Reads. This is the control plane's equivalent of the
// teacher's streamChat/streamChatAndCache per-chunk TTFT/TPOT accounting,
// moved out of the HTTP handler (which no longer parses response bodies)
// and into a thin reader wrapper around the opaque byte stream instead.
func (c *Collector) InstrumentStream(stream *streamio.Stream) *streamio.Stream {
	w := &countingReader{inner: stream, collector: c, start: time.Now()}
	return streamio.New(stream.StatusCode, stream.Header, w, nil)
}

type countingReader struct {
	inner     *streamio.Stream
	collector *Collector
	start     time.Time
	prevAt    time.Time
	chunks    int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		now := time.Now()
		r.chunks++

		ttftMs, tpotMs := 0.0, 0.0
		if r.chunks == 1 {
			ttftMs = float64(now.Sub(r.start).Milliseconds())
		} else if !r.prevAt.IsZero() {
			tpotMs = float64(now.Sub(r.prevAt).Milliseconds())
		}
		r.prevAt = now
		r.collector.RecordTokens(1, ttftMs, tpotMs)
	}
	return n, err
}

func (r *countingReader) Close() error {
	return r.inner.Close()
}
