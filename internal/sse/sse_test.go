package sse

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/streamio"
)

func TestForwarded_HeadersAndVerbatimBody(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := streamio.New(200, nil, io.NopCloser(strings.NewReader("raw-bytes-verbatim")), nil)

	err := Forwarded(context.Background(), rec, stream)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "raw-bytes-verbatim", rec.Body.String())
}

func TestForwarded_ClientDisconnectClosesStream(t *testing.T) {
	pr, pw := io.Pipe()
	closed := make(chan struct{})
	stream := streamio.New(200, nil, pr, func() { close(closed) })

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()

	done := make(chan error, 1)
	go func() { done <- Forwarded(ctx, rec, stream) }()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forwarded did not return after client disconnect")
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed after client disconnect")
	}
	_ = pw.Close()
}

func TestDirect_WireFormatMatchesP5(t *testing.T) {
	events := make(chan Event, 2)
	events <- Event{Data: "line one\nline two"}
	events <- Event{Data: "single"}
	close(events)

	rec := httptest.NewRecorder()
	err := Direct(context.Background(), rec, EventSource{Events: events}, 0)
	require.NoError(t, err)

	expected := "data: line one\ndata: line two\n\ndata: single\n\n"
	assert.Equal(t, expected, rec.Body.String())
}

func TestDirect_KeepAliveCommentOnIdle(t *testing.T) {
	events := make(chan Event)
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := Direct(ctx, rec, EventSource{Events: events}, 20*time.Millisecond)
	require.Error(t, err) // terminates via ctx timeout
	assert.Contains(t, rec.Body.String(), ":\n\n")
}

func TestDirect_StopsOnProducerError(t *testing.T) {
	events := make(chan Event)
	errs := make(chan error, 1)
	errs <- assertError("boom")

	rec := httptest.NewRecorder()
	err := Direct(context.Background(), rec, EventSource{Events: events, Errs: errs}, 0)
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
