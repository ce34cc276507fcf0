// Package remote implements the upstream remote API HTTP client (spec §6
// "remote API HTTP client", §4.3 Remote destination forwarding): issues a
// POST with an arbitrary JSON body and a bearer Authorization header, and
// hands back the upstream response as a streaming body with status and
// Content-Type preserved.
//
// Grounded on the teacher's ollama.Client (no client-side timeout —
// streaming responses can run long; BaseURL + *http.Client shape) and the
// vessel llama.cpp backend's Chat method (bearer header, passthrough of
// the upstream's raw body).
package remote

import (
	"bytes"
	"context"
	"net/http"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/streamio"
)

// Client is the remote OpenAI-compatible API client.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with no request timeout, matching the
// teacher's streaming-first Ollama client: callers enforce their own
// deadlines via context (spec §5 "Timeouts. None are imposed by the
// core").
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// ChatCompletions forwards body to {baseURL}/chat/completions with the
// given bearer credential, returning the upstream response as a Stream
// (spec §4.3 "Remote(alias, upstream_id)" forwarding).
//
// Per spec §4.3, both router destinations must preserve the upstream
// response's HTTP status and Content-Type verbatim — including a 401 or
// a 500 — so a non-2xx upstream status is not turned into an apierr
// here; it is forwarded as the response body and status unchanged. Only
// a failure to reach the upstream at all (DNS, connection refused,
// timeout) is classified as ErrUpstreamUnreachable.
func (c *Client) ChatCompletions(ctx context.Context, baseURL, credential string, body []byte) (*streamio.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrInternal, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrUpstreamUnreachable, err.Error())
	}

	return streamio.FromResponse(resp, nil), nil
}
