// Package router implements the model request router (spec §4.3): it
// resolves a chat-completion request's model name to one of three
// destinations with defined precedence (User alias > Model alias >
// Remote alias), then forwards the request without buffering the
// response.
package router

import (
	"context"
	"encoding/json"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/catalogue"
	"github.com/modelgate/modelgate/internal/streamio"
)

// LocalDispatcher is the capability the Local destination forwards
// through — satisfied by *internal/engine.Engine.
type LocalDispatcher interface {
	ChatCompletions(ctx context.Context, body map[string]any, alias catalogue.Alias) (*streamio.Stream, error)
}

// RemoteDispatcher is the capability the Remote destination forwards
// through — satisfied by *internal/remote.Client.
type RemoteDispatcher interface {
	ChatCompletions(ctx context.Context, baseURL, credential string, body []byte) (*streamio.Stream, error)
}

// DispatchObserver is notified with the resolved destination kind,
// "local" or "remote", each time ChatCompletions dispatches a request.
// internal/metrics.Collector.RecordDispatch is the production observer:
// spec §4.3's "remote-vs-local uniformity" means the router treats both
// destinations identically, but operators still want the split an
// Ollama-only client never needed to track.
type DispatchObserver func(destination string)

// Router resolves and forwards chat-completion requests (spec §4.3
// component D).
type Router struct {
	catalogue catalogue.Service
	local     LocalDispatcher
	remote    RemoteDispatcher
	observer  DispatchObserver
}

// Option configures a Router at construction.
type Option func(*Router)

// WithDispatchObserver registers a callback invoked with "local" or
// "remote" after each successful resolution, before forwarding.
func WithDispatchObserver(o DispatchObserver) Option {
	return func(r *Router) { r.observer = o }
}

// New builds a Router.
func New(cat catalogue.Service, local LocalDispatcher, remote RemoteDispatcher, opts ...Option) *Router {
	r := &Router{catalogue: cat, local: local, remote: remote}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) observeDispatch(destination string) {
	if r.observer != nil {
		r.observer(destination)
	}
}

// ListModelNames enumerates every model name the router can resolve,
// for the /v1/models listing — a read-only convenience, not part of
// spec §4.3's resolution contract itself.
func (r *Router) ListModelNames() []string {
	return r.catalogue.ListNames()
}

// Resolve performs the name resolution of spec §4.3 steps 1-3 without
// forwarding, for callers (tests, admin tooling) that only need the
// destination.
func (r *Router) Resolve(name string) (catalogue.ResolvedAlias, error) {
	resolved, ok := r.catalogue.FindAlias(name)
	if !ok {
		return catalogue.ResolvedAlias{}, apierr.Wrapf(apierr.ErrModelNotFound, "model %q not found", name)
	}
	return resolved, nil
}

// ChatCompletions resolves body's "model" field and forwards to the
// selected destination (spec §4.3 "Forwarding"). The returned Stream is
// never buffered here; it is piped straight from whichever destination
// produced it.
func (r *Router) ChatCompletions(ctx context.Context, body map[string]any) (*streamio.Stream, error) {
	name, _ := body["model"].(string)
	if name == "" {
		return nil, apierr.Wrap(apierr.ErrModelNotFound, "request has no model field")
	}

	dest, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	if dest.Local != nil {
		r.observeDispatch("local")
		return r.local.ChatCompletions(ctx, body, *dest.Local)
	}
	r.observeDispatch("remote")
	return r.forwardRemote(ctx, dest.Remote, name, body)
}

func (r *Router) forwardRemote(ctx context.Context, alias *catalogue.RemoteAlias, upstreamID string, body map[string]any) (*streamio.Stream, error) {
	credential, err := alias.Credential()
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrUpstreamAuth, err.Error())
	}

	// Rewrite the model field to the upstream identifier (spec §4.3):
	// a no-op in today's resolution (n already equals upstream_id), kept
	// explicit so a future many-to-one alias mapping stays correct.
	rewritten := make(map[string]any, len(body))
	for k, v := range body {
		rewritten[k] = v
	}
	rewritten["model"] = upstreamID

	raw, err := json.Marshal(rewritten)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrInternal, err.Error())
	}

	return r.remote.ChatCompletions(ctx, alias.BaseURL, credential, raw)
}
