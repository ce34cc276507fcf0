// Package engine implements the shared LLM context (spec §4.1): it owns
// the single optional child-process handle, serialises load/reload/stop
// transitions, dispatches chat-completion requests via the three-way load
// strategy (Continue/DropAndLoad/Load), and broadcasts server-state
// events to registered listeners.
//
// The handle slot is a single-writer, many-reader cell guarded by a
// sync.RWMutex, the way spec §9 "Shared context mutation" describes it —
// no arena/index is needed since the cell holds at most one value. The
// listener set is a second, independent lock, touched only for
// registration and for a snapshot-copy-before-invocation, so listeners are
// never invoked while any other lock is held (spec §5).
package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/argmerge"
	"github.com/modelgate/modelgate/internal/catalogue"
	"github.com/modelgate/modelgate/internal/child"
	"github.com/modelgate/modelgate/internal/logging"
	"github.com/modelgate/modelgate/internal/settings"
	"github.com/modelgate/modelgate/internal/streamio"
)

// EventKind identifies one of the four server-state events (spec §3).
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventChatCompletionDispatched
	EventVariantChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "Started"
	case EventStopped:
		return "Stopped"
	case EventChatCompletionDispatched:
		return "ChatCompletionDispatched"
	case EventVariantChanged:
		return "VariantChanged"
	default:
		return "Unknown"
	}
}

// Event is one server-state transition, broadcast to all listeners.
type Event struct {
	Kind    EventKind
	Alias   string // set for ChatCompletionDispatched
	Variant string // set for VariantChanged
}

// Listener observes state transitions. Must not block the engine; a
// listener that panics is recovered and logged, never propagated (spec
// §4.1 "Notification failure in a listener: logged, never propagated").
type Listener func(Event)

// Stream is the byte-stream abstraction chat-completion forwarding
// returns (spec §3 "chat_completions(json_body) -> byte stream"). Close
// both closes the underlying body and releases the engine-internal lock
// held for the duration of the read — Continue holds a read guard for as
// long as the stream is open, so a concurrent reload cannot drop the
// handle out from under an in-progress read (invariant I2). The guard is
// briefly dropped and reacquired around the dispatch notification (see
// forward) so no listener ever runs with it held.
type Stream = streamio.Stream

// Engine is the shared LLM context (spec §4.1 component C).
type Engine struct {
	catalogue catalogue.Service
	settings  settings.Service
	factory   child.Factory
	execPath  string
	// extraArgs supplies additional alias-precedence server-argument
	// tokens (internal/argflags wires this), appended ahead of the
	// alias's own context params so a user's explicit flags still win on
	// collision during the merge.
	extraArgs func() []string

	mu     sync.RWMutex
	handle *child.Handle

	variantMu sync.RWMutex
	variant   string

	listenersMu sync.Mutex
	listeners   []Listener
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithExtraArgs injects a source of additional alias-precedence
// server-argument tokens, evaluated fresh on every spawn.
func WithExtraArgs(f func() []string) Option {
	return func(e *Engine) { e.extraArgs = f }
}

// New builds an Engine. execPath is the llama.cpp-compatible executable
// spawned by factory on every Load/DropAndLoad.
func New(cat catalogue.Service, set settings.Service, factory child.Factory, execPath string, opts ...Option) *Engine {
	e := &Engine{
		catalogue: cat,
		settings:  set,
		factory:   factory,
		execPath:  execPath,
		variant:   set.ExecVariant(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddStateListener registers a listener for future events.
func (e *Engine) AddStateListener(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) notify(ev Event) {
	e.listenersMu.Lock()
	ls := append([]Listener(nil), e.listeners...)
	e.listenersMu.Unlock()

	for _, l := range ls {
		e.invokeListener(l, ev)
	}
}

func (e *Engine) invokeListener(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Named("engine").Errorw("state listener panicked", "event", ev.Kind.String(), "panic", r)
		}
	}()
	l(ev)
}

// IsLoaded is a non-blocking snapshot of whether a child handle is live.
func (e *Engine) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle != nil
}

// LoadedAlias returns the alias of the currently loaded handle, or ""
// when nothing is loaded.
func (e *Engine) LoadedAlias() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.handle == nil {
		return ""
	}
	return e.handle.Alias()
}

// ExecVariant returns the currently configured execution variant.
func (e *Engine) ExecVariant() string {
	e.variantMu.RLock()
	defer e.variantMu.RUnlock()
	return e.variant
}

// SetExecVariant updates the stored variant identifier (spec §4.1
// set_exec_variant). It does not restart the current child; the next
// Load/DropAndLoad picks the new variant's arguments up.
func (e *Engine) SetExecVariant(v string) {
	e.variantMu.Lock()
	e.variant = v
	e.variantMu.Unlock()
	e.notify(Event{Kind: EventVariantChanged, Variant: v})
}

// Stop shuts down the current handle, if any, equivalent to
// Reload(ctx, "", "", nil). Per the spec's open question, no Stopped
// event is emitted when nothing was loaded.
func (e *Engine) Stop() {
	e.mu.Lock()
	hadHandle := e.handle != nil
	if hadHandle {
		e.handle.Shutdown()
		e.handle = nil
	}
	e.mu.Unlock()

	if hadHandle {
		e.notify(Event{Kind: EventStopped})
	}
}

// Reload shuts down the current handle, if any, then — when args is
// non-nil — spawns a new one under alias/execPath/args (spec §4.1
// reload(args?)). execPath defaults to the engine's configured executable
// when empty.
func (e *Engine) Reload(ctx context.Context, alias, execPath string, args []string) error {
	if execPath == "" {
		execPath = e.execPath
	}

	e.mu.Lock()
	hadHandle := e.handle != nil
	if hadHandle {
		e.handle.Shutdown()
		e.handle = nil
	}

	if args == nil {
		e.mu.Unlock()
		if hadHandle {
			e.notify(Event{Kind: EventStopped})
		}
		return nil
	}

	newHandle, err := e.factory.Create(ctx, alias, execPath, args)
	if err != nil {
		e.mu.Unlock()
		if hadHandle {
			e.notify(Event{Kind: EventStopped})
		}
		return apierr.Wrap(apierr.ErrSpawnFailed, err.Error())
	}
	e.handle = newHandle
	e.mu.Unlock()

	if hadHandle {
		e.notify(Event{Kind: EventStopped})
	}
	e.notify(Event{Kind: EventStarted})
	return nil
}

// ChatCompletions serves one chat-completion request under the three-way
// load strategy of spec §4.1: Continue when the requested alias is
// already loaded, DropAndLoad when a different alias is loaded, Load when
// nothing is loaded. The returned Stream's Close must be called exactly
// once by the caller to release the internal read guard.
func (e *Engine) ChatCompletions(ctx context.Context, body map[string]any, alias catalogue.Alias) (*Stream, error) {
	applyRequestDefaults(body, alias.RequestParams)

	modelPath, err := e.catalogue.FindLocalFile(alias.Model.Repo, alias.Model.Filename, alias.Model.Snapshot)
	if err != nil {
		return nil, err
	}

	for {
		e.mu.RLock()
		if e.handle != nil && e.handle.Alias() == alias.Name {
			h := e.handle
			return e.forward(ctx, h, body, alias.Name)
		}
		e.mu.RUnlock()

		if err := e.loadOrSwap(ctx, alias, modelPath); err != nil {
			return nil, err
		}
		// Loop back and re-check under a fresh read guard: a concurrent
		// request may have swapped the handle again between loadOrSwap
		// releasing its write guard and us re-acquiring a read guard.
	}
}

// loadOrSwap performs the DropAndLoad/Load write-locked transition: shut
// down any differently-aliased handle, then spawn the requested one.
func (e *Engine) loadOrSwap(ctx context.Context, alias catalogue.Alias, modelPath string) error {
	e.mu.Lock()

	if e.handle != nil && e.handle.Alias() == alias.Name {
		// Another goroutine already completed the swap for us.
		e.mu.Unlock()
		return nil
	}

	hadHandle := e.handle != nil
	if hadHandle {
		e.handle.Shutdown()
		e.handle = nil
	}

	args := e.mergedArgs(alias, modelPath)
	newHandle, err := e.factory.Create(ctx, alias.Name, e.execPath, args)
	if err != nil {
		e.mu.Unlock()
		if hadHandle {
			e.notify(Event{Kind: EventStopped})
		}
		return apierr.Wrap(apierr.ErrSpawnFailed, err.Error())
	}
	e.handle = newHandle
	e.mu.Unlock()

	if hadHandle {
		e.notify(Event{Kind: EventStopped})
	}
	e.notify(Event{Kind: EventStarted})
	return nil
}

// mergedArgs composes the spawn arguments for alias from the three
// hierarchical sources (spec §4.1 "Spawn arguments"): setting, variant,
// and alias context params — the last preceded by any argflags-style
// tokens, which sit at alias precedence. The resolved model path is
// appended as -m, outside the merge's three sources.
func (e *Engine) mergedArgs(alias catalogue.Alias, modelPath string) []string {
	var extra []string
	if e.extraArgs != nil {
		extra = e.extraArgs()
	}
	aliasTokens := append(append([]string{}, extra...), alias.ContextParams...)

	merged := argmerge.Merge(e.settings.SettingArgs(), e.settings.VariantArgs(e.ExecVariant()), aliasTokens)
	return append(merged, "-m", modelPath)
}

// forward issues the request against h. The caller must hold e.mu's read
// guard on entry; forward always leaves it released on return (error or
// not) except for the brief reacquire below, and hands the reacquired
// guard off to the returned Stream, whose Close runs e.mu.RUnlock exactly
// once.
//
// The read guard is dropped for the duration of the state-listener
// notification: listeners must never be invoked while any engine mutex
// is held (spec §5) — a listener that calls back into Reload/Stop (which
// take e.mu.Lock()) would otherwise self-deadlock, and one that calls
// IsLoaded/LoadedAlias could deadlock behind a pending writer. The guard
// is reacquired immediately afterwards so it still spans the stream's
// lifetime, per Stream's doc comment.
func (e *Engine) forward(ctx context.Context, h *child.Handle, body map[string]any, alias string) (*Stream, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		e.mu.RUnlock()
		return nil, apierr.Wrap(apierr.ErrInternal, err.Error())
	}

	resp, err := h.ChatCompletions(ctx, raw)

	e.mu.RUnlock()
	e.notify(Event{Kind: EventChatCompletionDispatched, Alias: alias})
	e.mu.RLock()

	if err != nil {
		e.mu.RUnlock()
		return nil, err
	}

	return streamio.FromResponse(resp, e.mu.RUnlock), nil
}

// applyRequestDefaults fills only the request fields the caller left
// absent, per spec §4.1 "Request preparation" step 2.
func applyRequestDefaults(body map[string]any, rp catalogue.RequestParams) {
	if rp.Temperature != nil {
		if _, ok := body["temperature"]; !ok {
			body["temperature"] = *rp.Temperature
		}
	}
	if rp.TopP != nil {
		if _, ok := body["top_p"]; !ok {
			body["top_p"] = *rp.TopP
		}
	}
	if rp.MaxTokens != nil {
		if _, ok := body["max_tokens"]; !ok {
			body["max_tokens"] = *rp.MaxTokens
		}
	}
	if len(rp.Stop) > 0 {
		if _, ok := body["stop"]; !ok {
			body["stop"] = rp.Stop
		}
	}
	if rp.Seed != nil {
		if _, ok := body["seed"]; !ok {
			body["seed"] = *rp.Seed
		}
	}
}
