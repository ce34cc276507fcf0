// Package routerstate is the thin dependency-injection container of spec
// §4.5: it holds the shared context and the model router and exposes
// them to HTTP handlers, plus one convenience method composing the two.
package routerstate

import (
	"context"

	"github.com/modelgate/modelgate/internal/engine"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/streamio"
)

// State is the value-type container of spec §4.5. It owns no state of
// its own beyond the two handles.
type State struct {
	Engine *engine.Engine
	Router *router.Router
}

// New builds a State.
func New(e *engine.Engine, r *router.Router) *State {
	return &State{Engine: e, Router: r}
}

// ChatCompletions composes the router (§4.3) with the shared context
// (§4.1) — the one convenience method spec §4.5 names.
func (s *State) ChatCompletions(ctx context.Context, body map[string]any) (*streamio.Stream, error) {
	return s.Router.ChatCompletions(ctx, body)
}
