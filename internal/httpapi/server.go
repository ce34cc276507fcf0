// Package httpapi is the HTTP framework collaborator named in spec §6:
// it exposes the one inbound endpoint the core cares about, POST
// /v1/chat/completions, and the handful of adjacent read-only endpoints
// the teacher's dashboard depended on (model listing, health, metrics,
// feature flags) — kept and adapted to this domain's collaborators
// instead of Ollama's.
//
// Routing and middleware composition are explicitly out of scope per
// spec.md §1; this package is the minimal stdlib net/http wiring needed
// to run the binary, the way the teacher's internal/api kept its own
// routing on a bare *http.ServeMux rather than reaching for a framework.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/argflags"
	"github.com/modelgate/modelgate/internal/logging"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/routerstate"
	"github.com/modelgate/modelgate/internal/sse"
)

const maxRequestBodyBytes = 10 * 1024 * 1024

// Server is the inference control plane's HTTP surface.
type Server struct {
	state   *routerstate.State
	metrics *metrics.Collector
	flags   *argflags.Store
	mux     *http.ServeMux
}

// NewServer builds a Server with every route registered.
func NewServer(state *routerstate.State, mc *metrics.Collector, flags *argflags.Store) *Server {
	s := &Server{state: state, metrics: mc, flags: flags, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Run starts the HTTP server on addr (e.g. "0.0.0.0:8080").
func (s *Server) Run(addr string) error {
	logging.Named("httpapi").Infow("listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// ReadTimeout / WriteTimeout intentionally omitted: chat
		// completions can legitimately stream for minutes.
	}
	return srv.ListenAndServe()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/api/metrics", s.handleMetrics)
	s.mux.HandleFunc("/api/features", s.handleFeatures)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"loaded":       s.state.Engine.IsLoaded(),
		"loaded_alias": s.state.Engine.LoadedAlias(),
		"exec_variant": s.state.Engine.ExecVariant(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	names := s.state.Router.ListModelNames()
	items := make([]openai.Model, 0, len(names))
	now := time.Now().Unix()
	for _, name := range names {
		items = append(items, openai.Model{ID: name, Object: "model", CreatedAt: now, OwnedBy: "modelgate"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ModelsList{Models: items})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	raw, err := readAndValidate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reqID := uuid.New().String()
	log := logging.Named("httpapi").With("request_id", reqID)

	s.metrics.RecordRequest()
	done := s.metrics.RequestStart()
	defer done()

	stream, err := s.state.ChatCompletions(r.Context(), body)
	if err != nil {
		kind := apierr.Classify(err)
		log.Warnw("chat completion failed before streaming", "kind", kind, "err", err)
		writeError(w, apierr.StatusCode(kind), err.Error())
		return
	}
	stream = s.metrics.InstrumentStream(stream)

	if isStreamingRequest(body) {
		if err := sse.Forwarded(r.Context(), w, stream); err != nil {
			log.Debugw("stream terminated", "err", err)
		}
		return
	}

	w.Header().Set("Content-Type", firstNonEmpty(stream.Header.Get("Content-Type"), "application/json"))
	w.WriteHeader(stream.StatusCode)
	defer stream.Close()
	if _, err := copyBuffered(w, stream); err != nil {
		log.Debugw("non-streaming response write failed", "err", err)
	}
}

func isStreamingRequest(body map[string]any) bool {
	v, _ := body["stream"].(bool)
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// readAndValidate reads the request body and validates it decodes as an
// OpenAI chat-completion request with a non-empty model and message
// list — the one piece of request-shape validation this layer performs;
// everything else passes through untouched to the router (spec §4.3
// "the router does not parse it").
func readAndValidate(r *http.Request) ([]byte, error) {
	raw, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Model == "" {
		return nil, fmt.Errorf("request has no model field")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages array must not be empty")
	}
	return raw, nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "text/event-stream" {
		s.streamMetrics(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.metrics.Snapshot())
}

func (s *Server) streamMetrics(w http.ResponseWriter, r *http.Request) {
	events := make(chan sse.Event)
	go func() {
		defer close(events)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				data, _ := json.Marshal(s.metrics.Snapshot())
				select {
				case events <- sse.Event{Data: string(data)}:
				case <-r.Context().Done():
					return
				}
			}
		}
	}()
	_ = sse.Direct(r.Context(), w, sse.EventSource{Events: events}, 0)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(s.flags.All())
	case http.MethodPost:
		var req struct {
			Feature string `json:"feature"`
			Enabled bool   `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		if !s.flags.Set(argflags.FeatureID(req.Feature), req.Enabled) {
			writeError(w, http.StatusBadRequest, "unknown feature: "+req.Feature)
			return
		}
		_ = json.NewEncoder(w).Encode(s.flags.All())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeError renders a pre-stream error as an OpenAI-shaped error body
// (spec §7 "Pre-stream errors become structured JSON error bodies").
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(openai.ErrorResponse{
		Error: &openai.APIError{
			Message: message,
			Type:    "invalid_request_error",
		},
	})
}
