package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/argflags"
	"github.com/modelgate/modelgate/internal/catalogue"
	"github.com/modelgate/modelgate/internal/child"
	"github.com/modelgate/modelgate/internal/engine"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/routerstate"
	"github.com/modelgate/modelgate/internal/settings"
)

// attachFactory is the httpapi-level analogue of engine's own test
// double: it attaches to an already-running httptest server instead of
// spawning a real llama.cpp process, so these tests exercise the full
// HTTP surface without a real binary.
type attachFactory struct {
	srv *httptest.Server
}

func (f *attachFactory) Create(ctx context.Context, alias, execPath string, args []string) (*child.Handle, error) {
	return child.Attach(alias, f.srv.URL, args), nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	t.Cleanup(upstream.Close)

	cat := catalogue.NewMemoryService()
	cat.PutFile(catalogue.ModelRef{Repo: "r", Filename: "llama", Snapshot: "s"}, "/models/llama.gguf")
	cat.PutUserAlias(catalogue.Alias{Name: "llama", Model: catalogue.ModelRef{Repo: "r", Filename: "llama", Snapshot: "s"}})

	e := engine.New(cat, settings.NewStaticService(), &attachFactory{srv: upstream}, "/bin/llama-server")
	r := router.New(cat, e, nil)
	state := routerstate.New(e, r)

	s := NewServer(state, metrics.NewCollector(), argflags.NewStore(nil))
	return s, upstream
}

func TestHandleHealthz_ReportsUnloadedInitially(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["loaded"])
}

func TestHandleModels_ListsCatalogueNames(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Models []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Models, 1)
	assert.Equal(t, "llama", body.Models[0].ID)
}

func TestHandleChatCompletions_NonStreamingForwardsUpstreamBody(t *testing.T) {
	s, _ := newTestServer(t)

	reqBody := `{"model":"llama","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatcmpl-1")
}

func TestHandleChatCompletions_MissingModelIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	reqBody := `{"messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"]["message"], "model")
}

func TestHandleChatCompletions_EmptyMessagesIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	reqBody := `{"model":"llama","messages":[]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatCompletions_UnknownModelIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	reqBody := `{"model":"does-not-exist","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleChatCompletions_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleMetrics_JSONSnapshot(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
}

func TestHandleFeatures_GetThenPost(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []argflags.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.NotEmpty(t, infos)
	for _, i := range infos {
		assert.False(t, i.Enabled)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/features", strings.NewReader(`{"feature":"flash_attn","enabled":true}`))
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.flags.IsEnabled(argflags.FlashAttn))
}

func TestHandleFeatures_UnknownFeatureIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/features", strings.NewReader(`{"feature":"not_a_flag","enabled":true}`))
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
