package router

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/apierr"
	"github.com/modelgate/modelgate/internal/catalogue"
	"github.com/modelgate/modelgate/internal/streamio"
)

type recordingLocal struct {
	calledAlias catalogue.Alias
	called      bool
}

func (l *recordingLocal) ChatCompletions(ctx context.Context, body map[string]any, alias catalogue.Alias) (*streamio.Stream, error) {
	l.called = true
	l.calledAlias = alias
	return streamio.New(http.StatusOK, http.Header{"Content-Type": []string{"application/json"}}, nil, nil), nil
}

type recordingRemote struct {
	baseURL    string
	credential string
	body       map[string]any
}

func (r *recordingRemote) ChatCompletions(ctx context.Context, baseURL, credential string, body []byte) (*streamio.Stream, error) {
	r.baseURL = baseURL
	r.credential = credential
	_ = json.Unmarshal(body, &r.body)
	return streamio.New(http.StatusOK, http.Header{}, nil, nil), nil
}

func TestChatCompletions_PrecedenceUserOverModel(t *testing.T) {
	cat := catalogue.NewMemoryService()
	cat.PutModelAlias(catalogue.Alias{Name: "foo"})
	cat.PutUserAlias(catalogue.Alias{Name: "foo"})

	local := &recordingLocal{}
	rtr := New(cat, local, &recordingRemote{})

	_, err := rtr.ChatCompletions(context.Background(), map[string]any{"model": "foo"})
	require.NoError(t, err)
	assert.True(t, local.called)
	assert.Equal(t, catalogue.AliasUser, local.calledAlias.Kind)
}

func TestChatCompletions_RemoteRewritesModelAndAuth(t *testing.T) {
	// S8
	cat := catalogue.NewMemoryService()
	cat.PutRemoteAlias(catalogue.RemoteAlias{Name: "openai-proxy", BaseURL: "https://proxy.example/v1", Models: []string{"gpt-4o"}}, func() (string, error) {
		return "sk-test", nil
	})

	remote := &recordingRemote{}
	rtr := New(cat, &recordingLocal{}, remote)

	_, err := rtr.ChatCompletions(context.Background(), map[string]any{"model": "gpt-4o", "stream": true})
	require.NoError(t, err)

	assert.Equal(t, "https://proxy.example/v1", remote.baseURL)
	assert.Equal(t, "sk-test", remote.credential)
	assert.Equal(t, "gpt-4o", remote.body["model"])
	assert.Equal(t, true, remote.body["stream"])
}

func TestChatCompletions_DispatchObserverSeesDestinationKind(t *testing.T) {
	cat := catalogue.NewMemoryService()
	cat.PutUserAlias(catalogue.Alias{Name: "local-model"})
	cat.PutRemoteAlias(catalogue.RemoteAlias{Name: "proxy", BaseURL: "https://proxy.example/v1", Models: []string{"gpt-4o"}}, func() (string, error) {
		return "sk-test", nil
	})

	var seen []string
	rtr := New(cat, &recordingLocal{}, &recordingRemote{}, WithDispatchObserver(func(destination string) {
		seen = append(seen, destination)
	}))

	_, err := rtr.ChatCompletions(context.Background(), map[string]any{"model": "local-model"})
	require.NoError(t, err)
	_, err = rtr.ChatCompletions(context.Background(), map[string]any{"model": "gpt-4o"})
	require.NoError(t, err)

	assert.Equal(t, []string{"local", "remote"}, seen)
}

func TestChatCompletions_ModelNotFound(t *testing.T) {
	cat := catalogue.NewMemoryService()
	rtr := New(cat, &recordingLocal{}, &recordingRemote{})

	_, err := rtr.ChatCompletions(context.Background(), map[string]any{"model": "ghost"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindModelNotFound, apierr.Classify(err))
}

func TestChatCompletions_MissingModelField(t *testing.T) {
	cat := catalogue.NewMemoryService()
	rtr := New(cat, &recordingLocal{}, &recordingRemote{})

	_, err := rtr.ChatCompletions(context.Background(), map[string]any{})
	require.Error(t, err)
}
