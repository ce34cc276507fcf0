package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAlias_PrecedenceUserModelRemote(t *testing.T) {
	// S4: User alias foo, Model alias foo, Remote alias bar serving foo.
	svc := NewMemoryService()
	svc.PutModelAlias(Alias{Name: "foo"})
	svc.PutRemoteAlias(RemoteAlias{Name: "bar", Models: []string{"foo"}}, nil)
	svc.PutUserAlias(Alias{Name: "foo"})

	resolved, ok := svc.FindAlias("foo")
	require.True(t, ok)
	require.NotNil(t, resolved.Local)
	assert.Nil(t, resolved.Remote)
	assert.Equal(t, AliasUser, resolved.Local.Kind)
}

func TestFindAlias_ModelBeatsRemote(t *testing.T) {
	svc := NewMemoryService()
	svc.PutModelAlias(Alias{Name: "foo"})
	svc.PutRemoteAlias(RemoteAlias{Name: "bar", Models: []string{"foo"}}, nil)

	resolved, ok := svc.FindAlias("foo")
	require.True(t, ok)
	require.NotNil(t, resolved.Local)
	assert.Equal(t, AliasModel, resolved.Local.Kind)
}

func TestFindAlias_RemoteOnly(t *testing.T) {
	svc := NewMemoryService()
	svc.PutRemoteAlias(RemoteAlias{Name: "openai-proxy", Models: []string{"gpt-4o"}}, func() (string, error) {
		return "sk-test", nil
	})

	resolved, ok := svc.FindAlias("gpt-4o")
	require.True(t, ok)
	require.NotNil(t, resolved.Remote)
	assert.Equal(t, "openai-proxy", resolved.Remote.Name)
	cred, err := resolved.Remote.Credential()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cred)
}

func TestFindAlias_NotFound(t *testing.T) {
	svc := NewMemoryService()
	_, ok := svc.FindAlias("missing")
	assert.False(t, ok)
}

func TestListNames_CoversAllKinds(t *testing.T) {
	svc := NewMemoryService()
	svc.PutUserAlias(Alias{Name: "my-llama"})
	svc.PutModelAlias(Alias{Name: "catalogue-llama"})
	svc.PutRemoteAlias(RemoteAlias{Name: "openai-proxy", Models: []string{"gpt-4o", "gpt-4o-mini"}}, nil)

	names := svc.ListNames()
	assert.ElementsMatch(t, []string{"my-llama", "catalogue-llama", "gpt-4o", "gpt-4o-mini"}, names)
}

func TestFindLocalFile(t *testing.T) {
	svc := NewMemoryService()
	ref := ModelRef{Repo: "TheBloke/x", Filename: "x.gguf", Snapshot: "abc123"}
	svc.PutFile(ref, "/models/x.gguf")

	path, err := svc.FindLocalFile(ref.Repo, ref.Filename, ref.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, "/models/x.gguf", path)

	_, err = svc.FindLocalFile("other", "y.gguf", "def")
	assert.Error(t, err)
}
