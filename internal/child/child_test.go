package child

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Create's full spawn-and-poll path requires a real llama.cpp-compatible
// binary and is exercised by internal/engine's tests via a fake Factory
// instead; here we cover the parts of Handle that don't require a live
// process.

func TestHandle_GetServerArgsAndAlias(t *testing.T) {
	h := &Handle{alias: "my-model", serverArgs: []string{"--ctx-size", "4096"}}

	assert.Equal(t, "my-model", h.Alias())
	assert.Equal(t, ServerArgsInfo{Alias: "my-model", ServerArgs: []string{"--ctx-size", "4096"}}, h.GetServerArgs())
}

func TestHandle_ShutdownNilProcessIsNoOp(t *testing.T) {
	h := &Handle{alias: "my-model"}
	assert.NotPanics(t, func() { h.Shutdown() })
}

func TestProcessFactory_DefaultHost(t *testing.T) {
	f := &ProcessFactory{}
	assert.Equal(t, "127.0.0.1", f.host())
}

func TestProcessFactory_AllocatePortReturnsFreePort(t *testing.T) {
	f := &ProcessFactory{}
	port, err := f.allocatePort()
	assert.NoError(t, err)
	assert.Greater(t, port, 0)
}
