package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_ModelLoadUnloadCounters(t *testing.T) {
	c := NewCollector()

	c.RecordModelLoad()
	c.RecordModelLoad()
	c.RecordModelUnload()

	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.ModelLoads)
	assert.EqualValues(t, 1, snap.ModelUnloads)
}

func TestCollector_SetLoadedAlias(t *testing.T) {
	c := NewCollector()
	assert.Empty(t, c.Snapshot().LoadedAlias)

	c.SetLoadedAlias("b")
	assert.Equal(t, "b", c.Snapshot().LoadedAlias)

	c.SetLoadedAlias("c")
	assert.Equal(t, "c", c.Snapshot().LoadedAlias)
}

func TestCollector_RecordDispatchSplitsLocalAndRemote(t *testing.T) {
	c := NewCollector()

	c.RecordDispatch("local")
	c.RecordDispatch("local")
	c.RecordDispatch("remote")
	c.RecordDispatch("unknown") // ignored: neither local nor remote

	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.LocalRequests)
	assert.EqualValues(t, 1, snap.RemoteRequests)
}
