package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func connectedPair(t *testing.T) (*OutputPort, *InputPort) {
	t.Helper()
	out := NewOutputPort()
	in := NewInputPort()
	require.NoError(t, Connect(out, in))
	return out, in
}

func TestConnect(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		out, in := connectedPair(t)
		assert.True(t, out.Connected())
		assert.True(t, in.Connected())
		assert.Same(t, in, out.Peer())
		assert.Same(t, out, in.Peer())
	})

	t.Run("error cases", func(t *testing.T) {
		out, in := connectedPair(t)

		err := Connect(out, NewInputPort())
		assert.Error(t, err)

		err = Connect(NewOutputPort(), in)
		assert.Error(t, err)
	})

	t.Run("disconnected ports", func(t *testing.T) {
		assert.False(t, NewOutputPort().Connected())
		assert.False(t, NewInputPort().Connected())
		assert.Nil(t, NewOutputPort().Peer())
		assert.Nil(t, NewInputPort().Peer())
	})
}

func TestPortHandoff(t *testing.T) {
	out, in := connectedPair(t)
	chunk := NewChunk(cty.NumberIntVal(1), cty.NumberIntVal(2))

	// No demand yet: push must be refused.
	assert.False(t, out.CanPush())
	assert.False(t, out.Push(chunk))
	assert.False(t, in.HasData())

	in.SetNeeded()
	assert.True(t, out.CanPush())
	assert.True(t, out.Push(chunk))
	assert.False(t, out.CanPush())
	assert.True(t, in.HasData())

	got := in.Pull()
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())

	// Pull re-arms demand.
	assert.True(t, out.CanPush())
	assert.Nil(t, in.Pull())
}

func TestPortFinish(t *testing.T) {
	t.Run("from output side", func(t *testing.T) {
		out, in := connectedPair(t)
		out.Finish()
		assert.True(t, out.IsFinished())
		assert.True(t, in.IsFinished())
		assert.False(t, out.CanPush())
	})

	t.Run("from input side", func(t *testing.T) {
		out, in := connectedPair(t)
		in.SetNeeded()
		in.Close()
		assert.True(t, in.IsFinished())
		assert.True(t, out.IsFinished())
		assert.False(t, out.Push(NewChunk()))
	})

	t.Run("set needed after finish is a no-op", func(t *testing.T) {
		out, in := connectedPair(t)
		out.Finish()
		before := in.UpdateInfo().Version()
		in.SetNeeded()
		assert.Equal(t, before, in.UpdateInfo().Version())
		assert.True(t, in.IsFinished())
	})
}

func TestPortVersions(t *testing.T) {
	out, in := connectedPair(t)

	assert.Zero(t, in.UpdateInfo().Version())
	assert.Zero(t, out.UpdateInfo().Version())

	in.SetNeeded()
	assert.Equal(t, uint64(1), in.UpdateInfo().Version())
	in.SetNeeded() // not idle anymore, no bump
	assert.Equal(t, uint64(1), in.UpdateInfo().Version())

	out.Push(NewChunk(cty.True))
	assert.Equal(t, uint64(1), out.UpdateInfo().Version())

	in.Pull()
	assert.Equal(t, uint64(2), in.UpdateInfo().Version())

	out.Finish()
	assert.Equal(t, uint64(2), out.UpdateInfo().Version())
	out.Finish() // already finished, no bump
	assert.Equal(t, uint64(2), out.UpdateInfo().Version())
}

func TestPortStateString(t *testing.T) {
	assert.Equal(t, "idle", PortIdle.String())
	assert.Equal(t, "need-data", PortNeedData.String())
	assert.Equal(t, "has-data", PortHasData.String())
	assert.Equal(t, "finished", PortFinished.String())
}
