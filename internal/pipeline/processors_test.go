package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func numbers(vals ...int64) []cty.Value {
	out := make([]cty.Value, len(vals))
	for i, v := range vals {
		out[i] = cty.NumberIntVal(v)
	}
	return out
}

// prepare runs Prepare and fails the test on an unexpected error.
func prepare(t *testing.T, p Processor) Status {
	t.Helper()
	st, err := p.Prepare()
	require.NoError(t, err)
	return st
}

func TestSource(t *testing.T) {
	t.Run("emits values in chunks", func(t *testing.T) {
		src := NewValuesSource("numbers", numbers(1, 2, 3), 2)
		in := NewInputPort()
		require.NoError(t, Connect(src.Outputs()[0], in))

		// No demand yet.
		assert.Equal(t, StatusPortFull, prepare(t, src))

		in.SetNeeded()
		assert.Equal(t, StatusReady, prepare(t, src))
		require.NoError(t, src.Work())

		assert.Equal(t, StatusPortFull, prepare(t, src))
		chunk := in.Pull()
		require.NotNil(t, chunk)
		assert.Equal(t, numbers(1, 2), chunk.Values)

		assert.Equal(t, StatusReady, prepare(t, src))
		require.NoError(t, src.Work())
		assert.Equal(t, StatusPortFull, prepare(t, src))
		chunk = in.Pull()
		require.NotNil(t, chunk)
		assert.Equal(t, numbers(3), chunk.Values)

		// Exhaustion: one more generation round, then finished.
		assert.Equal(t, StatusReady, prepare(t, src))
		require.NoError(t, src.Work())
		assert.Equal(t, StatusFinished, prepare(t, src))
		assert.True(t, in.IsFinished())
	})

	t.Run("finishes on cancel", func(t *testing.T) {
		src := NewValuesSource("numbers", numbers(1), 1)
		in := NewInputPort()
		require.NoError(t, Connect(src.Outputs()[0], in))

		src.Cancel()
		assert.Equal(t, StatusFinished, prepare(t, src))
		assert.True(t, in.IsFinished())
	})

	t.Run("finishes when downstream closes", func(t *testing.T) {
		src := NewValuesSource("numbers", numbers(1, 2), 1)
		in := NewInputPort()
		require.NoError(t, Connect(src.Outputs()[0], in))

		in.Close()
		assert.Equal(t, StatusFinished, prepare(t, src))
	})
}

func TestTransform(t *testing.T) {
	double := NewValueTransform("double", func(v cty.Value) (cty.Value, error) {
		n, _ := v.AsBigFloat().Int64()
		return cty.NumberIntVal(n * 2), nil
	})
	upstream := NewOutputPort()
	downstream := NewInputPort()
	require.NoError(t, Connect(upstream, double.Inputs()[0]))
	require.NoError(t, Connect(double.Outputs()[0], downstream))

	// First prepare raises demand upstream.
	assert.Equal(t, StatusNeedData, prepare(t, double))
	assert.True(t, upstream.CanPush())

	upstream.Push(NewChunk(numbers(3, 4)...))
	assert.Equal(t, StatusReady, prepare(t, double))
	require.NoError(t, double.Work())

	// Output pending, downstream not ready.
	assert.Equal(t, StatusPortFull, prepare(t, double))
	downstream.SetNeeded()
	assert.Equal(t, StatusNeedData, prepare(t, double))

	chunk := downstream.Pull()
	require.NotNil(t, chunk)
	assert.Equal(t, numbers(6, 8), chunk.Values)

	// Upstream finishes; transform propagates.
	upstream.Finish()
	assert.Equal(t, StatusFinished, prepare(t, double))
	assert.True(t, downstream.IsFinished())
}

func TestCollectSink(t *testing.T) {
	sink := NewCollectSink("out")
	upstream := NewOutputPort()
	require.NoError(t, Connect(upstream, sink.Inputs()[0]))

	assert.Equal(t, StatusNeedData, prepare(t, sink))
	upstream.Push(NewChunk(numbers(7, 8)...))

	assert.Equal(t, StatusReady, prepare(t, sink))
	require.NoError(t, sink.Work())
	assert.Equal(t, numbers(7, 8), sink.Values())

	upstream.Finish()
	assert.Equal(t, StatusFinished, prepare(t, sink))
}

func TestUnion(t *testing.T) {
	t.Run("forwards from any input", func(t *testing.T) {
		u := NewUnion("merge", 2)
		left := NewOutputPort()
		right := NewOutputPort()
		downstream := NewInputPort()
		require.NoError(t, Connect(left, u.Inputs()[0]))
		require.NoError(t, Connect(right, u.Inputs()[1]))
		require.NoError(t, Connect(u.Outputs()[0], downstream))

		downstream.SetNeeded()
		assert.Equal(t, StatusNeedData, prepare(t, u))
		assert.True(t, left.CanPush())
		assert.True(t, right.CanPush())

		right.Push(NewChunk(numbers(5)...))
		assert.Equal(t, StatusPortFull, prepare(t, u))
		chunk := downstream.Pull()
		require.NotNil(t, chunk)
		assert.Equal(t, numbers(5), chunk.Values)

		// Both inputs finish; union finishes.
		left.Finish()
		right.Finish()
		assert.Equal(t, StatusFinished, prepare(t, u))
		assert.True(t, downstream.IsFinished())
	})

	t.Run("closes inputs on cancel", func(t *testing.T) {
		u := NewUnion("merge", 1)
		upstream := NewOutputPort()
		downstream := NewInputPort()
		require.NoError(t, Connect(upstream, u.Inputs()[0]))
		require.NoError(t, Connect(u.Outputs()[0], downstream))

		u.Cancel()
		assert.Equal(t, StatusFinished, prepare(t, u))
		assert.True(t, upstream.IsFinished())
		assert.True(t, downstream.IsFinished())
	})
}

func TestExpandingUnion(t *testing.T) {
	u := NewExpandingUnion("merge", func() ([]Processor, error) {
		return []Processor{
			NewValuesSource("a", numbers(1), 1),
			NewValuesSource("b", numbers(2), 1),
		}, nil
	})
	downstream := NewInputPort()
	require.NoError(t, Connect(u.Outputs()[0], downstream))
	require.Empty(t, u.Inputs())

	assert.Equal(t, StatusExpandPipeline, prepare(t, u))

	procs, err := u.ExpandPipeline()
	require.NoError(t, err)
	require.Len(t, procs, 2)
	require.Len(t, u.Inputs(), 2)
	for i, p := range procs {
		assert.Same(t, u.Inputs()[i], p.Outputs()[0].Peer())
	}

	// Expansion requested exactly once.
	assert.Equal(t, StatusNeedData, prepare(t, u))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "need-data", StatusNeedData.String())
	assert.Equal(t, "port-full", StatusPortFull.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "finished", StatusFinished.String())
	assert.Equal(t, "async", StatusAsync.String())
	assert.Equal(t, "expand-pipeline", StatusExpandPipeline.String())
}
