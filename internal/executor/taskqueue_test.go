package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateQueue(t *testing.T) {
	var q stateQueue
	assert.True(t, q.empty())

	a := &executionState{pid: 0}
	b := &executionState{pid: 1}
	q.push(a)
	q.push(b)
	assert.False(t, q.empty())

	assert.Same(t, a, q.pop())
	assert.Same(t, b, q.pop())
	assert.True(t, q.empty())
}

func TestTaskQueue(t *testing.T) {
	t.Run("pop prefers own queue", func(t *testing.T) {
		var q taskQueue
		q.init(3)

		mine := &executionState{pid: 0}
		other := &executionState{pid: 1}
		q.push(other, 0)
		q.push(mine, 1)
		assert.Equal(t, 2, q.len())

		assert.Same(t, mine, q.pop(1))
		assert.Equal(t, 1, q.len())
	})

	t.Run("pop steals with wraparound", func(t *testing.T) {
		var q taskQueue
		q.init(3)

		s := &executionState{pid: 0}
		q.push(s, 0)

		// Thread 2 has nothing; the scan wraps to thread 0.
		assert.Same(t, s, q.pop(2))
		assert.True(t, q.empty())
	})

	t.Run("anyThreadWithTasks panics when empty", func(t *testing.T) {
		var q taskQueue
		q.init(2)
		assert.Panics(t, func() { q.anyThreadWithTasks(0) })
	})

	t.Run("quota accounting", func(t *testing.T) {
		var q taskQueue
		q.init(2)

		plain := &executionState{pid: 0}
		quota := &executionState{pid: 1, hasQuota: true}
		q.push(plain, 0)
		q.push(quota, 1)
		assert.Equal(t, 1, q.quotaCount())

		require.Same(t, plain, q.pop(0))
		assert.Equal(t, 1, q.quotaCount())
		require.Same(t, quota, q.pop(0))
		assert.Equal(t, 0, q.quotaCount())
	})
}

func TestThreadsQueue(t *testing.T) {
	t.Run("push pop roundtrip", func(t *testing.T) {
		var q threadsQueue
		q.init(3)
		assert.True(t, q.empty())

		q.push(1)
		q.push(2)
		assert.Equal(t, 2, q.count())
		assert.True(t, q.has(1))
		assert.True(t, q.has(2))
		assert.False(t, q.has(0))

		q.pop(1)
		assert.False(t, q.has(1))
		assert.True(t, q.has(2))

		got := q.popAny()
		assert.Equal(t, 2, got)
		assert.True(t, q.empty())
	})

	t.Run("panics on misuse", func(t *testing.T) {
		var q threadsQueue
		q.init(2)

		q.push(0)
		assert.Panics(t, func() { q.push(0) })
		assert.Panics(t, func() { q.pop(1) })

		q.pop(0)
		assert.Panics(t, func() { q.popAny() })
	})
}
