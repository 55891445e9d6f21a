package executor

// stateQueue is a simple FIFO of execution states.
type stateQueue struct {
	items []*executionState
}

func (q *stateQueue) push(s *executionState) {
	q.items = append(q.items, s)
}

func (q *stateQueue) pop() *executionState {
	s := q.items[0]
	q.items = q.items[1:]
	return s
}

func (q *stateQueue) empty() bool {
	return len(q.items) == 0
}

// taskQueue holds per-thread FIFO queues of execution states awaiting their
// job run. Guarded externally by the executor's task queue mutex, which keeps
// push/pop atomic with the aggregate and quota counters.
type taskQueue struct {
	queues []stateQueue
	size   int
	quota  int
}

func (q *taskQueue) init(numThreads int) {
	q.queues = make([]stateQueue, numThreads)
}

// push enqueues onto the given thread's private queue.
func (q *taskQueue) push(s *executionState, threadNum int) {
	q.queues[threadNum].push(s)
	q.size++
	if s.hasQuota {
		q.quota++
	}
}

// anyThreadWithTasks scans the queues round-robin starting at from and
// returns the first non-empty one. Calling it on an empty task queue is a
// scheduling invariant violation.
func (q *taskQueue) anyThreadWithTasks(from int) int {
	if q.size == 0 {
		panic("executor: task queue is empty")
	}
	for i := 0; i < len(q.queues); i++ {
		if !q.queues[from].empty() {
			return from
		}
		from++
		if from >= len(q.queues) {
			from = 0
		}
	}
	panic("executor: task queue is empty")
}

// pop dequeues the front task of the first non-empty queue at or after
// threadNum, wrapping around. This is the work-stealing path: a thread with
// no private backlog drains another thread's queue.
func (q *taskQueue) pop(threadNum int) *executionState {
	s := q.queues[q.anyThreadWithTasks(threadNum)].pop()
	q.size--
	if s.hasQuota {
		q.quota--
	}
	return s
}

func (q *taskQueue) empty() bool {
	return q.size == 0
}

func (q *taskQueue) len() int {
	return q.size
}

// quotaCount returns how many queued tasks are quota-bearing. Tracked for
// external accounting only.
func (q *taskQueue) quotaCount() int {
	return q.quota
}
