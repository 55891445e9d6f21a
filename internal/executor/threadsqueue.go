package executor

// threadsQueue is a registry of idle worker threads. It keeps every thread
// number in a fixed array, partitioned so the first size entries are the
// queued (idle) threads; membership tests and removals are O(1) via the
// position index. Guarded externally by the executor's task queue mutex.
type threadsQueue struct {
	threads []int
	pos     []int
	size    int
}

func (q *threadsQueue) init(numThreads int) {
	q.threads = make([]int, numThreads)
	q.pos = make([]int, numThreads)
	for i := 0; i < numThreads; i++ {
		q.threads[i] = i
		q.pos[i] = i
	}
	q.size = 0
}

func (q *threadsQueue) has(threadNum int) bool {
	return q.pos[threadNum] < q.size
}

// push registers a thread as idle.
func (q *threadsQueue) push(threadNum int) {
	if q.has(threadNum) {
		panic("executor: thread is already registered as idle")
	}
	q.swap(q.pos[threadNum], q.size)
	q.size++
}

// pop removes a specific idle thread.
func (q *threadsQueue) pop(threadNum int) {
	if !q.has(threadNum) {
		panic("executor: thread is not registered as idle")
	}
	q.size--
	q.swap(q.pos[threadNum], q.size)
}

// popAny removes and returns any idle thread.
func (q *threadsQueue) popAny() int {
	if q.size == 0 {
		panic("executor: no idle threads to wake")
	}
	q.size--
	return q.threads[q.size]
}

func (q *threadsQueue) empty() bool {
	return q.size == 0
}

func (q *threadsQueue) count() int {
	return q.size
}

func (q *threadsQueue) swap(i, j int) {
	a, b := q.threads[i], q.threads[j]
	q.threads[i], q.threads[j] = b, a
	q.pos[a], q.pos[b] = j, i
}
