package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/pipeline"
)

// Executor drives a fully connected set of processors to completion across a
// fixed pool of worker goroutines. The graph is built once, in New; Execute
// may then be called exactly once.
type Executor struct {
	// processors is append-only: expansion adds entries, nothing is ever
	// removed or reordered, so node ids stay stable for the whole run.
	processors    []pipeline.Processor
	processorsMu  sync.Mutex
	processorsMap map[pipeline.Processor]uint64

	// Port ownership, mutated only at build time and under the expansion
	// barrier.
	inputOwners  map[*pipeline.InputPort]portRef
	outputOwners map[*pipeline.OutputPort]portRef

	// nodes is replaced copy-on-write when the graph grows.
	nodes atomic.Pointer[[]*node]

	taskQueue    taskQueue
	threadsQueue threadsQueue
	taskQueueMu  sync.Mutex

	started   atomic.Bool
	cancelled atomic.Bool
	finished  atomic.Bool

	numProcessingExecutors atomic.Int64
	numAsyncJobs           atomic.Int64
	asyncWG                sync.WaitGroup

	expandTask atomic.Pointer[expandPipelineTask]

	contexts []*executorContext

	logger *slog.Logger
}

// executorContext is the per-thread parking spot for the sleep/wake protocol.
type executorContext struct {
	mu       sync.Mutex
	cond     *sync.Cond
	wakeFlag bool
}

// New builds and validates the execution graph for the given processor set.
// It fails with a structural error if any port is left dangling or connected
// to a processor outside the set. The executor does not own the processors;
// it only keeps references for the lifetime of the run.
func New(processors []pipeline.Processor) (*Executor, error) {
	if len(processors) == 0 {
		return nil, errors.New("executor: pipeline has no processors")
	}

	e := &Executor{
		processors:    slices.Clone(processors),
		processorsMap: make(map[pipeline.Processor]uint64, len(processors)),
		inputOwners:   make(map[*pipeline.InputPort]portRef),
		outputOwners:  make(map[*pipeline.OutputPort]portRef),
	}
	if err := e.buildGraph(); err != nil {
		return nil, fmt.Errorf("building pipeline graph: %w", err)
	}

	seedable := false
	for _, n := range *e.nodes.Load() {
		if len(n.directEdges) == 0 {
			seedable = true
			break
		}
	}
	if !seedable {
		return nil, errors.New("executor: pipeline has no sink to seed execution from")
	}
	return e, nil
}

// Processors returns a snapshot of the processor set, including everything
// added by expansions. Intended for introspection after Execute returns.
func (e *Executor) Processors() []pipeline.Processor {
	e.processorsMu.Lock()
	defer e.processorsMu.Unlock()
	return slices.Clone(e.processors)
}

// QueuedQuotaTasks returns how many currently queued tasks are quota-bearing.
// External accounting only; the value never affects scheduling order.
func (e *Executor) QueuedQuotaTasks() int {
	e.taskQueueMu.Lock()
	defer e.taskQueueMu.Unlock()
	return e.taskQueue.quotaCount()
}

// Cancel asks the pipeline to stop as soon as cooperatively possible. Safe to
// call from any goroutine at any time; repeated calls are no-ops. In-flight
// jobs run to completion, no new jobs are scheduled.
func (e *Executor) Cancel() {
	if e.cancelled.Swap(true) {
		return
	}
	e.finish()

	e.processorsMu.Lock()
	procs := slices.Clone(e.processors)
	e.processorsMu.Unlock()
	for _, p := range procs {
		p.Cancel()
	}
}

// Execute runs the pipeline to completion on numThreads worker goroutines.
// It returns the first captured fault, after every worker has stopped; a
// context cancellation surfaces as the context's error. Must be called once.
func (e *Executor) Execute(ctx context.Context, numThreads int) error {
	if numThreads < 1 {
		return fmt.Errorf("executor: numThreads must be at least 1, got %d", numThreads)
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("executor: Execute must be called exactly once")
	}

	logger := ctxlog.FromContext(ctx).With("component", "executor")
	e.logger = logger

	stop := context.AfterFunc(ctx, e.Cancel)
	defer stop()

	// Cancel may run from another goroutine at any moment, finish() included,
	// so the contexts slice is built fully before it is published and every
	// field finish() touches is handed over under the task queue mutex.
	contexts := make([]*executorContext, numThreads)
	for i := range contexts {
		c := &executorContext{}
		c.cond = sync.NewCond(&c.mu)
		contexts[i] = c
	}
	e.taskQueueMu.Lock()
	e.taskQueue.init(numThreads)
	e.threadsQueue.init(numThreads)
	e.contexts = contexts
	e.taskQueueMu.Unlock()

	logger.Debug("Seeding initial ready set.", "nodes", e.graphSize(), "threads", numThreads)
	e.initializeExecution(numThreads)

	g := new(errgroup.Group)
	for i := 0; i < numThreads; i++ {
		i := i
		g.Go(func() error {
			e.executeSingleThread(i, numThreads)
			return nil
		})
	}
	_ = g.Wait()
	e.asyncWG.Wait()
	logger.Debug("All workers stopped.")

	e.finalize()

	if err := e.firstFault(); err != nil {
		return err
	}
	if e.cancelled.Load() && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// initializeExecution prepares every childless node (no forward edges) once
// and distributes the resulting ready set round-robin across the thread
// queues. Demand raised by those first prepares cascades backwards through
// the graph via edge versions.
func (e *Executor) initializeExecution(numThreads int) {
	var stack []uint64
	size := e.graphSize()
	for pid := uint64(0); pid < size; pid++ {
		n := e.node(pid)
		if len(n.directEdges) == 0 {
			n.statusMu.Lock()
			n.status = statusPreparing
			n.statusMu.Unlock()
			stack = append(stack, pid)
		}
	}

	var queue stateQueue
	for len(stack) > 0 {
		pid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e.node(pid).statusMu.Lock()
		if !e.prepareProcessor(pid, 0, &queue) {
			e.finish()
			return
		}
	}

	e.taskQueueMu.Lock()
	next := 0
	for !queue.empty() {
		e.taskQueue.push(queue.pop(), next)
		next++
		if next >= numThreads {
			next = 0
		}
	}
	e.taskQueueMu.Unlock()
}

// executeSingleThread is the per-worker main loop: pop a task (stealing if
// needed), run its job, re-prepare the node and its dirtied neighbours, park
// when idle, and detect global finish.
func (e *Executor) executeSingleThread(threadNum, numThreads int) {
	e.logger.Debug("Worker started.", "thread", threadNum)
	var state *executionState

	for !e.finished.Load() {
		// Find a task, stealing from other threads' queues if ours is
		// empty, or park until one shows up.
		for state == nil && !e.finished.Load() {
			e.taskQueueMu.Lock()

			if !e.taskQueue.empty() {
				state = e.taskQueue.pop(threadNum)

				// More work is queued: hand a wakeup to another
				// idle thread, preferring the owner of the next
				// non-empty queue.
				if !e.taskQueue.empty() && !e.threadsQueue.empty() {
					next := threadNum + 1
					if next >= numThreads {
						next = 0
					}
					threadToWake := e.taskQueue.anyThreadWithTasks(next)
					if e.threadsQueue.has(threadToWake) {
						e.threadsQueue.pop(threadToWake)
					} else {
						threadToWake = e.threadsQueue.popAny()
					}
					e.taskQueueMu.Unlock()
					e.wakeUpExecutor(threadToWake)
				} else {
					e.taskQueueMu.Unlock()
				}
				break
			}

			// Global finish: every other thread is idle, nobody is
			// mid-processing and no async job is in flight.
			if e.threadsQueue.count()+1 == numThreads &&
				e.numProcessingExecutors.Load() == 0 &&
				e.numAsyncJobs.Load() == 0 {
				e.taskQueueMu.Unlock()
				e.finish()
				break
			}

			e.threadsQueue.push(threadNum)
			e.taskQueueMu.Unlock()

			c := e.contexts[threadNum]
			c.mu.Lock()
			for !e.finished.Load() && !c.wakeFlag {
				c.cond.Wait()
			}
			c.wakeFlag = false
			c.mu.Unlock()
		}

		if state == nil || e.finished.Load() {
			break
		}

		for state != nil {
			if e.finished.Load() {
				break
			}

			addJob(state)
			state.job()

			if state.err != nil {
				e.Cancel()
			}
			if e.finished.Load() {
				break
			}

			var queue stateQueue

			e.numProcessingExecutors.Add(1)
			for task := e.expandTask.Load(); task != nil; task = e.expandTask.Load() {
				e.doExpandPipeline(task, true)
			}

			n := e.node(state.pid)
			n.statusMu.Lock()
			if !e.prepareProcessor(state.pid, threadNum, &queue) {
				e.finish()
			}

			// Keep one follow-up task local, share the rest.
			state = nil
			if !queue.empty() {
				state = queue.pop()
			}
			if !queue.empty() {
				e.taskQueueMu.Lock()
				for !queue.empty() && !e.finished.Load() {
					e.taskQueue.push(queue.pop(), threadNum)
				}
				wake := -1
				if !e.threadsQueue.empty() {
					wake = e.threadsQueue.popAny()
				}
				e.taskQueueMu.Unlock()
				if wake >= 0 {
					e.wakeUpExecutor(wake)
				}
			}

			e.numProcessingExecutors.Add(-1)
			for task := e.expandTask.Load(); task != nil; task = e.expandTask.Load() {
				e.doExpandPipeline(task, false)
			}
		}
	}
	e.logger.Debug("Worker finished.", "thread", threadNum)
}

// addJob rebinds the node's job closure, capturing faults and panics into
// the deferred exception slot instead of letting them cross the goroutine
// boundary.
func addJob(state *executionState) {
	state.job = func() {
		defer func() {
			if r := recover(); r != nil {
				state.err = fmt.Errorf("processor %q panicked: %v", state.processor.Name(), r)
			}
		}()
		start := time.Now()
		err := state.processor.Work()
		state.executionTime.Add(int64(time.Since(start)))
		state.numExecutedJobs.Add(1)
		if err != nil {
			state.err = fmt.Errorf("processor %q: %w", state.processor.Name(), err)
		}
	}
}

// prepareProcessor invokes the node's prepare, applies the state machine
// transition, and chases every dirtied edge into the neighbours. The caller
// must hold the node's status mutex; it is released before neighbours are
// visited. Returns false when the run must stop.
func (e *Executor) prepareProcessor(pid uint64, threadNum int, queue *stateQueue) bool {
	n := e.node(pid)
	state := n.state

	start := time.Now()
	st, err := n.processor.Prepare()
	state.preparationTime.Add(int64(time.Since(start)))
	n.lastPrepareStatus = st

	fail := func(failErr error) bool {
		state.err = failErr
		n.status = statusFinished
		n.statusMu.Unlock()
		e.Cancel()
		return false
	}

	if err != nil {
		return fail(fmt.Errorf("preparing processor %q: %w", n.processor.Name(), err))
	}

	needExpand := false
	startAsync := false
	switch st {
	case pipeline.StatusNeedData, pipeline.StatusPortFull:
		n.status = statusIdle
	case pipeline.StatusFinished:
		n.status = statusFinished
	case pipeline.StatusReady:
		n.status = statusExecuting
		queue.push(state)
	case pipeline.StatusAsync:
		n.status = statusAsync
		startAsync = true
	case pipeline.StatusExpandPipeline:
		// The node stays preparing: it is owned right through the
		// expansion and re-prepared afterwards.
		needExpand = true
	default:
		return fail(fmt.Errorf("processor %q returned unknown prepare status %v", n.processor.Name(), st))
	}

	dirty := n.dirtyEdges()
	n.statusMu.Unlock()

	if startAsync {
		e.numAsyncJobs.Add(1)
		e.asyncWG.Add(1)
		go e.runAsyncJob(n)
	}

	// Expansion first: the rendezvous must not wait behind neighbour
	// preparation, and the pre-expansion dirty edges stay valid after it.
	if needExpand {
		if !e.expandFrom(pid, threadNum, queue) {
			return false
		}
	}

	for _, ed := range dirty {
		if !e.tryAddProcessorToStackIfUpdated(ed, threadNum, queue) {
			return false
		}
	}
	return true
}

// tryAddProcessorToStackIfUpdated claims the node a dirty edge points to and
// prepares it if it is idle. We own the edge; the target node may be touched
// concurrently, hence the lock.
func (e *Executor) tryAddProcessorToStackIfUpdated(ed *edge, threadNum int, queue *stateQueue) bool {
	n := e.node(ed.to)
	n.statusMu.Lock()

	if n.status != statusIdle {
		n.statusMu.Unlock()
		return true
	}

	n.status = statusPreparing
	return e.prepareProcessor(ed.to, threadNum, queue)
}

// runAsyncJob executes a node's job outside the worker pool, then re-enters
// the regular scheduling path as a temporary processing participant.
func (e *Executor) runAsyncJob(n *node) {
	defer e.asyncWG.Done()

	addJob(n.state)
	n.state.job()
	if n.state.err != nil {
		e.Cancel()
	}

	var queue stateQueue

	e.numProcessingExecutors.Add(1)
	for task := e.expandTask.Load(); task != nil; task = e.expandTask.Load() {
		e.doExpandPipeline(task, true)
	}

	if !e.finished.Load() {
		n.statusMu.Lock()
		if !e.prepareProcessor(n.id, 0, &queue) {
			e.finish()
		}
	}

	if !queue.empty() {
		e.taskQueueMu.Lock()
		for !queue.empty() && !e.finished.Load() {
			e.taskQueue.push(queue.pop(), 0)
		}
		wake := -1
		if !e.threadsQueue.empty() {
			wake = e.threadsQueue.popAny()
		}
		e.taskQueueMu.Unlock()
		if wake >= 0 {
			e.wakeUpExecutor(wake)
		}
	}

	e.numProcessingExecutors.Add(-1)
	for task := e.expandTask.Load(); task != nil; task = e.expandTask.Load() {
		e.doExpandPipeline(task, false)
	}

	e.numAsyncJobs.Add(-1)

	// The graph may have just become fully finished; nudge an idle thread
	// so the finish check runs.
	e.taskQueueMu.Lock()
	wake := -1
	if !e.threadsQueue.empty() {
		wake = e.threadsQueue.popAny()
	}
	e.taskQueueMu.Unlock()
	if wake >= 0 {
		e.wakeUpExecutor(wake)
	}
}

// finish flips the finished flag and wakes everything that might be parked:
// idle workers and any pending expansion barrier.
func (e *Executor) finish() {
	e.taskQueueMu.Lock()
	e.finished.Store(true)
	contexts := e.contexts
	e.taskQueueMu.Unlock()

	for _, c := range contexts {
		c.mu.Lock()
		c.wakeFlag = true
		c.mu.Unlock()
		c.cond.Signal()
	}

	if task := e.expandTask.Load(); task != nil {
		task.mu.Lock()
		task.mu.Unlock()
		task.cond.Broadcast()
	}
}

func (e *Executor) wakeUpExecutor(threadNum int) {
	c := e.contexts[threadNum]
	c.mu.Lock()
	c.wakeFlag = true
	c.mu.Unlock()
	c.cond.Signal()
}

// finalize forces every node terminal after a cancelled run. No worker is
// alive at this point, so the sweep is unguarded by ownership.
func (e *Executor) finalize() {
	if !e.cancelled.Load() {
		return
	}
	size := e.graphSize()
	for pid := uint64(0); pid < size; pid++ {
		n := e.node(pid)
		n.statusMu.Lock()
		n.status = statusFinished
		n.statusMu.Unlock()
	}
}

// firstFault returns the first captured fault in node order. Later faults
// stay in their execution states for diagnostics but are not surfaced.
func (e *Executor) firstFault() error {
	size := e.graphSize()
	for pid := uint64(0); pid < size; pid++ {
		if err := e.node(pid).state.err; err != nil {
			return err
		}
	}
	return nil
}
