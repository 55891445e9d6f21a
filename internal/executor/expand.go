package executor

import (
	"fmt"
	"sync"

	"github.com/vk/flowgrid/internal/pipeline"
)

// expandPipelineTask is the rendezvous for stop-the-world graph growth. Every
// goroutine currently inside a processing window must check in before the
// expansion runs; the last one in performs it and releases the rest.
type expandPipelineTask struct {
	pid uint64

	// stack collects the ids of nodes claimed for re-preparation after the
	// merge: the expanding node itself plus every new node whose edges
	// arrived already dirty.
	stack []uint64

	numWaiting int
	mu         sync.Mutex
	cond       *sync.Cond
}

func newExpandPipelineTask(pid uint64) *expandPipelineTask {
	t := &expandPipelineTask{pid: pid}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// expandFrom is called by the thread owning the node whose prepare returned
// the expand status. It installs the barrier (helping any expansion already
// in flight first), rides it to completion, then re-prepares every node the
// expansion claimed. Returns false when the run must stop.
func (e *Executor) expandFrom(pid uint64, threadNum int, queue *stateQueue) bool {
	task := newExpandPipelineTask(pid)

	for !e.expandTask.CompareAndSwap(nil, task) {
		if existing := e.expandTask.Load(); existing != nil {
			if !e.doExpandPipeline(existing, true) {
				return false
			}
		}
	}

	if !e.doExpandPipeline(task, true) {
		return false
	}

	stack := append(task.stack, pid)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e.node(next).statusMu.Lock()
		if !e.prepareProcessor(next, threadNum, queue) {
			return false
		}
	}
	return true
}

// doExpandPipeline parks the calling goroutine on the barrier. processing
// reports whether the caller counts towards the processing-executors total;
// only those participate in the rendezvous count. The goroutine that closes
// the count runs the expansion. Returns false when the run must stop.
func (e *Executor) doExpandPipeline(task *expandPipelineTask, processing bool) bool {
	task.mu.Lock()
	defer task.mu.Unlock()

	if processing {
		task.numWaiting++
	}

	for int64(task.numWaiting) < e.numProcessingExecutors.Load() &&
		e.expandTask.Load() == task && !e.finished.Load() {
		task.cond.Wait()
	}

	if e.finished.Load() {
		if e.expandTask.CompareAndSwap(task, nil) {
			task.cond.Broadcast()
		}
		return false
	}

	// Someone else already completed this expansion and cleared the slot.
	if e.expandTask.Load() != task {
		return true
	}

	ok := e.expandPipeline(task)
	e.expandTask.Store(nil)
	task.cond.Broadcast()
	return ok
}

// expandPipeline performs the actual merge. Runs with every processing
// goroutine parked, so it may grow the processor list, port maps and node
// slice without contention. Caller holds task.mu.
func (e *Executor) expandPipeline(task *expandPipelineTask) bool {
	n := e.node(task.pid)

	abort := func(err error) bool {
		n.state.err = err
		e.Cancel()
		return false
	}

	expandable, ok := n.processor.(pipeline.Expandable)
	if !ok {
		return abort(fmt.Errorf("processor %q asked to expand the pipeline but cannot", n.processor.Name()))
	}

	added, err := expandable.ExpandPipeline()
	if err != nil {
		return abort(fmt.Errorf("expanding pipeline at processor %q: %w", n.processor.Name(), err))
	}

	e.processorsMu.Lock()
	old := *e.nodes.Load()
	grown := make([]*node, len(old), len(old)+len(added))
	copy(grown, old)
	for _, p := range added {
		if _, dup := e.processorsMap[p]; dup {
			e.processorsMu.Unlock()
			return abort(fmt.Errorf("processor %q added to the pipeline twice", p.Name()))
		}
		id := uint64(len(grown))
		e.processorsMap[p] = id
		e.processors = append(e.processors, p)
		grown = append(grown, newNode(p, id))
	}
	e.nodes.Store(&grown)
	e.processorsMu.Unlock()

	// Existing processors may have grown new ports; re-register everything
	// and sync every node's edge tail against its current port lists.
	size := e.graphSize()
	for pid := uint64(0); pid < size; pid++ {
		e.registerPorts(pid)
	}
	for pid := uint64(0); pid < size; pid++ {
		addedEdges, err := e.addEdges(pid)
		if err != nil {
			return abort(fmt.Errorf("wiring expanded pipeline: %w", err))
		}
		if addedEdges && pid != task.pid {
			nd := e.node(pid)
			nd.statusMu.Lock()
			if nd.status == statusIdle {
				nd.status = statusPreparing
				task.stack = append(task.stack, pid)
			}
			nd.statusMu.Unlock()
		}
	}

	if e.logger != nil {
		e.logger.Debug("Pipeline expanded.", "at", n.processor.Name(), "added", len(added), "nodes", size)
	}
	return true
}
