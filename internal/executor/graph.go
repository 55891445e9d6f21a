package executor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/flowgrid/internal/pipeline"
)

// execStatus is the scheduling state of a node. Owning states (preparing,
// executing, async) grant the goroutine that set them exclusive access to the
// node's mutable fields.
type execStatus int

const (
	// statusIdle: last prepare returned need-data or port-full. Non-owning.
	statusIdle execStatus = iota
	// statusPreparing: some thread is inspecting the node or its task is
	// queued. Owning.
	statusPreparing
	// statusExecuting: the node's job is running. Owning.
	statusExecuting
	// statusFinished: terminal. Non-owning.
	statusFinished
	// statusAsync: the node's job runs outside the worker pool. Owning.
	statusAsync
)

func (s execStatus) String() string {
	switch s {
	case statusIdle:
		return "idle"
	case statusPreparing:
		return "preparing"
	case statusExecuting:
		return "executing"
	case statusFinished:
		return "finished"
	case statusAsync:
		return "async"
	}
	return "unknown"
}

// edge is a directed connection to a neighbouring node. It watches the
// version counter of one of the source node's own ports: a direct edge
// watches an output port, a back edge an input port. lastVersion is only
// compared and advanced while holding the source node's status mutex.
type edge struct {
	to          uint64
	backward    bool
	inputPort   int
	outputPort  int
	update      *pipeline.UpdateInfo
	lastVersion uint64
}

// executionState is the job descriptor bound to a node for the lifetime of
// the run.
type executionState struct {
	processor pipeline.Processor
	pid       uint64
	hasQuota  bool

	// job is rebound right before every execution.
	job func()
	// err is the deferred fault slot. Written by the owning thread, read
	// by Execute after every worker has joined.
	err error

	// Profiling counters. Written by the owning thread only, but read by
	// Dump without the status mutex, hence atomic. Durations are stored as
	// nanoseconds.
	numExecutedJobs atomic.Uint64
	executionTime   atomic.Int64
	preparationTime atomic.Int64
}

// node pairs one processor with its scheduling state.
type node struct {
	id        uint64
	processor pipeline.Processor

	directEdges []*edge
	backEdges   []*edge

	statusMu sync.Mutex
	status   execStatus

	lastPrepareStatus pipeline.Status

	state *executionState
}

func newNode(p pipeline.Processor, id uint64) *node {
	hasQuota := false
	if q, ok := p.(pipeline.QuotaBearer); ok {
		hasQuota = q.HasQuota()
	}
	return &node{
		id:        id,
		processor: p,
		status:    statusIdle,
		state:     &executionState{processor: p, pid: id, hasQuota: hasQuota},
	}
}

// dirtyEdges returns every edge whose watched port changed since it was last
// observed, advancing lastVersion as it goes. Must be called with statusMu
// held.
func (n *node) dirtyEdges() []*edge {
	var dirty []*edge
	for _, ed := range n.directEdges {
		if v := ed.update.Version(); v != ed.lastVersion {
			ed.lastVersion = v
			dirty = append(dirty, ed)
		}
	}
	for _, ed := range n.backEdges {
		if v := ed.update.Version(); v != ed.lastVersion {
			ed.lastVersion = v
			dirty = append(dirty, ed)
		}
	}
	return dirty
}

// portRef locates one port inside the graph.
type portRef struct {
	node uint64
	port int
}

// registerPorts records ownership of every port the node's processor
// currently exposes. Runs single-threaded at build time and under the
// expansion barrier afterwards, so the maps need no lock.
func (e *Executor) registerPorts(pid uint64) {
	n := e.node(pid)
	for i, in := range n.processor.Inputs() {
		e.inputOwners[in] = portRef{node: pid, port: i}
	}
	for i, out := range n.processor.Outputs() {
		e.outputOwners[out] = portRef{node: pid, port: i}
	}
}

// addEdges syncs the node's edge lists against its current ports, creating
// edges only for the unseen tail. Returns whether anything was added. Fails
// with a structural error if a port is unconnected or its peer's processor is
// not part of the graph.
func (e *Executor) addEdges(pid uint64) (bool, error) {
	n := e.node(pid)
	name := n.processor.Name()

	var fresh []*edge
	inputs := n.processor.Inputs()
	for i := len(n.backEdges); i < len(inputs); i++ {
		in := inputs[i]
		if !in.Connected() {
			return false, fmt.Errorf("input port %d of processor %q is not connected", i, name)
		}
		ref, ok := e.outputOwners[in.Peer()]
		if !ok {
			return false, fmt.Errorf("input port %d of processor %q is connected to a processor outside the pipeline", i, name)
		}
		fresh = append(fresh, &edge{
			to:         ref.node,
			backward:   true,
			inputPort:  i,
			outputPort: ref.port,
			update:     in.UpdateInfo(),
		})
	}
	numNewBack := len(fresh)

	outputs := n.processor.Outputs()
	for i := len(n.directEdges); i < len(outputs); i++ {
		out := outputs[i]
		if !out.Connected() {
			return false, fmt.Errorf("output port %d of processor %q is not connected", i, name)
		}
		ref, ok := e.inputOwners[out.Peer()]
		if !ok {
			return false, fmt.Errorf("output port %d of processor %q is connected to a processor outside the pipeline", i, name)
		}
		fresh = append(fresh, &edge{
			to:         ref.node,
			backward:   false,
			inputPort:  ref.port,
			outputPort: i,
			update:     out.UpdateInfo(),
		})
	}

	if len(fresh) == 0 {
		return false, nil
	}

	n.statusMu.Lock()
	n.backEdges = append(n.backEdges, fresh[:numNewBack]...)
	n.directEdges = append(n.directEdges, fresh[numNewBack:]...)
	n.statusMu.Unlock()
	return true, nil
}

// buildGraph creates one node per processor and validates full connectivity.
// Runs exactly once, from New; expansion reuses registerPorts/addEdges for
// the newly introduced processors only.
func (e *Executor) buildGraph() error {
	nodes := make([]*node, 0, len(e.processors))
	for id, p := range e.processors {
		if _, dup := e.processorsMap[p]; dup {
			return fmt.Errorf("processor %q appears twice in the pipeline", p.Name())
		}
		e.processorsMap[p] = uint64(id)
		nodes = append(nodes, newNode(p, uint64(id)))
	}
	e.nodes.Store(&nodes)

	for id := range nodes {
		e.registerPorts(uint64(id))
	}
	for id := range nodes {
		if _, err := e.addEdges(uint64(id)); err != nil {
			return err
		}
	}
	return nil
}

// node returns the node with the given id. The slice header is replaced
// copy-on-write during expansion, so a plain atomic load suffices.
func (e *Executor) node(pid uint64) *node {
	return (*e.nodes.Load())[pid]
}

func (e *Executor) graphSize() uint64 {
	return uint64(len(*e.nodes.Load()))
}
