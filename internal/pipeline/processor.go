package pipeline

import "sync/atomic"

// Status is the result of a processor's Prepare call. It tells the executor
// what the processor needs next.
type Status int

const (
	// StatusNeedData means the processor is waiting for input.
	StatusNeedData Status = iota
	// StatusPortFull means the processor has output pending that the
	// downstream has not consumed yet.
	StatusPortFull
	// StatusReady means Work should be scheduled now.
	StatusReady
	// StatusFinished means the processor will never do anything again.
	StatusFinished
	// StatusAsync means Work should run outside the worker pool and the
	// processor re-prepared once it completes.
	StatusAsync
	// StatusExpandPipeline means the processor wants to inject new
	// processors into the running graph.
	StatusExpandPipeline
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusNeedData:
		return "need-data"
	case StatusPortFull:
		return "port-full"
	case StatusReady:
		return "ready"
	case StatusFinished:
		return "finished"
	case StatusAsync:
		return "async"
	case StatusExpandPipeline:
		return "expand-pipeline"
	}
	return "unknown"
}

// Processor is one unit of computation in a pipeline. The executor owns the
// call discipline: Prepare is always invoked by exactly one goroutine at a
// time, and Work only after Prepare returned StatusReady (or StatusAsync).
type Processor interface {
	// Name identifies the processor in logs and dumps.
	Name() string
	// Inputs returns the processor's input ports.
	Inputs() []*InputPort
	// Outputs returns the processor's output ports.
	Outputs() []*OutputPort
	// Prepare inspects port states, moves chunks on or off the ports, and
	// reports what should happen next. It must be cheap and non-blocking.
	Prepare() (Status, error)
	// Work performs the processor's computation. It must not touch ports.
	Work() error
	// Cancel asks the processor to wind down; its next Prepare should
	// return StatusFinished. Safe to call from any goroutine.
	Cancel()
}

// Expandable is implemented by processors that can grow the graph at runtime.
// ExpandPipeline is only called under the executor's expansion barrier, after
// Prepare returned StatusExpandPipeline; it may append ports to the receiver
// and must return every newly created processor.
type Expandable interface {
	Processor
	ExpandPipeline() ([]Processor, error)
}

// QuotaBearer marks a processor whose scheduled tasks count against an
// external resource quota. The flag is read once, at node creation, and has
// no effect on scheduling order.
type QuotaBearer interface {
	HasQuota() bool
}

// Base supplies the boilerplate half of the Processor interface: name, port
// storage and the cancellation flag. Concrete processors embed it.
type Base struct {
	name      string
	inputs    []*InputPort
	outputs   []*OutputPort
	cancelled atomic.Bool
}

// NewBase creates a base with the given name and port counts.
func NewBase(name string, numInputs, numOutputs int) Base {
	b := Base{name: name}
	for i := 0; i < numInputs; i++ {
		b.inputs = append(b.inputs, NewInputPort())
	}
	for i := 0; i < numOutputs; i++ {
		b.outputs = append(b.outputs, NewOutputPort())
	}
	return b
}

// Name returns the processor name.
func (b *Base) Name() string { return b.name }

// Inputs returns the current input ports.
func (b *Base) Inputs() []*InputPort { return b.inputs }

// Outputs returns the current output ports.
func (b *Base) Outputs() []*OutputPort { return b.outputs }

// Cancel flips the cancellation flag.
func (b *Base) Cancel() { b.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (b *Base) Cancelled() bool { return b.cancelled.Load() }

// AddInput appends a fresh input port. Only legal inside ExpandPipeline.
func (b *Base) AddInput() *InputPort {
	in := NewInputPort()
	b.inputs = append(b.inputs, in)
	return in
}

// AddOutput appends a fresh output port. Only legal inside ExpandPipeline.
func (b *Base) AddOutput() *OutputPort {
	out := NewOutputPort()
	b.outputs = append(b.outputs, out)
	return out
}
