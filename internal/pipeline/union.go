package pipeline

// ExpandFunc builds the processors an expanding union discovers at runtime.
type ExpandFunc func() ([]Processor, error)

// Union forwards chunks from any number of inputs to a single output. It
// finishes once every input has finished. Order across inputs is undefined;
// order within one input is preserved.
//
// A union created with NewExpandingUnion starts with no inputs at all: its
// first Prepare requests a pipeline expansion, and the processors returned by
// the expand function are connected to freshly added input ports.
type Union struct {
	Base
	expand  ExpandFunc
	pending *Chunk
}

// NewUnion creates a fan-in union with a fixed number of inputs.
func NewUnion(name string, numInputs int) *Union {
	return &Union{Base: NewBase(name, numInputs, 1)}
}

// NewExpandingUnion creates a union whose upstreams are discovered at
// runtime. The expand function runs exactly once, under the executor's
// expansion barrier.
func NewExpandingUnion(name string, expand ExpandFunc) *Union {
	u := NewUnion(name, 0)
	u.expand = expand
	return u
}

// Prepare forwards at most one chunk per call and raises demand on every
// idle input.
func (u *Union) Prepare() (Status, error) {
	out := u.outputs[0]

	if u.Cancelled() || out.IsFinished() {
		for _, in := range u.inputs {
			in.Close()
		}
		out.Finish()
		return StatusFinished, nil
	}

	if u.pending != nil {
		if !out.CanPush() {
			return StatusPortFull, nil
		}
		out.Push(u.pending)
		u.pending = nil
	}

	if u.expand != nil {
		return StatusExpandPipeline, nil
	}

	allFinished := true
	for _, in := range u.inputs {
		if in.IsFinished() {
			continue
		}
		allFinished = false
		if in.HasData() {
			if !out.CanPush() {
				return StatusPortFull, nil
			}
			out.Push(in.Pull())
			return StatusPortFull, nil
		}
		in.SetNeeded()
	}

	if allFinished {
		out.Finish()
		return StatusFinished, nil
	}
	return StatusNeedData, nil
}

// Work is never scheduled: the union moves data entirely inside Prepare.
func (u *Union) Work() error { return nil }

// ExpandPipeline runs the expand function, attaches one new input port per
// unconnected output of every returned processor, and hands the processors to
// the executor.
func (u *Union) ExpandPipeline() ([]Processor, error) {
	expand := u.expand
	u.expand = nil
	procs, err := expand()
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		for _, out := range p.Outputs() {
			if out.Connected() {
				continue
			}
			if err := Connect(out, u.AddInput()); err != nil {
				return nil, err
			}
		}
	}
	return procs, nil
}
