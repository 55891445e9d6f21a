package pipeline

import (
	"errors"
	"sync/atomic"
)

// PortState is the state of a connected port pair.
type PortState uint32

const (
	// PortIdle means no data and no demand yet.
	PortIdle PortState = iota
	// PortNeedData means the downstream side wants data.
	PortNeedData
	// PortHasData means the upstream side has pushed a chunk.
	PortHasData
	// PortFinished means no more data will ever flow through this pair.
	PortFinished
)

// String returns a human-readable name for the state.
func (s PortState) String() string {
	switch s {
	case PortIdle:
		return "idle"
	case PortNeedData:
		return "need-data"
	case PortHasData:
		return "has-data"
	case PortFinished:
		return "finished"
	}
	return "unknown"
}

// UpdateInfo carries the version counter for one side of a port pair. The
// version increases by one every time that side changes the pair's state, and
// never decreases. The executor attaches one edge to each update info and
// compares versions to detect which neighbours need re-preparation.
type UpdateInfo struct {
	version atomic.Uint64
}

// Version returns the current version counter.
func (u *UpdateInfo) Version() uint64 {
	return u.version.Load()
}

func (u *UpdateInfo) bump() {
	u.version.Add(1)
}

// portData is shared between a connected OutputPort and InputPort. Access is
// synchronized via atomic operations on state. The chunk field is written only
// when transitioning to PortHasData and read only when transitioning out of
// it, so the state transition orders the accesses.
type portData struct {
	state atomic.Uint32
	chunk *Chunk
	out   *OutputPort
	in    *InputPort
}

// InputPort is the receiving side of a connection.
type InputPort struct {
	data   *portData
	update UpdateInfo
}

// NewInputPort creates a disconnected input port.
func NewInputPort() *InputPort {
	return &InputPort{}
}

// Connected reports whether the port has been connected to an output.
func (p *InputPort) Connected() bool {
	return p.data != nil
}

// Peer returns the output port this input is connected to, or nil.
func (p *InputPort) Peer() *OutputPort {
	if p.data == nil {
		return nil
	}
	return p.data.out
}

// UpdateInfo returns the version counter for this side of the pair.
func (p *InputPort) UpdateInfo() *UpdateInfo {
	return &p.update
}

// SetNeeded signals demand for data. A no-op unless the pair is idle.
func (p *InputPort) SetNeeded() {
	if p.data.state.CompareAndSwap(uint32(PortIdle), uint32(PortNeedData)) {
		p.update.bump()
	}
}

// HasData reports whether a chunk is waiting to be pulled.
func (p *InputPort) HasData() bool {
	return PortState(p.data.state.Load()) == PortHasData
}

// IsFinished reports whether the upstream closed the pair.
func (p *InputPort) IsFinished() bool {
	return PortState(p.data.state.Load()) == PortFinished
}

// Pull extracts the pending chunk and re-arms demand. Returns nil if the pair
// holds no data. If the pair was finished concurrently the chunk is still
// returned, but demand is not re-armed.
func (p *InputPort) Pull() *Chunk {
	if PortState(p.data.state.Load()) != PortHasData {
		return nil
	}
	chunk := p.data.chunk
	p.data.chunk = nil
	if p.data.state.CompareAndSwap(uint32(PortHasData), uint32(PortNeedData)) {
		p.update.bump()
	}
	return chunk
}

// Close finishes the pair from the input side. Used when the consumer will
// never need more data (cancellation, limits). The pending chunk, if any, is
// left in place; the upstream owner drops it with the pair.
func (p *InputPort) Close() {
	if p.data.state.Swap(uint32(PortFinished)) != uint32(PortFinished) {
		p.update.bump()
	}
}

// OutputPort is the sending side of a connection.
type OutputPort struct {
	data   *portData
	update UpdateInfo
}

// NewOutputPort creates a disconnected output port.
func NewOutputPort() *OutputPort {
	return &OutputPort{}
}

// Connected reports whether the port has been connected to an input.
func (p *OutputPort) Connected() bool {
	return p.data != nil
}

// Peer returns the input port this output is connected to, or nil.
func (p *OutputPort) Peer() *InputPort {
	if p.data == nil {
		return nil
	}
	return p.data.in
}

// UpdateInfo returns the version counter for this side of the pair.
func (p *OutputPort) UpdateInfo() *UpdateInfo {
	return &p.update
}

// CanPush reports whether the downstream is ready to accept a chunk.
func (p *OutputPort) CanPush() bool {
	return PortState(p.data.state.Load()) == PortNeedData
}

// Push places a chunk into the pair. Returns false if the downstream has not
// signalled demand or finished the pair in the meantime.
func (p *OutputPort) Push(chunk *Chunk) bool {
	if PortState(p.data.state.Load()) != PortNeedData {
		return false
	}
	// Only the owning side writes the chunk slot, and the CAS publishes it.
	p.data.chunk = chunk
	if !p.data.state.CompareAndSwap(uint32(PortNeedData), uint32(PortHasData)) {
		p.data.chunk = nil
		return false
	}
	p.update.bump()
	return true
}

// Finish signals that this output will never produce more data.
func (p *OutputPort) Finish() {
	if p.data.state.Swap(uint32(PortFinished)) != uint32(PortFinished) {
		p.update.bump()
	}
}

// IsFinished reports whether the pair has been closed from either side.
func (p *OutputPort) IsFinished() bool {
	return PortState(p.data.state.Load()) == PortFinished
}

// Connect links an output port to an input port by sharing one state cell.
// Both ports must be disconnected.
func Connect(out *OutputPort, in *InputPort) error {
	if out.Connected() {
		return errors.New("pipeline: output port is already connected")
	}
	if in.Connected() {
		return errors.New("pipeline: input port is already connected")
	}
	shared := &portData{out: out, in: in}
	out.data = shared
	in.data = shared
	return nil
}
