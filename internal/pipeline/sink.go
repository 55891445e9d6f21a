package pipeline

import (
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// ConsumeFunc receives every chunk arriving at a sink.
type ConsumeFunc func(*Chunk) error

// Sink is a processor with a single input and no outputs, handing every
// chunk to a consumer function.
type Sink struct {
	Base
	consume ConsumeFunc
	input   *Chunk
}

// NewSink creates a sink around the given consumer.
func NewSink(name string, consume ConsumeFunc) *Sink {
	return &Sink{Base: NewBase(name, 1, 0), consume: consume}
}

// Prepare pulls the next chunk when one is available.
func (s *Sink) Prepare() (Status, error) {
	in := s.inputs[0]

	if s.Cancelled() {
		in.Close()
		return StatusFinished, nil
	}

	if s.input != nil {
		return StatusReady, nil
	}

	if in.IsFinished() {
		return StatusFinished, nil
	}

	if !in.HasData() {
		in.SetNeeded()
		return StatusNeedData, nil
	}

	s.input = in.Pull()
	return StatusReady, nil
}

// Work hands the pulled chunk to the consumer.
func (s *Sink) Work() error {
	err := s.consume(s.input)
	s.input = nil
	return err
}

// CollectSink accumulates every received value in memory.
type CollectSink struct {
	*Sink

	mu     sync.Mutex
	values []cty.Value
}

// NewCollectSink creates a sink that records every value it receives.
func NewCollectSink(name string) *CollectSink {
	c := &CollectSink{}
	c.Sink = NewSink(name, func(chunk *Chunk) error {
		c.mu.Lock()
		c.values = append(c.values, chunk.Values...)
		c.mu.Unlock()
		return nil
	})
	return c
}

// Values returns a copy of everything collected so far.
func (c *CollectSink) Values() []cty.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cty.Value, len(c.values))
	copy(out, c.values)
	return out
}
