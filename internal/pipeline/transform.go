package pipeline

import "github.com/zclconf/go-cty/cty"

// MapFunc transforms one chunk into another.
type MapFunc func(*Chunk) (*Chunk, error)

// Transform is a one-in one-out processor applying a map function to every
// chunk. At most one chunk is in flight, so ordering is preserved.
type Transform struct {
	Base
	fn     MapFunc
	input  *Chunk
	output *Chunk
}

// NewTransform creates a transform around the given map function.
func NewTransform(name string, fn MapFunc) *Transform {
	return &Transform{Base: NewBase(name, 1, 1), fn: fn}
}

// NewValueTransform creates a transform that maps the function over every
// value of every chunk.
func NewValueTransform(name string, fn func(cty.Value) (cty.Value, error)) *Transform {
	return NewTransform(name, func(c *Chunk) (*Chunk, error) {
		mapped := make([]cty.Value, len(c.Values))
		for i, v := range c.Values {
			out, err := fn(v)
			if err != nil {
				return nil, err
			}
			mapped[i] = out
		}
		return NewChunk(mapped...), nil
	})
}

// Prepare moves chunks between the ports and the in-flight slots.
func (t *Transform) Prepare() (Status, error) {
	in := t.inputs[0]
	out := t.outputs[0]

	if t.Cancelled() {
		in.Close()
		out.Finish()
		return StatusFinished, nil
	}

	if t.output != nil {
		if !out.CanPush() {
			return StatusPortFull, nil
		}
		out.Push(t.output)
		t.output = nil
	}

	if t.input != nil {
		return StatusReady, nil
	}

	if out.IsFinished() {
		in.Close()
		return StatusFinished, nil
	}

	if in.IsFinished() {
		out.Finish()
		return StatusFinished, nil
	}

	if !in.HasData() {
		in.SetNeeded()
		return StatusNeedData, nil
	}

	t.input = in.Pull()
	return StatusReady, nil
}

// Work applies the map function to the pulled chunk.
func (t *Transform) Work() error {
	output, err := t.fn(t.input)
	if err != nil {
		return err
	}
	t.input = nil
	t.output = output
	return nil
}
