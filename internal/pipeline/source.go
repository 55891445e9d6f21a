package pipeline

import "github.com/zclconf/go-cty/cty"

// GenerateFunc produces the next chunk of a source. Returning a nil chunk
// signals exhaustion.
type GenerateFunc func() (*Chunk, error)

// Source is a processor with a single output that generates chunks. The
// generator runs inside Work so expensive producers never block Prepare.
type Source struct {
	Base
	generate GenerateFunc
	pending  *Chunk
	done     bool
}

// NewSource creates a source around the given generator.
func NewSource(name string, generate GenerateFunc) *Source {
	return &Source{Base: NewBase(name, 0, 1), generate: generate}
}

// NewValuesSource creates a source that emits the given values in order,
// chunkSize values per chunk. A chunkSize below 1 emits everything at once.
func NewValuesSource(name string, values []cty.Value, chunkSize int) *Source {
	if chunkSize < 1 {
		chunkSize = len(values)
	}
	rest := values
	return NewSource(name, func() (*Chunk, error) {
		if len(rest) == 0 {
			return nil, nil
		}
		n := chunkSize
		if n > len(rest) {
			n = len(rest)
		}
		chunk := NewChunk(rest[:n]...)
		rest = rest[n:]
		return chunk, nil
	})
}

// Prepare pushes the pending chunk when the downstream wants it and asks for
// another round of generation while the source is not exhausted.
func (s *Source) Prepare() (Status, error) {
	out := s.outputs[0]

	if s.Cancelled() || out.IsFinished() {
		out.Finish()
		return StatusFinished, nil
	}

	if s.pending != nil {
		if !out.CanPush() {
			return StatusPortFull, nil
		}
		out.Push(s.pending)
		s.pending = nil
	}

	if s.done {
		out.Finish()
		return StatusFinished, nil
	}

	if !out.CanPush() {
		return StatusPortFull, nil
	}
	return StatusReady, nil
}

// Work generates the next chunk.
func (s *Source) Work() error {
	chunk, err := s.generate()
	if err != nil {
		return err
	}
	if chunk == nil {
		s.done = true
		return nil
	}
	s.pending = chunk
	return nil
}
