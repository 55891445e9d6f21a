package pipeline

import "github.com/zclconf/go-cty/cty"

// Chunk is the unit of data exchanged between processors. Values travel in
// order; a chunk is immutable once pushed.
type Chunk struct {
	Values []cty.Value
}

// NewChunk wraps the given values in a chunk.
func NewChunk(values ...cty.Value) *Chunk {
	return &Chunk{Values: values}
}

// Len returns the number of values in the chunk.
func (c *Chunk) Len() int {
	return len(c.Values)
}
