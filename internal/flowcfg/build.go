package flowcfg

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgrid/internal/pipeline"
)

const defaultChunkSize = 1

// Pipeline is a fully wired processor set built from one pipeline block.
// Sinks are kept separately so callers can read collected values back out
// after execution.
type Pipeline struct {
	Name       string
	Processors []pipeline.Processor
	Sinks      map[string]*pipeline.CollectSink
}

// stage tracks one named producer and whether its output stream has been
// claimed by a consumer yet.
type stage struct {
	out      *pipeline.OutputPort
	consumed bool
}

// buildPipeline turns a decoded pipeline block into connected processors.
// All validation happens before the first port is connected.
func buildPipeline(block *pipelineBlock) (*Pipeline, error) {
	p := &Pipeline{
		Name:  block.Name,
		Sinks: make(map[string]*pipeline.CollectSink),
	}
	stages := make(map[string]*stage)

	addStage := func(name string, out *pipeline.OutputPort) error {
		if _, dup := stages[name]; dup {
			return fmt.Errorf("stage %q declared twice", name)
		}
		stages[name] = &stage{out: out}
		return nil
	}

	for _, src := range block.Sources {
		values, err := sourceValues(src)
		if err != nil {
			return nil, err
		}
		chunkSize := defaultChunkSize
		if src.ChunkSize != nil {
			if *src.ChunkSize < 1 {
				return nil, fmt.Errorf("source %q: chunk_size must be at least 1, got %d", src.Name, *src.ChunkSize)
			}
			chunkSize = *src.ChunkSize
		}
		proc := pipeline.NewValuesSource(src.Name, values, chunkSize)
		p.Processors = append(p.Processors, proc)
		if err := addStage(src.Name, proc.Outputs()[0]); err != nil {
			return nil, err
		}
	}

	for _, tr := range block.Transforms {
		proc := pipeline.NewValueTransform(tr.Name, transformFunc(tr))
		p.Processors = append(p.Processors, proc)
		if err := addStage(tr.Name, proc.Outputs()[0]); err != nil {
			return nil, err
		}
	}

	for _, un := range block.Unions {
		if len(un.Inputs) == 0 {
			return nil, fmt.Errorf("union %q has no inputs", un.Name)
		}
		proc := pipeline.NewUnion(un.Name, len(un.Inputs))
		p.Processors = append(p.Processors, proc)
		if err := addStage(un.Name, proc.Outputs()[0]); err != nil {
			return nil, err
		}
	}

	for _, sk := range block.Sinks {
		_, dupStage := stages[sk.Name]
		_, dupSink := p.Sinks[sk.Name]
		if dupStage || dupSink {
			return nil, fmt.Errorf("stage %q declared twice", sk.Name)
		}
		proc := pipeline.NewCollectSink(sk.Name)
		p.Processors = append(p.Processors, proc)
		p.Sinks[sk.Name] = proc
	}

	// Wire consumers to producers. Each producer feeds exactly one input.
	claim := func(consumer, input string) (*pipeline.OutputPort, error) {
		st, ok := stages[input]
		if !ok {
			if _, isSink := p.Sinks[input]; isSink {
				return nil, fmt.Errorf("stage %q reads from sink %q, which has no output", consumer, input)
			}
			return nil, fmt.Errorf("stage %q reads from unknown stage %q", consumer, input)
		}
		if st.consumed {
			return nil, fmt.Errorf("output of stage %q is consumed more than once", input)
		}
		st.consumed = true
		return st.out, nil
	}

	connect := func(consumer string, in *pipeline.InputPort, input string) error {
		out, err := claim(consumer, input)
		if err != nil {
			return err
		}
		return pipeline.Connect(out, in)
	}

	for i, tr := range block.Transforms {
		proc := p.Processors[len(block.Sources)+i]
		if err := connect(tr.Name, proc.Inputs()[0], tr.Input); err != nil {
			return nil, err
		}
	}
	for i, un := range block.Unions {
		proc := p.Processors[len(block.Sources)+len(block.Transforms)+i]
		for j, input := range un.Inputs {
			if err := connect(un.Name, proc.Inputs()[j], input); err != nil {
				return nil, err
			}
		}
	}
	for _, sk := range block.Sinks {
		if err := connect(sk.Name, p.Sinks[sk.Name].Inputs()[0], sk.Input); err != nil {
			return nil, err
		}
	}

	for name, st := range stages {
		if !st.consumed {
			return nil, fmt.Errorf("output of stage %q is never consumed", name)
		}
	}
	if len(p.Sinks) == 0 {
		return nil, fmt.Errorf("pipeline has no sinks")
	}
	return p, nil
}

// sourceValues evaluates the values attribute into a flat value list. Any
// list or tuple works; element types are carried through untouched.
func sourceValues(src *sourceBlock) ([]cty.Value, error) {
	val, diags := src.Values.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("source %q: evaluating values: %w", src.Name, diags)
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("source %q: values must be a list, got %s", src.Name, val.Type().FriendlyName())
	}
	var values []cty.Value
	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		values = append(values, v)
	}
	return values, nil
}

// transformFunc binds the block's expression into a per-value mapper. The
// current value is exposed to the expression as the "value" variable.
func transformFunc(tr *transformBlock) func(cty.Value) (cty.Value, error) {
	return func(v cty.Value) (cty.Value, error) {
		evalCtx := &hcl.EvalContext{
			Variables: map[string]cty.Value{"value": v},
		}
		out, diags := tr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return cty.NilVal, fmt.Errorf("transform %q: %w", tr.Name, diags)
		}
		return out, nil
	}
}
