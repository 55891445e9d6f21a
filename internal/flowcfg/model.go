package flowcfg

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all top-level blocks from a single file.
type fileRoot struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

// pipelineBlock is one named pipeline definition. Multiple files may each
// contribute pipelines; names must be unique across the whole load.
type pipelineBlock struct {
	Name string `hcl:"name,label"`

	Sources    []*sourceBlock    `hcl:"source,block"`
	Transforms []*transformBlock `hcl:"transform,block"`
	Unions     []*unionBlock     `hcl:"union,block"`
	Sinks      []*sinkBlock      `hcl:"sink,block"`
}

// sourceBlock emits a fixed list of values, chunked. The values attribute is
// kept undecoded so a source can carry any HCL value type, not just strings.
type sourceBlock struct {
	Name      string         `hcl:"name,label"`
	Values    hcl.Expression `hcl:"values"`
	ChunkSize *int           `hcl:"chunk_size"`
}

// transformBlock applies an expression to every value of its input stage.
// The expression is kept undecoded and evaluated per value with the current
// value bound as the "value" variable.
type transformBlock struct {
	Name  string         `hcl:"name,label"`
	Input string         `hcl:"input"`
	Expr  hcl.Expression `hcl:"expr"`
}

// unionBlock merges the outputs of several stages into one stream, in
// whatever order chunks become available.
type unionBlock struct {
	Name   string   `hcl:"name,label"`
	Inputs []string `hcl:"inputs"`
}

// sinkBlock collects its input stream. Collected values are exposed through
// the Result returned by Build.
type sinkBlock struct {
	Name  string `hcl:"name,label"`
	Input string `hcl:"input"`
}
