// Package pipeline defines the data plane of a flowgrid pipeline: chunks of
// cty values, the ports they travel through, and the Processor contract that
// the executor drives.
//
// A processor owns a fixed set of input and output ports. Ports are connected
// pairwise before execution starts; a connected pair shares a single state
// cell so that a push on the output side becomes visible as data on the input
// side. Each port side additionally carries a monotonically increasing version
// counter which the executor uses to decide which neighbours need to be
// re-prepared.
//
// Contract: a processor may only touch its ports from Prepare (and from
// ExpandPipeline, which runs under the executor's expansion barrier). Work
// performs computation on data already pulled off the ports, so it may run
// concurrently with the Prepare calls of neighbouring processors.
package pipeline
