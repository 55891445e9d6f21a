// Package flowcfg loads pipeline definitions from HCL files and turns them
// into connected processor sets ready for the executor.
//
// A pipeline block declares named source, transform, union and sink stages;
// stages reference each other by name through their input attributes. The
// builder validates the wiring (unknown references, duplicate names, outputs
// consumed more than once or not at all) before connecting any ports, so a
// config error never produces a half-wired graph.
package flowcfg
