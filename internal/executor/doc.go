// Package executor schedules a graph of pipeline processors across a fixed
// pool of worker goroutines.
//
// Every processor is wrapped in a node carrying its edges, a status guarded
// by a per-node mutex, and an execution state with the deferred fault slot
// and profiling counters. A node is "owned" while its status is preparing,
// executing or async: exactly one goroutine may touch its mutable fields.
//
// Work distribution uses per-thread FIFO queues with a round-robin stealing
// scan, an idle-thread registry with per-thread condition variables, and two
// atomic flags (cancelled, finished) checked at the loop's safe points. Graph
// growth at runtime is handled by a stop-the-world rendezvous: every
// processing thread parks at a safe point, one thread merges the new
// processors and edges, and everyone resumes against the larger graph.
package executor
