// Package sim provides the shared types of the survsim discrete-event engine.
//
// # Reading Guide
//
// Start with these files:
//   - call.go: Call lifecycle (pending → admitted → released, or blocked)
//   - event.go: arrival and departure events
//   - event_heap.go: the Scheduler, ordered by timestamp then insertion sequence
//
// # Architecture
//
// The engine is split across sub-packages:
//   - sim/topology/: the mutable resource model (per-wavelength edges, SRLG labels)
//   - sim/registry/: admitted calls, their paths, backup leases and teardown
//   - sim/routing/: the Allocator strategies (shortest-path, srlg-disjoint, symbiotic)
//   - sim/engine/: the control loop that pops events and dispatches them
//   - sim/workload/: call generation from a YAML workload spec
//   - sim/trace/: per-event decision records and run summaries
//
// Everything runs on one goroutine. The resource model and registry are owned
// by the engine for the whole run and mutated one event at a time.
package sim
