// Package sim provides the discrete-event kernel shared by the access point
// and station engines of the RAW simulator.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: the Scheduler interface, cancelable Timers and the EventLoop
//   - frame.go: addresses, frames and the announcement (beacon) payload
//   - observer.go: the publish interface for observable events
//   - rng.go: partitioned, reproducible random streams
//
// # Architecture
//
// The engines live in sub-packages and depend only on the interfaces here:
//   - sim/raw/: RAW group partitioner (pure)
//   - sim/cac/: adaptive admission controller (WAIT/LEARN/WORK)
//   - sim/ap/: access point, announcement scheduler, interval counters
//   - sim/sta/: station association state machine and RAW backoff engine
//   - sim/bss/: scenario orchestration and the shared medium
//   - sim/trace/: event recording
//   - sim/metrics/: Prometheus collectors
//
// All state transitions happen inside timer callbacks delivered serially by
// the Scheduler, so no engine state is guarded by locks.
package sim
