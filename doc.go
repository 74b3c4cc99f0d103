// Package forkz provides a data-parallel work-stealing scheduler for Go.
//
// # Overview
//
// forkz runs opaque units of work (jobs) on a fixed pool of worker goroutines
// with low scheduling overhead and graceful idle behavior. Higher-level
// parallel constructs are built on three primitives:
//
//   - Join: blocking fork/merge of exactly two closures
//   - Scope: a task group that blocks until every spawned task completes
//   - Spawn: fire-and-forget tasks that keep the pool alive until done
//
// Each worker owns a double-ended queue. Work a worker produces goes onto its
// own deque and is consumed in LIFO order, which keeps task trees localized.
// Idle workers steal from the opposite end of their peers' deques, picking
// victims at random to spread contention. Work submitted from outside the pool
// enters through a shared injection queue that workers drain as a last resort.
//
// # Core Concepts
//
// The pool is configured through a Builder and used through a ThreadPool:
//
//	pool, err := forkz.NewBuilder("render").
//	    NumWorkers(8).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	n := forkz.Install(pool, nil, func(w *forkz.Worker) int {
//	    a, b := forkz.Join(w,
//	        func(w *forkz.Worker) int { return fib(w, 20) },
//	        func(w *forkz.Worker) int { return fib(w, 19) },
//	    )
//	    return a + b
//	})
//
// Every closure the scheduler runs receives the *Worker executing it. The
// worker handle is how nested parallelism stays on the fast path: Join and
// Scope called with a live worker push to that worker's local deque, while a
// nil worker routes through the injection queue and parks the caller until
// the result is ready.
//
// # Blocking Semantics
//
// Callers never spin on results. A caller outside the pool parks on a
// mutex-backed latch. A worker waiting for a forked sibling keeps executing
// other jobs (its own, stolen, or injected) until the sibling's latch is set.
// A worker of one pool waiting on another pool keeps stealing work in its own
// pool for the duration.
//
// # Panics
//
// A panic inside a user closure is captured at the job boundary and re-raised
// on the goroutine that consumes the result (the Join caller, the Scope
// caller). A panic in a fire-and-forget Spawn is routed to the pool's panic
// handler; without a handler the process crashes. Panics escaping the
// scheduler's own code are never recovered.
//
// # Observability
//
// Pools expose the standard observability surface: a metricz registry for
// scheduler counters, a tracez tracer for install paths, hookz events for
// worker lifecycle, and capitan signals for pool-level events. See the
// Signal and metric key constants for the full catalog.
package forkz
