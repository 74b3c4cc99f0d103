package forkz

import "sync/atomic"

// TaskScope is a task group whose spawned tasks are all guaranteed to
// finish before Scope returns. The scope carries a counted latch: the body
// holds one reference, every spawned task one more.
type TaskScope struct {
	registry *Registry
	owner    *Worker
	latch    *countLatch
	panicked atomic.Pointer[captured]
}

// Spawn schedules f to run within the scope. from is the caller's current
// worker handle (the body's worker, or the worker running a spawned task
// for nested spawns); pass nil only when spawning from outside the pool.
//
// A panic in f is remembered and re-raised when Scope returns; it does not
// cancel the scope's other tasks.
func (s *TaskScope) Spawn(from *Worker, f func(*Worker)) {
	s.latch.increment()
	j := &heapJob{fn: func(w *Worker) {
		if c := haltPanic(func() { f(w) }); c != nil {
			s.notePanic(c)
		}
		s.latch.setAndTickleOne(s.registry, s.owner.index)
	}}
	s.registry.injectOrPush(from, j)
}

// notePanic records the first panic; later ones are discarded.
func (s *TaskScope) notePanic(c *captured) {
	s.panicked.CompareAndSwap(nil, c)
}

// Scope runs body on a worker and blocks until every task spawned through
// the scope handle has completed, however deep the spawn nesting goes.
// Closures passed to Spawn may therefore borrow anything that outlives the
// Scope call.
//
// When w is nil the scope is installed on the global pool first.
//
// If the body or any spawned task panics, the remaining tasks still run to
// completion and the first recorded panic is then re-raised at the Scope
// call.
func Scope[R any](w *Worker, body func(*TaskScope, *Worker) R) R {
	return inWorker(currentRegistry(w), w, func(owner *Worker, _ bool) R {
		s := &TaskScope{
			registry: owner.registry,
			owner:    owner,
			latch:    newCountLatch(),
		}
		var res R
		if c := haltPanic(func() { res = body(s, owner) }); c != nil {
			s.notePanic(c)
		}
		// Release the body's reference, then help out until the spawn
		// count drains.
		s.latch.setAndTickleOne(owner.registry, owner.index)
		owner.waitUntil(s.latch)
		if c := s.panicked.Load(); c != nil {
			resumePanic(c)
		}
		return res
	})
}
