package forkz

import (
	"sync"
	"sync/atomic"
)

// A latch is a single-shot completion signal pairing a submitter with an
// executor. Setting is monotonic: once set, a latch stays set. The read half
// varies by waiter context (spinning worker, parked outside caller), so only
// the write half is shared here.
type latch interface {
	set()
}

// coreLatch states. A latch a worker may sleep on moves through sleepy and
// sleeping while the idle protocol runs; set is terminal from any state.
const (
	latchUnset int32 = iota
	latchSleepy
	latchSleeping
	latchSet
)

// coreLatch is the shared representation used by the sleep subsystem. It is
// embedded in every latch a worker can block on.
type coreLatch struct {
	state atomic.Int32
}

// probe reports whether the latch has been set. Once probe observes set,
// every later probe observes set.
func (l *coreLatch) probe() bool {
	return l.state.Load() == latchSet
}

// getSleepy moves unset to sleepy. Fails when the latch was set (or already
// past unset), in which case the waiter abandons the idle transition.
func (l *coreLatch) getSleepy() bool {
	return l.state.CompareAndSwap(latchUnset, latchSleepy)
}

// fallAsleep moves sleepy to sleeping. Fails when the latch was set in the
// meantime.
func (l *coreLatch) fallAsleep() bool {
	return l.state.CompareAndSwap(latchSleepy, latchSleeping)
}

// wakeUp restores an intermediate idle state back to unset. A set latch is
// left alone.
func (l *coreLatch) wakeUp() {
	for {
		s := l.state.Load()
		if s == latchSet {
			return
		}
		if l.state.CompareAndSwap(s, latchUnset) {
			return
		}
	}
}

// setCore transitions to set and reports whether the previous state was
// sleeping, in which case the caller must tickle the owning worker.
func (l *coreLatch) setCore() bool {
	return l.state.Swap(latchSet) == latchSleeping
}

// asCoreLatch is the capability a latch must expose before a worker may
// sleep on it.
type asCoreLatch interface {
	asCoreLatch() *coreLatch
}

// spinLatch signals a waiting worker. The owner fields identify the worker
// that blocks on this latch, so that set can wake it through the right
// pool's sleep state. For a cross-pool wait the owner is the waiter's own
// pool, not the pool executing the job.
type spinLatch struct {
	core     coreLatch
	registry *Registry
	owner    int
}

// newSpinLatch returns a latch owned by the given worker.
func newSpinLatch(w *Worker) *spinLatch {
	return &spinLatch{registry: w.registry, owner: w.index}
}

// newCrossSpinLatch returns a latch for a worker waiting on a different
// pool. The owner is still the waiting worker, so setting the latch wakes
// the waiter's pool.
func newCrossSpinLatch(w *Worker) *spinLatch {
	return newSpinLatch(w)
}

func (l *spinLatch) set() {
	if l.core.setCore() {
		l.registry.notifyWorkerLatchIsSet(l.owner)
	}
}

func (l *spinLatch) asCoreLatch() *coreLatch {
	return &l.core
}

// lockLatch parks non-worker callers on a condition variable.
type lockLatch struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

func newLockLatch() *lockLatch {
	l := &lockLatch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *lockLatch) set() {
	l.mu.Lock()
	l.done = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// wait blocks until the latch is set.
func (l *lockLatch) wait() {
	l.mu.Lock()
	for !l.done {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// waitAndReset blocks until the latch is set, then resets it so the same
// latch can be reused for the caller's next blocking submission.
func (l *lockLatch) waitAndReset() {
	l.mu.Lock()
	for !l.done {
		l.cond.Wait()
	}
	l.done = false
	l.mu.Unlock()
}

// countLatch is a counted latch: it becomes set when its counter reaches
// zero. The count never observably drops below zero; increment is only legal
// before the final decrement.
type countLatch struct {
	core    coreLatch
	counter atomic.Int64
}

// newCountLatch starts with a count of one, representing the reference the
// creator will eventually release.
func newCountLatch() *countLatch {
	l := &countLatch{}
	l.counter.Store(1)
	return l
}

func (l *countLatch) increment() {
	if l.core.probe() {
		panic("increment on a set countLatch")
	}
	l.counter.Add(1)
}

// setAndTickleOne decrements the counter and, on reaching zero, sets the
// latch and wakes the owning worker if it is sleeping on it.
func (l *countLatch) setAndTickleOne(r *Registry, owner int) {
	if l.counter.Add(-1) == 0 {
		if l.core.setCore() {
			r.notifyWorkerLatchIsSet(owner)
		}
	}
}

func (l *countLatch) asCoreLatch() *coreLatch {
	return &l.core
}
