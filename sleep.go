package forkz

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Metric keys for the sleep subsystem.
const (
	SleepSleepyTotal     = metricz.Key("sleep.sleepy.total")
	SleepSleepingTotal   = metricz.Key("sleep.sleeping.total")
	SleepWakeupsTotal    = metricz.Key("sleep.wakeups.total")
	SleepSleepingWorkers = metricz.Key("sleep.sleeping.workers")
)

// roundsUntilSleepy bounds the spin phase: an idle worker yields this many
// times before it announces itself sleepy and arms the parking protocol.
const roundsUntilSleepy = 32

// sleep coordinates the idle-to-parked transition for every worker of one
// pool. Each worker passes through three phases per wait: awake-looking,
// sleepy, sleeping. The protocol guarantees that no worker parks while work
// it could run is visible, and that at least one worker is woken for any job
// that arrives after the last searcher parks.
type sleep struct {
	states       []workerSleepState
	numSearching atomic.Int32
	numSleeping  atomic.Int32

	name    Name
	clock   clockz.Clock
	metrics *metricz.Registry
}

// workerSleepState is one worker's parking spot. blocked is only touched
// under mu; the condition variable pairs with it to make wake-before-wait
// harmless.
type workerSleepState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	blocked bool
}

func newSleep(name Name, n int, clock clockz.Clock, metrics *metricz.Registry) *sleep {
	s := &sleep{
		states:  make([]workerSleepState, n),
		name:    name,
		clock:   clock,
		metrics: metrics,
	}
	for i := range s.states {
		s.states[i].cond = sync.NewCond(&s.states[i].mu)
	}
	return s
}

// idleState is the opaque token a worker threads through one wait: which
// worker, how far into the spin budget it is, and the latch it is waiting
// on.
type idleState struct {
	worker int
	rounds uint32
	latch  *coreLatch
}

// startLooking begins a fresh search for work.
func (s *sleep) startLooking(worker int, latch *coreLatch) idleState {
	s.numSearching.Add(1)
	return idleState{worker: worker, rounds: 0, latch: latch}
}

// workFound ends a search. If the worker had moved past awake, its latch is
// restored to unset so the next wait starts clean.
func (s *sleep) workFound(idle *idleState) {
	s.numSearching.Add(-1)
	if idle.rounds > roundsUntilSleepy {
		idle.latch.wakeUp()
	}
}

// noWorkFound advances the idle state machine by one step: spin, then
// announce sleepy, then the double-checked transition to sleeping.
func (s *sleep) noWorkFound(idle *idleState, latch *coreLatch, hasInjected func() bool) {
	switch {
	case idle.rounds < roundsUntilSleepy:
		runtime.Gosched()
		idle.rounds++
	case idle.rounds == roundsUntilSleepy:
		if latch.getSleepy() {
			s.metrics.Counter(SleepSleepyTotal).Inc()
			idle.rounds++
		}
		// When the CAS fails the latch was set under us; the caller's
		// probe loop picks that up.
	default:
		s.doSleep(idle, latch, hasInjected)
	}
}

// doSleep parks the worker unless a final round of checks turns up work.
// Ordering is what makes this lost-wakeup free: the worker publishes its
// sleeping state (counter and blocked flag) before the last re-read of the
// latch and the injection queue, while producers push first and read the
// sleeper counter after.
func (s *sleep) doSleep(idle *idleState, latch *coreLatch, hasInjected func() bool) {
	defer func() { idle.rounds = 0 }()

	if latch.probe() || hasInjected() {
		latch.wakeUp()
		return
	}
	if !latch.fallAsleep() {
		// Set between the sleepy announcement and now.
		return
	}

	ws := &s.states[idle.worker]
	ws.mu.Lock()
	ws.blocked = true
	ws.mu.Unlock()
	s.numSleeping.Add(1)
	s.metrics.Gauge(SleepSleepingWorkers).Set(float64(s.numSleeping.Load()))

	if latch.probe() || hasInjected() {
		ws.mu.Lock()
		ws.blocked = false
		ws.mu.Unlock()
		s.numSleeping.Add(-1)
		s.metrics.Gauge(SleepSleepingWorkers).Set(float64(s.numSleeping.Load()))
		latch.wakeUp()
		return
	}

	s.metrics.Counter(SleepSleepingTotal).Inc()
	capitan.Info(context.Background(), SignalWorkerSleeping,
		FieldPool.Field(string(s.name)),
		FieldWorker.Field(idle.worker),
		FieldTimestamp.Field(float64(s.clock.Now().Unix())),
	)

	ws.mu.Lock()
	for ws.blocked {
		ws.cond.Wait()
	}
	ws.mu.Unlock()

	s.numSleeping.Add(-1)
	s.metrics.Gauge(SleepSleepingWorkers).Set(float64(s.numSleeping.Load()))
	latch.wakeUp()

	capitan.Info(context.Background(), SignalWorkerWoken,
		FieldPool.Field(string(s.name)),
		FieldWorker.Field(idle.worker),
		FieldTimestamp.Field(float64(s.clock.Now().Unix())),
	)
}

// newInternalJobs is called after a worker pushes onto its own deque, so
// sleeping peers can be woken to steal.
func (s *sleep) newInternalJobs(count int, queueWasEmpty bool) {
	if queueWasEmpty || s.numSleeping.Load() > 0 {
		s.wakeSleepers(count)
	}
}

// newInjectedJobs is called after outside submissions land in the injection
// queue.
func (s *sleep) newInjectedJobs(count int, queueWasEmpty bool) {
	if queueWasEmpty || s.numSleeping.Load() > 0 {
		s.wakeSleepers(count)
	}
}

// wakeSleepers wakes up to n parked workers. Workers that are awake are
// skipped, so this is a no-op when every worker is already looking.
func (s *sleep) wakeSleepers(n int) {
	for i := range s.states {
		if n == 0 {
			return
		}
		ws := &s.states[i]
		ws.mu.Lock()
		if ws.blocked {
			ws.blocked = false
			ws.cond.Signal()
			n--
			s.metrics.Counter(SleepWakeupsTotal).Inc()
		}
		ws.mu.Unlock()
	}
}

// notifyWorkerLatchIsSet wakes one specific worker whose blocked latch has
// just transitioned from sleeping to set.
func (s *sleep) notifyWorkerLatchIsSet(worker int) {
	ws := &s.states[worker]
	ws.mu.Lock()
	if ws.blocked {
		ws.blocked = false
		ws.cond.Signal()
		s.metrics.Counter(SleepWakeupsTotal).Inc()
	}
	ws.mu.Unlock()
}
