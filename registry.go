package forkz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Name identifies a pool in signals, metrics, and errors.
type Name = string

// Metric keys for pool-level scheduling activity.
const (
	PoolJobsInjectedTotal   = metricz.Key("pool.jobs.injected.total")
	PoolJobsUninjectedTotal = metricz.Key("pool.jobs.uninjected.total")
)

// Span names and tags for the install paths.
const (
	InstallColdSpan  = tracez.Key("install.cold")
	InstallCrossSpan = tracez.Key("install.cross")

	InstallTagPool = tracez.Tag("install.pool")
)

// Hook event keys for worker lifecycle.
const (
	HookWorkerStarted = hookz.Key("worker.started")
	HookWorkerExited  = hookz.Key("worker.exited")
	HookPanic         = hookz.Key("pool.panic")
)

// WorkerEvent is emitted via hookz when a worker starts, exits, or when a
// panic reaches the pool's panic boundary.
type WorkerEvent struct {
	Pool      Name      // Pool name
	Worker    int       // Worker index, -1 when not attributable
	Panic     any       // Panic payload for HookPanic events
	Timestamp time.Time // When the event occurred
}

// maxNumWorkers soft-limits how many workers a single pool will start.
const maxNumWorkers = 1 << 16

// registryIDCounter hands out pool identities.
var registryIDCounter atomic.Uint64

// RegistryID is an opaque, equality-comparable pool identity.
type RegistryID uint64

// threadInfo is the registry's view of one worker: its lifecycle latches
// and the thief side of its deque.
type threadInfo struct {
	// primed is set once the worker enters its main loop. Useful for
	// benchmarks that want everything ready before timing starts.
	primed *lockLatch

	// stopped is set after the worker's main loop returns.
	stopped *lockLatch

	// terminate is set by Registry.terminate once the pool's terminate
	// count reaches zero; the worker's main wait returns when it fires.
	// A counted latch with a count that never exceeds one, because it
	// needs no borrowed state and is set from arbitrary goroutines.
	terminate *countLatch

	// stealer is the thief side of the worker's deque.
	stealer *deque
}

// Registry is the pool object proper: workers, injection queue, sleep
// coordinator, handlers, and the terminate count that unifies the pool
// handle, in-flight Spawn tasks, and the global-pool sentinel into one
// reference counter.
type Registry struct {
	name        Name
	id          RegistryID
	threadInfos []threadInfo
	sleep       *sleep
	injected    injector

	panicHandler func(any)
	startHandler func(int)
	exitHandler  func(int)

	// terminateCount reaches zero only through terminate(); once zero, no
	// further work may be submitted.
	terminateCount atomic.Int64

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[WorkerEvent]
}

func newRegistry(b *Builder) (*Registry, error) {
	n := b.numWorkers
	if n <= 0 {
		n = defaultNumWorkers()
	}
	if n > maxNumWorkers {
		n = maxNumWorkers
	}

	policy := dequeLIFO
	if b.breadthFirst {
		policy = dequeFIFO
	}

	clock := b.clock
	if clock == nil {
		clock = clockz.RealClock
	}

	metrics := metricz.New()
	metrics.Counter(PoolJobsInjectedTotal)
	metrics.Counter(PoolJobsUninjectedTotal)
	metrics.Counter(WorkerJobsPushedTotal)
	metrics.Counter(WorkerJobsPoppedTotal)
	metrics.Counter(WorkerJobsStolenTotal)
	metrics.Counter(WorkerStealRetriesTotal)
	metrics.Counter(SleepSleepyTotal)
	metrics.Counter(SleepSleepingTotal)
	metrics.Counter(SleepWakeupsTotal)
	metrics.Gauge(SleepSleepingWorkers)

	deques := make([]*deque, n)
	infos := make([]threadInfo, n)
	for i := range deques {
		deques[i] = newDeque(policy)
		infos[i] = threadInfo{
			primed:    newLockLatch(),
			stopped:   newLockLatch(),
			terminate: newCountLatch(),
			stealer:   deques[i],
		}
	}

	r := &Registry{
		name:         b.name,
		id:           RegistryID(registryIDCounter.Add(1)),
		threadInfos:  infos,
		panicHandler: b.panicHandler,
		startHandler: b.startHandler,
		exitHandler:  b.exitHandler,
		clock:        clock,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[WorkerEvent](),
	}
	r.terminateCount.Store(1)
	r.sleep = newSleep(b.name, n, clock, metrics)

	// If spawning fails partway, release the pool's reference so the
	// workers already running drain and exit.
	ok := false
	defer func() {
		if !ok {
			r.terminate()
		}
	}()

	spawn := b.spawnHandler
	if spawn == nil {
		spawn = defaultSpawnHandler
	}
	nameFor := b.workerName
	if nameFor == nil {
		nameFor = func(i int) string { return fmt.Sprintf("%s-worker-%d", b.name, i) }
	}
	for i := 0; i < n; i++ {
		wb := &WorkerBuilder{
			name:     nameFor(i),
			index:    i,
			deque:    deques[i],
			registry: r,
		}
		if err := spawn(wb); err != nil {
			return nil, &BuildError{Pool: b.name, Index: i, Err: err}
		}
	}
	ok = true

	capitan.Info(context.Background(), SignalPoolStarted,
		FieldPool.Field(string(r.name)),
		FieldWorkers.Field(n),
		FieldTimestamp.Field(float64(clock.Now().Unix())),
	)
	return r, nil
}

// ID returns this pool's opaque identity.
func (r *Registry) ID() RegistryID {
	return r.id
}

// NumWorkers returns the number of workers in the pool.
func (r *Registry) NumWorkers() int {
	return len(r.threadInfos)
}

// WaitUntilPrimed blocks until every worker has entered its main loop.
// Primarily useful for benchmarking, so that timing starts with the pool
// ready to go.
func (r *Registry) WaitUntilPrimed() {
	for i := range r.threadInfos {
		r.threadInfos[i].primed.wait()
	}
}

// waitUntilStopped blocks until every worker has exited its main loop.
func (r *Registry) waitUntilStopped() {
	for i := range r.threadInfos {
		r.threadInfos[i].stopped.wait()
	}
}

// inject pushes jobs onto the injection queue and informs the sleep
// subsystem. Submitting to a terminated pool is a program error and panics.
func (r *Registry) inject(jobs ...job) {
	if r.terminateCount.Load() == 0 {
		panic(ErrPoolTerminated)
	}

	wasEmpty := r.injected.isEmpty()
	for _, j := range jobs {
		r.injected.push(j)
		r.metrics.Counter(PoolJobsInjectedTotal).Inc()
	}

	capitan.Info(context.Background(), SignalJobsInjected,
		FieldPool.Field(string(r.name)),
		FieldCount.Field(len(jobs)),
		FieldTimestamp.Field(float64(r.clock.Now().Unix())),
	)

	r.sleep.newInjectedJobs(len(jobs), wasEmpty)
}

// injectOrPush takes the fast path when the submitter is a worker of this
// pool: straight onto its local deque. Everyone else goes through the
// injection queue.
func (r *Registry) injectOrPush(from *Worker, j job) {
	if from != nil && from.registry == r {
		from.push(j)
		return
	}
	r.inject(j)
}

func (r *Registry) hasInjectedJob() bool {
	return !r.injected.isEmpty()
}

func (r *Registry) popInjectedJob() (job, bool) {
	for {
		j, res := r.injected.steal()
		switch res {
		case stealSuccess:
			r.metrics.Counter(PoolJobsUninjectedTotal).Inc()
			return j, true
		case stealEmpty:
			return nil, false
		case stealRetry:
		}
	}
}

// incrementTerminateCount takes an extra reference on the pool, balanced by
// a later terminate call. Used by Spawn, whose work outlives any blocking
// scope.
func (r *Registry) incrementTerminateCount() {
	if r.terminateCount.Add(1) == 1 {
		panic("pool reference count incremented from zero")
	}
}

// terminate drops one reference. When the count reaches zero every worker's
// terminate latch is set and the workers wind down once their queues drain.
func (r *Registry) terminate() {
	if r.terminateCount.Add(-1) == 0 {
		for i := range r.threadInfos {
			r.threadInfos[i].terminate.setAndTickleOne(r, i)
		}
		capitan.Info(context.Background(), SignalPoolTerminated,
			FieldPool.Field(string(r.name)),
			FieldTimestamp.Field(float64(r.clock.Now().Unix())),
		)
	}
}

// notifyWorkerLatchIsSet wakes the given worker if it is sleeping on the
// latch that was just set.
func (r *Registry) notifyWorkerLatchIsSet(worker int) {
	r.sleep.notifyWorkerLatchIsSet(worker)
}

// handlePanic routes a captured panic payload to the configured handler.
// Without a handler, or if the handler itself panics, the panic continues
// up the worker goroutine unrecovered and takes the process down.
func (r *Registry) handlePanic(v any) {
	capitan.Warn(context.Background(), SignalJobPanicked,
		FieldPool.Field(string(r.name)),
		FieldError.Field(fmt.Sprint(v)),
		FieldTimestamp.Field(float64(r.clock.Now().Unix())),
	)
	_ = r.hooks.Emit(context.Background(), HookPanic, WorkerEvent{ //nolint:errcheck
		Pool:      r.name,
		Worker:    -1,
		Panic:     v,
		Timestamp: r.clock.Now(),
	})

	if h := r.panicHandler; h != nil {
		h(v)
		return
	}
	panic(v)
}

// inWorker runs op on a worker of this pool and returns its result. Three
// cases:
//
//   - from is a worker of this pool: op runs inline, injected=false.
//   - from is a worker of another pool: op is injected here and from keeps
//     working in its own pool until the result latch flips.
//   - from is nil (outside all pools): op is injected and the caller parks
//     on a mutex-backed latch.
//
// Panics from op are re-raised on the caller.
func inWorker[R any](r *Registry, from *Worker, op func(w *Worker, injected bool) R) R {
	switch {
	case from == nil:
		return inWorkerCold(r, op)
	case from.registry != r:
		return inWorkerCross(r, from, op)
	default:
		return op(from, false)
	}
}

// lockLatchPool recycles the parking latches of outside callers, the moral
// equivalent of one latch per submitting thread.
var lockLatchPool = sync.Pool{
	New: func() any { return newLockLatch() },
}

func inWorkerCold[R any](r *Registry, op func(w *Worker, injected bool) R) R {
	_, span := r.tracer.StartSpan(context.Background(), InstallColdSpan)
	defer span.Finish()
	span.SetTag(InstallTagPool, string(r.name))

	l := lockLatchPool.Get().(*lockLatch)
	j := newStackJob(func(w *Worker, _ bool) R {
		return op(w, true)
	}, l)
	r.inject(j)
	l.waitAndReset()
	lockLatchPool.Put(l)
	return j.intoResult()
}

func inWorkerCross[R any](r *Registry, from *Worker, op func(w *Worker, injected bool) R) R {
	_, span := r.tracer.StartSpan(context.Background(), InstallCrossSpan)
	defer span.Finish()
	span.SetTag(InstallTagPool, string(r.name))

	l := newCrossSpinLatch(from)
	j := newStackJob(func(w *Worker, _ bool) R {
		return op(w, true)
	}, l)
	r.inject(j)
	from.waitUntil(l)
	return j.intoResult()
}

// Global pool. Created lazily by first use with default configuration, or
// explicitly (first writer wins) through InitGlobal.
var (
	globalMu       sync.Mutex
	globalRegistry *Registry
)

// InitGlobal builds the process-global pool from the given builder. It
// fails with ErrGlobalPoolAlreadyInitialized when the global pool already
// exists, whether from an earlier call or from lazy first use.
func InitGlobal(b *Builder) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry != nil {
		return ErrGlobalPoolAlreadyInitialized
	}
	r, err := newRegistry(b)
	if err != nil {
		return err
	}
	globalRegistry = r
	return nil
}

// theGlobalRegistry returns the global pool, creating it with defaults on
// first use. The global pool holds its own sentinel reference and never
// terminates.
func theGlobalRegistry() *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry == nil {
		r, err := newRegistry(NewBuilder("forkz-global"))
		if err != nil {
			panic(err)
		}
		globalRegistry = r
	}
	return globalRegistry
}

// currentRegistry resolves the pool a call site belongs to: the worker's
// own pool inside one, the global pool outside.
func currentRegistry(w *Worker) *Registry {
	if w != nil {
		return w.registry
	}
	return theGlobalRegistry()
}
