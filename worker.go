package forkz

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Metric keys for per-worker scheduling activity.
const (
	WorkerJobsPushedTotal   = metricz.Key("worker.jobs.pushed.total")
	WorkerJobsPoppedTotal   = metricz.Key("worker.jobs.popped.total")
	WorkerJobsStolenTotal   = metricz.Key("worker.jobs.stolen.total")
	WorkerStealRetriesTotal = metricz.Key("worker.steal.retries.total")
)

// Worker is the per-goroutine scheduler state: the owner side of its deque,
// the FIFO indirection queue, a weak per-worker RNG for victim selection,
// and a back reference to the owning pool. User closures receive the
// *Worker executing them; the handle is only valid on that goroutine and
// only while the closure runs.
type Worker struct {
	deque    *deque
	fifo     jobFifo
	index    int
	rng      xorShift64Star
	registry *Registry
}

// Index returns this worker's position in the pool, in [0, NumWorkers).
func (w *Worker) Index() int {
	return w.index
}

// push places a job on the worker's own deque and tells the sleep subsystem
// whether the deque was empty before, so parked peers can be woken to steal.
func (w *Worker) push(j job) {
	wasEmpty := w.deque.isEmpty()
	w.deque.push(j)
	w.registry.metrics.Counter(WorkerJobsPushedTotal).Inc()
	w.registry.sleep.newInternalJobs(1, wasEmpty)
}

// pushFifo routes a job through the worker's FIFO indirection queue, so
// that submissions keep their order even though the deque is LIFO.
func (w *Worker) pushFifo(j job) {
	w.push(w.fifo.push(j))
}

// takeLocalJob pops from the worker's own deque per its policy.
func (w *Worker) takeLocalJob() (job, bool) {
	j, ok := w.deque.pop()
	if ok {
		w.registry.metrics.Counter(WorkerJobsPoppedTotal).Inc()
	}
	return j, ok
}

func (w *Worker) localDequeIsEmpty() bool {
	return w.deque.isEmpty()
}

// execute consumes a job.
func (w *Worker) execute(j job) {
	j.execute(w)
}

// waitUntil blocks until the latch is set, keeping busy with local, stolen,
// and injected jobs in that order.
func (w *Worker) waitUntil(l asCoreLatch) {
	core := l.asCoreLatch()
	if !core.probe() {
		w.waitUntilCold(core)
	}
}

// waitUntilCold is the scheduling loop. Preference order is local, then
// stolen, then injected: finish what was started before taking on outside
// work. A panic anywhere in here (outside the job-boundary capture) crashes
// the process, since other code may already assume the latch was signaled.
func (w *Worker) waitUntilCold(latch *coreLatch) {
	idle := w.registry.sleep.startLooking(w.index, latch)
	for !latch.probe() {
		j, ok := w.takeLocalJob()
		if !ok {
			j, ok = w.steal()
		}
		if !ok {
			j, ok = w.registry.popInjectedJob()
		}
		if ok {
			w.registry.sleep.workFound(&idle)
			w.execute(j)
			idle = w.registry.sleep.startLooking(w.index, latch)
		} else {
			w.registry.sleep.noWorkFound(&idle, latch, w.registry.hasInjectedJob)
		}
	}
	w.registry.sleep.workFound(&idle)
}

// steal attempts to take one job from a peer. The scan starts at a random
// victim and walks round-robin, skipping this worker. A contended victim is
// remembered and the whole scan restarts with a fresh random start if
// nothing was found. Only called when the local deque is empty.
func (w *Worker) steal() (job, bool) {
	infos := w.registry.threadInfos
	n := len(infos)
	if n <= 1 {
		return nil, false
	}
	for {
		retry := false
		start := w.rng.nextN(n)
		for i := 0; i < n; i++ {
			victim := (start + i) % n
			if victim == w.index {
				continue
			}
			j, res := infos[victim].stealer.steal()
			switch res {
			case stealSuccess:
				w.registry.metrics.Counter(WorkerJobsStolenTotal).Inc()
				return j, true
			case stealRetry:
				w.registry.metrics.Counter(WorkerStealRetriesTotal).Inc()
				retry = true
			case stealEmpty:
			}
		}
		if !retry {
			return nil, false
		}
	}
}

// workerMain is the whole life of one worker goroutine. Only the user
// start and exit handlers are catch regions here; any other panic unwinds
// the goroutine and crashes the process.
func workerMain(d *deque, r *Registry, index int) {
	w := &Worker{deque: d, index: index, registry: r}
	w.rng.seed()
	info := &r.threadInfos[index]

	info.primed.set()

	if h := r.startHandler; h != nil {
		if c := haltPanic(func() { h(index) }); c != nil {
			r.handlePanic(c.value)
		}
	}

	capitan.Info(context.Background(), SignalWorkerStarted,
		FieldPool.Field(string(r.name)),
		FieldWorker.Field(index),
		FieldTimestamp.Field(float64(r.clock.Now().Unix())),
	)
	_ = r.hooks.Emit(context.Background(), HookWorkerStarted, WorkerEvent{ //nolint:errcheck
		Pool:      r.name,
		Worker:    index,
		Timestamp: r.clock.Now(),
	})

	w.waitUntil(info.terminate)

	if _, ok := w.takeLocalJob(); ok {
		panic("worker exiting with jobs still in its deque")
	}

	info.stopped.set()

	capitan.Info(context.Background(), SignalWorkerExited,
		FieldPool.Field(string(r.name)),
		FieldWorker.Field(index),
		FieldTimestamp.Field(float64(r.clock.Now().Unix())),
	)
	_ = r.hooks.Emit(context.Background(), HookWorkerExited, WorkerEvent{ //nolint:errcheck
		Pool:      r.name,
		Worker:    index,
		Timestamp: r.clock.Now(),
	})

	if h := r.exitHandler; h != nil {
		if c := haltPanic(func() { h(index) }); c != nil {
			r.handlePanic(c.value)
		}
	}
}

// rngSeedCounter feeds worker RNG seeds. The raw counter values are nearly
// identical, so they pass through a hash before use.
var rngSeedCounter atomic.Uint64

// xorShift64Star is a weak but fast PRNG used only for picking steal
// victims.
type xorShift64Star struct {
	state uint64
}

func (x *xorShift64Star) seed() {
	var seed uint64
	for seed == 0 {
		h := fnv.New64a()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], rngSeedCounter.Add(1))
		_, _ = h.Write(buf[:]) //nolint:errcheck
		seed = h.Sum64()
	}
	x.state = seed
}

func (x *xorShift64Star) next() uint64 {
	v := x.state
	v ^= v >> 12
	v ^= v << 25
	v ^= v >> 27
	x.state = v
	return v * 0x2545f4914f6cdd1d
}

// nextN returns a value in [0, n).
func (x *xorShift64Star) nextN(n int) int {
	return int(x.next() % uint64(n))
}
