package forkz

import "sync"

// job is a type-erased, one-shot unit of work. The interface value itself is
// the (data pointer, code pointer) pair; executing it consumes the reference.
// Jobs always run on a worker goroutine and receive the executing worker.
type job interface {
	execute(w *Worker)
}

// stackJob lives on the submitter's frame: a closure, a result slot, and the
// latch the submitter waits on. The job must not outlive the submitter; the
// submitter enforces that by waiting on the latch before returning.
type stackJob[R any] struct {
	fn       func(w *Worker, injected bool) R
	latch    latch
	result   R
	panicked *captured
}

func newStackJob[R any](fn func(w *Worker, injected bool) R, l latch) *stackJob[R] {
	return &stackJob[R]{fn: fn, latch: l}
}

// execute runs the closure under panic capture, stores the result or the
// panic payload, and only then sets the latch. A waiter that observes the
// latch set therefore also observes the result.
func (j *stackJob[R]) execute(w *Worker) {
	if c := haltPanic(func() {
		j.result = j.fn(w, true)
	}); c != nil {
		j.panicked = c
	}
	j.latch.set()
}

// runInline runs the closure directly on the submitting worker, when the
// submitter popped its own job back before anyone stole it. Panics propagate
// to the caller unchanged.
func (j *stackJob[R]) runInline(w *Worker) R {
	return j.fn(w, false)
}

// intoResult moves the stored result out. Only legal after the latch has
// been observed set. Re-raises a captured panic.
func (j *stackJob[R]) intoResult() R {
	if j.panicked != nil {
		resumePanic(j.panicked)
	}
	return j.result
}

// heapJob is an independently owned job used by fire-and-forget submissions.
type heapJob struct {
	fn func(w *Worker)
}

func (j *heapJob) execute(w *Worker) {
	j.fn(w)
}

// jobFifo is a per-worker indirection queue that preserves FIFO order among
// its submissions while the worker's deque stays LIFO. Pushing returns a
// fresh job whose execution dequeues and runs the oldest entry; it is those
// indirection jobs that travel through deques and thieves.
type jobFifo struct {
	mu    sync.Mutex
	queue []job
}

func (f *jobFifo) push(j job) job {
	f.mu.Lock()
	f.queue = append(f.queue, j)
	f.mu.Unlock()
	return &fifoPopJob{fifo: f}
}

type fifoPopJob struct {
	fifo *jobFifo
}

func (p *fifoPopJob) execute(w *Worker) {
	f := p.fifo
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		panic("fifo indirection executed with no queued job")
	}
	next := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	f.mu.Unlock()
	next.execute(w)
}
