package forkz

import (
	"context"
	"runtime"
	"runtime/pprof"

	"github.com/zoobzio/clockz"
)

// SpawnHandler launches one worker. The handler must arrange for
// WorkerBuilder.Run to be called on a goroutine of its choosing (it may
// lock OS threads, set scheduling attributes, or defer the launch) and
// return an error if the worker cannot be started.
type SpawnHandler func(*WorkerBuilder) error

// PanicHandler receives panic payloads from fire-and-forget work. A panic
// inside the handler itself is not recovered and takes the process down.
type PanicHandler func(any)

// WorkerHandler runs at worker start or exit with the worker's index.
type WorkerHandler func(index int)

// Builder configures a pool. The zero-ish builder from NewBuilder produces
// a pool with one worker per available CPU, LIFO deques, and the real
// clock.
//
// Example:
//
//	pool, err := forkz.NewBuilder("ingest").
//	    NumWorkers(4).
//	    StartHandler(func(i int) { log.Printf("worker %d up", i) }).
//	    Build()
type Builder struct {
	name         Name
	numWorkers   int
	breadthFirst bool
	workerName   func(int) string
	spawnHandler SpawnHandler
	panicHandler PanicHandler
	startHandler WorkerHandler
	exitHandler  WorkerHandler
	clock        clockz.Clock
}

// NewBuilder creates a Builder for a pool with the given name.
func NewBuilder(name Name) *Builder {
	return &Builder{name: name}
}

// NumWorkers sets the worker count. Zero or negative means one worker per
// available CPU. The count is soft-capped at a platform limit.
func (b *Builder) NumWorkers(n int) *Builder {
	b.numWorkers = n
	return b
}

// BreadthFirst switches the workers' deques to FIFO order: a worker
// consumes its own submissions oldest-first instead of newest-first.
// Useful when task trees should be explored level by level.
func (b *Builder) BreadthFirst() *Builder {
	b.breadthFirst = true
	return b
}

// WorkerName sets the naming callback for workers. Names show up in
// profiler labels and in the WorkerBuilder handed to a custom spawn
// handler.
func (b *Builder) WorkerName(f func(index int) string) *Builder {
	b.workerName = f
	return b
}

// SpawnHandler replaces the default goroutine launcher.
func (b *Builder) SpawnHandler(h SpawnHandler) *Builder {
	b.spawnHandler = h
	return b
}

// PanicHandler installs a handler for panics escaping fire-and-forget
// work. Without one, such a panic crashes the process.
func (b *Builder) PanicHandler(h PanicHandler) *Builder {
	b.panicHandler = h
	return b
}

// StartHandler runs on each worker goroutine before it starts taking work.
func (b *Builder) StartHandler(h WorkerHandler) *Builder {
	b.startHandler = h
	return b
}

// ExitHandler runs on each worker goroutine after it stops taking work.
func (b *Builder) ExitHandler(h WorkerHandler) *Builder {
	b.exitHandler = h
	return b
}

// WithClock sets a custom clock. Defaults to the real clock; tests inject
// a fake.
func (b *Builder) WithClock(clock clockz.Clock) *Builder {
	b.clock = clock
	return b
}

// Build starts the workers and returns the pool handle. The handle owns
// one reference on the pool; Close releases it.
func (b *Builder) Build() (*ThreadPool, error) {
	r, err := newRegistry(b)
	if err != nil {
		return nil, err
	}
	return &ThreadPool{registry: r}, nil
}

// BuildGlobal builds the process-global pool from this builder. First
// writer wins; see InitGlobal.
func (b *Builder) BuildGlobal() error {
	return InitGlobal(b)
}

// WorkerBuilder carries everything a spawn handler needs to launch one
// worker.
type WorkerBuilder struct {
	name     string
	index    int
	deque    *deque
	registry *Registry
}

// Index returns the worker's position in the pool, within 0..NumWorkers.
func (wb *WorkerBuilder) Index() int {
	return wb.index
}

// Name returns the name produced by the pool's WorkerName callback.
func (wb *WorkerBuilder) Name() string {
	return wb.name
}

// Run executes the worker's main loop. It does not return until the pool
// terminates. Spawn handlers must call this exactly once, on the goroutine
// that is to become the worker.
func (wb *WorkerBuilder) Run() {
	workerMain(wb.deque, wb.registry, wb.index)
}

// defaultSpawnHandler launches the worker on a plain goroutine with its
// name attached as a profiler label.
func defaultSpawnHandler(wb *WorkerBuilder) error {
	go pprof.Do(context.Background(), pprof.Labels("worker", wb.Name()), func(context.Context) {
		wb.Run()
	})
	return nil
}

func defaultNumWorkers() int {
	return runtime.GOMAXPROCS(0)
}
