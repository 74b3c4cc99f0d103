package forkz

import (
	"context"
	"sync"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// ThreadPool is the public handle on a pool. It owns one reference on the
// underlying registry; dropping the handle (Close) lets the workers wind
// down once all outstanding work, including fire-and-forget Spawns, has
// completed.
type ThreadPool struct {
	registry  *Registry
	closeOnce sync.Once
}

// NumWorkers returns the number of workers in the pool.
func (p *ThreadPool) NumWorkers() int {
	return p.registry.NumWorkers()
}

// ID returns the pool's opaque identity.
func (p *ThreadPool) ID() RegistryID {
	return p.registry.ID()
}

// WaitUntilPrimed blocks until every worker has entered its main loop.
func (p *ThreadPool) WaitUntilPrimed() {
	p.registry.WaitUntilPrimed()
}

// Close releases the handle's reference on the pool. Workers exit
// cooperatively once the last reference is gone and their queues drain;
// observability components shut down after the last worker stops. Close is
// idempotent and never blocks on the workers.
func (p *ThreadPool) Close() error {
	p.closeOnce.Do(func() {
		r := p.registry
		r.terminate()
		go func() {
			r.waitUntilStopped()
			r.tracer.Close()
			r.hooks.Close()
		}()
	})
	return nil
}

// Spawn submits fire-and-forget work to this pool from outside it. The
// task holds its own reference on the pool, so Close does not cut it off.
// Workers of this pool should prefer the package-level Spawn with their
// worker handle, which takes the local fast path.
func (p *ThreadPool) Spawn(f func(*Worker)) {
	spawnIn(p.registry, nil, f)
}

// SpawnFifo is Spawn with FIFO ordering among SpawnFifo submissions.
func (p *ThreadPool) SpawnFifo(f func(*Worker)) {
	spawnFifoIn(p.registry, nil, f)
}

// Metrics returns the pool's metrics registry.
func (p *ThreadPool) Metrics() *metricz.Registry {
	return p.registry.metrics
}

// Tracer returns the pool's tracer.
func (p *ThreadPool) Tracer() *tracez.Tracer {
	return p.registry.tracer
}

// OnWorkerStart registers a handler fired when a worker enters its main
// loop.
func (p *ThreadPool) OnWorkerStart(handler func(context.Context, WorkerEvent) error) error {
	_, err := p.registry.hooks.Hook(HookWorkerStarted, handler)
	return err
}

// OnWorkerExit registers a handler fired when a worker leaves its main
// loop.
func (p *ThreadPool) OnWorkerExit(handler func(context.Context, WorkerEvent) error) error {
	_, err := p.registry.hooks.Hook(HookWorkerExited, handler)
	return err
}

// OnPanic registers a handler fired when a panic reaches the pool's panic
// boundary.
func (p *ThreadPool) OnPanic(handler func(context.Context, WorkerEvent) error) error {
	_, err := p.registry.hooks.Hook(HookPanic, handler)
	return err
}

// Install runs f on a worker of pool and returns its result. The from
// argument is the caller's current worker handle: nil when calling from
// outside any pool (the caller parks until f completes), a worker of
// another pool (that worker keeps stealing its own pool's work while
// waiting), or a worker of this pool (f runs inline).
//
// Install is the bridge between plain goroutines and the scheduler;
// everything else (Join, Scope, Spawn) is reachable from the worker handle
// it provides.
func Install[R any](pool *ThreadPool, from *Worker, f func(*Worker) R) R {
	return inWorker(pool.registry, from, func(w *Worker, _ bool) R {
		return f(w)
	})
}

// InstallGlobal is Install against the process-global pool, creating it
// with defaults on first use.
func InstallGlobal[R any](f func(*Worker) R) R {
	return inWorker(theGlobalRegistry(), nil, func(w *Worker, _ bool) R {
		return f(w)
	})
}
