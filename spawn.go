package forkz

// Spawn submits fire-and-forget work. The task takes its own reference on
// the pool's terminate count, so the pool stays alive until the task
// finishes even if every external handle is closed first.
//
// from is the caller's current worker handle; a worker spawning into its
// own pool pushes to its local deque, everyone else goes through the
// injection queue. With a nil from the task runs on the global pool.
//
// There is no way to wait for a spawned task; pair it with a Scope or an
// external signal when completion matters. A panic in f goes to the pool's
// panic handler; without one the process crashes.
func Spawn(from *Worker, f func(*Worker)) {
	spawnIn(currentRegistry(from), from, f)
}

// SpawnFifo is Spawn with one ordering guarantee added: SpawnFifo tasks
// submitted by the same worker execute in submission order. They route
// through the worker's FIFO indirection queue, so the guarantee holds even
// though the deque itself is LIFO.
func SpawnFifo(from *Worker, f func(*Worker)) {
	spawnFifoIn(currentRegistry(from), from, f)
}

func spawnJob(r *Registry, f func(*Worker)) job {
	r.incrementTerminateCount()
	return &heapJob{fn: func(w *Worker) {
		defer r.terminate()
		if c := haltPanic(func() { f(w) }); c != nil {
			r.handlePanic(c.value)
		}
	}}
}

func spawnIn(r *Registry, from *Worker, f func(*Worker)) {
	r.injectOrPush(from, spawnJob(r, f))
}

func spawnFifoIn(r *Registry, from *Worker, f func(*Worker)) {
	j := spawnJob(r, f)
	if from != nil && from.registry == r {
		from.pushFifo(j)
		return
	}
	r.inject(j)
}
