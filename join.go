package forkz

// pair carries the two results of a Join shipped through a single job.
type pair[A, B any] struct {
	a A
	b B
}

// Join runs a and b, potentially in parallel, and returns both results. It
// is the fork/merge primitive: b is published to the caller's deque where
// an idle peer may steal it, a runs immediately on the caller, and the
// caller then works off its own and others' jobs until b's result is
// ready. If nobody stole b, the caller pops it back and runs it inline, so
// the sequential case pays almost nothing.
//
// When w is nil the pair is shipped to the global pool first.
//
// Panics propagate: a panic in either closure surfaces at the Join call.
// If both panic, the caller's own closure wins and the other payload is
// discarded.
func Join[A, B any](w *Worker, a func(*Worker) A, b func(*Worker) B) (A, B) {
	if w == nil {
		p := InstallGlobal(func(w *Worker) pair[A, B] {
			ra, rb := Join(w, a, b)
			return pair[A, B]{ra, rb}
		})
		return p.a, p.b
	}

	latchB := newSpinLatch(w)
	jobB := newStackJob(func(w *Worker, _ bool) B {
		return b(w)
	}, latchB)
	w.push(jobB)

	var ra A
	if c := haltPanic(func() { ra = a(w) }); c != nil {
		// The sibling may borrow our frame, so it must finish before the
		// panic continues. Its own result or panic is discarded.
		w.waitUntil(latchB)
		resumePanic(c)
	}

	core := latchB.asCoreLatch()
	for !core.probe() {
		j, ok := w.takeLocalJob()
		if !ok {
			w.waitUntil(latchB)
			break
		}
		if j == job(jobB) {
			// Popped our own fork back before anyone stole it.
			return ra, jobB.runInline(w)
		}
		w.execute(j)
	}
	return ra, jobB.intoResult()
}
