package forkz

import "sync"

// stealResult is the outcome of a thief's attempt on a deque or the
// injection queue.
type stealResult int

const (
	stealSuccess stealResult = iota
	stealEmpty
	stealRetry
)

// dequePolicy selects which end the owner pops from. Thieves always take
// the oldest entry.
type dequePolicy int

const (
	dequeLIFO dequePolicy = iota
	dequeFIFO
)

// deque is a per-worker double-ended queue. The owning worker pushes and
// pops on one side; thieves take from the other. Owner operations take the
// lock unconditionally, thieves back off with stealRetry instead of queueing
// on a contended lock.
type deque struct {
	mu     sync.Mutex
	jobs   []job
	policy dequePolicy
}

func newDeque(policy dequePolicy) *deque {
	return &deque{policy: policy}
}

// push appends a job on the owner side. Owner only.
func (d *deque) push(j job) {
	d.mu.Lock()
	d.jobs = append(d.jobs, j)
	d.mu.Unlock()
}

// pop takes the owner-side job: the newest under LIFO, the oldest under
// FIFO (breadth-first pools). Owner only.
func (d *deque) pop() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.jobs)
	if n == 0 {
		return nil, false
	}
	if d.policy == dequeLIFO {
		j := d.jobs[n-1]
		d.jobs[n-1] = nil
		d.jobs = d.jobs[:n-1]
		return j, true
	}
	j := d.jobs[0]
	d.jobs[0] = nil
	d.jobs = d.jobs[1:]
	return j, true
}

// steal takes the oldest job for a thief. Lock contention surfaces as
// stealRetry so the thief can keep scanning and come back.
func (d *deque) steal() (job, stealResult) {
	if !d.mu.TryLock() {
		return nil, stealRetry
	}
	defer d.mu.Unlock()
	if len(d.jobs) == 0 {
		return nil, stealEmpty
	}
	j := d.jobs[0]
	d.jobs[0] = nil
	d.jobs = d.jobs[1:]
	return j, stealSuccess
}

func (d *deque) isEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs) == 0
}

// injector is the global multi-producer multi-consumer queue for work
// originating outside any worker of the pool.
type injector struct {
	mu   sync.Mutex
	jobs []job
}

func (q *injector) push(j job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

func (q *injector) steal() (job, stealResult) {
	if !q.mu.TryLock() {
		return nil, stealRetry
	}
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, stealEmpty
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j, stealSuccess
}

func (q *injector) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) == 0
}
