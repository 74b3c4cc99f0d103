package forkz

import (
	"sync"
	"testing"
)

func intJob(n int, sink *[]int, mu *sync.Mutex) job {
	return &heapJob{fn: func(*Worker) {
		mu.Lock()
		*sink = append(*sink, n)
		mu.Unlock()
	}}
}

func TestDeque(t *testing.T) {
	t.Run("LIFO Owner Pop", func(t *testing.T) {
		d := newDeque(dequeLIFO)
		a, b := &heapJob{}, &heapJob{}
		d.push(a)
		d.push(b)
		j, ok := d.pop()
		if !ok || j != job(b) {
			t.Fatal("LIFO pop should return the newest job")
		}
		j, ok = d.pop()
		if !ok || j != job(a) {
			t.Fatal("second pop should return the older job")
		}
		if _, ok = d.pop(); ok {
			t.Fatal("pop on empty deque should fail")
		}
	})

	t.Run("FIFO Owner Pop", func(t *testing.T) {
		d := newDeque(dequeFIFO)
		a, b := &heapJob{}, &heapJob{}
		d.push(a)
		d.push(b)
		j, ok := d.pop()
		if !ok || j != job(a) {
			t.Fatal("FIFO pop should return the oldest job")
		}
	})

	t.Run("Steal Takes Oldest", func(t *testing.T) {
		d := newDeque(dequeLIFO)
		a, b := &heapJob{}, &heapJob{}
		d.push(a)
		d.push(b)
		j, res := d.steal()
		if res != stealSuccess || j != job(a) {
			t.Fatal("thieves must take the opposite end from the owner")
		}
	})

	t.Run("Steal Empty", func(t *testing.T) {
		d := newDeque(dequeLIFO)
		if _, res := d.steal(); res != stealEmpty {
			t.Fatalf("steal on empty deque = %v, want stealEmpty", res)
		}
	})

	t.Run("Steal Contended Retries", func(t *testing.T) {
		d := newDeque(dequeLIFO)
		d.push(&heapJob{})
		d.mu.Lock()
		_, res := d.steal()
		d.mu.Unlock()
		if res != stealRetry {
			t.Fatalf("contended steal = %v, want stealRetry", res)
		}
	})

	t.Run("Concurrent Steals Each Job Once", func(t *testing.T) {
		d := newDeque(dequeLIFO)
		const n = 1000
		for i := 0; i < n; i++ {
			d.push(&heapJob{})
		}
		var taken sync.Map
		var count int64
		var wg sync.WaitGroup
		var countMu sync.Mutex
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					j, res := d.steal()
					switch res {
					case stealSuccess:
						if _, dup := taken.LoadOrStore(j, true); dup {
							t.Error("job stolen twice")
							return
						}
						countMu.Lock()
						count++
						countMu.Unlock()
					case stealEmpty:
						return
					case stealRetry:
					}
				}
			}()
		}
		wg.Wait()
		if count != n {
			t.Fatalf("stole %d jobs, want %d", count, n)
		}
	})
}

func TestInjector(t *testing.T) {
	t.Run("FIFO Order", func(t *testing.T) {
		var q injector
		var mu sync.Mutex
		var got []int
		for i := 0; i < 5; i++ {
			q.push(intJob(i, &got, &mu))
		}
		for {
			j, res := q.steal()
			if res == stealEmpty {
				break
			}
			if res == stealSuccess {
				j.execute(nil)
			}
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("injection order = %v, want ascending", got)
			}
		}
	})

	t.Run("IsEmpty", func(t *testing.T) {
		var q injector
		if !q.isEmpty() {
			t.Fatal("fresh injector should be empty")
		}
		q.push(&heapJob{})
		if q.isEmpty() {
			t.Fatal("injector with a job should not be empty")
		}
	})
}
