package main

import (
	"fmt"
	"sync/atomic"

	"github.com/zoobzio/forkz"
)

func runScopeDemo() {
	pool, err := forkz.NewBuilder("scope-demo").Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer pool.Close()

	// Count primes under the limit by fanning one task per block out over
	// the pool and merging into a shared counter.
	const limit = 200000
	const block = 1000

	var primes atomic.Int64
	forkz.Install(pool, nil, func(w *forkz.Worker) struct{} {
		return forkz.Scope(w, func(s *forkz.TaskScope, w *forkz.Worker) struct{} {
			for lo := 2; lo < limit; lo += block {
				lo := lo
				s.Spawn(w, func(*forkz.Worker) {
					hi := lo + block
					if hi > limit {
						hi = limit
					}
					var n int64
					for v := lo; v < hi; v++ {
						if isPrime(v) {
							n++
						}
					}
					primes.Add(n)
				})
			}
			return struct{}{}
		})
	})

	fmt.Printf("%d primes below %d (%d workers)\n", primes.Load(), limit, pool.NumWorkers())
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}
