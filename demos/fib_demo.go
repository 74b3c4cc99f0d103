package main

import (
	"fmt"
	"time"

	"github.com/zoobzio/forkz"
)

func fib(w *forkz.Worker, n int) int {
	if n < 2 {
		return n
	}
	a, b := forkz.Join(w,
		func(w *forkz.Worker) int { return fib(w, n-1) },
		func(w *forkz.Worker) int { return fib(w, n-2) },
	)
	return a + b
}

func fibSeq(n int) int {
	if n < 2 {
		return n
	}
	return fibSeq(n-1) + fibSeq(n-2)
}

func runFibDemo() {
	pool, err := forkz.NewBuilder("fib-demo").Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer pool.Close()
	pool.WaitUntilPrimed()

	const n = 30

	start := time.Now()
	seq := fibSeq(n)
	seqDur := time.Since(start)

	start = time.Now()
	par := forkz.Install(pool, nil, func(w *forkz.Worker) int {
		return fib(w, n)
	})
	parDur := time.Since(start)

	fmt.Printf("fib(%d) sequential: %d in %v\n", n, seq, seqDur)
	fmt.Printf("fib(%d) on %d workers: %d in %v\n", n, pool.NumWorkers(), par, parDur)
}
