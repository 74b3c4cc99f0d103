package forkz

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestInstall(t *testing.T) {
	t.Run("Single Job From Outside", func(t *testing.T) {
		pool, err := NewBuilder("install-test").NumWorkers(4).Build()
		if err != nil {
			t.Fatalf("building pool: %v", err)
		}
		defer pool.Close()

		var slot atomic.Int64
		Install(pool, nil, func(w *Worker) struct{} {
			slot.Store(42)
			return struct{}{}
		})
		if got := slot.Load(); got != 42 {
			t.Fatalf("slot = %d, want 42", got)
		}
	})

	t.Run("Worker Handle Is Valid", func(t *testing.T) {
		pool, err := NewBuilder("handle-test").NumWorkers(4).Build()
		if err != nil {
			t.Fatalf("building pool: %v", err)
		}
		defer pool.Close()

		idx := Install(pool, nil, func(w *Worker) int {
			return w.Index()
		})
		if idx < 0 || idx >= pool.NumWorkers() {
			t.Fatalf("worker index %d out of range [0,%d)", idx, pool.NumWorkers())
		}
	})

	t.Run("Hot Path Runs Inline", func(t *testing.T) {
		pool, err := NewBuilder("hot-test").NumWorkers(2).Build()
		if err != nil {
			t.Fatalf("building pool: %v", err)
		}
		defer pool.Close()

		outer := Install(pool, nil, func(w *Worker) *Worker {
			inner := Install(pool, w, func(w2 *Worker) *Worker { return w2 })
			if inner != w {
				t.Error("nested install on the same pool should reuse the worker")
			}
			return w
		})
		if outer == nil {
			t.Fatal("install returned nil worker")
		}
	})

	t.Run("Cross Pool Wait", func(t *testing.T) {
		a, err := NewBuilder("cross-a").NumWorkers(2).Build()
		if err != nil {
			t.Fatalf("building pool a: %v", err)
		}
		defer a.Close()
		b, err := NewBuilder("cross-b").NumWorkers(2).Build()
		if err != nil {
			t.Fatalf("building pool b: %v", err)
		}
		defer b.Close()

		got := Install(a, nil, func(wa *Worker) int {
			v := Install(b, wa, func(wb *Worker) int {
				if wb.registry != b.registry {
					t.Error("op ran on the wrong pool")
				}
				return 7
			})
			// The outer worker must still be usable after the cross wait.
			x, y := Join(wa,
				func(*Worker) int { return 1 },
				func(*Worker) int { return 2 },
			)
			return v + x + y
		})
		if got != 10 {
			t.Fatalf("cross-pool result = %d, want 10", got)
		}
	})

	t.Run("Pool Identity", func(t *testing.T) {
		a, err := NewBuilder("id-a").NumWorkers(1).Build()
		if err != nil {
			t.Fatalf("building pool: %v", err)
		}
		defer a.Close()
		b, err := NewBuilder("id-b").NumWorkers(1).Build()
		if err != nil {
			t.Fatalf("building pool: %v", err)
		}
		defer b.Close()
		if a.ID() == b.ID() {
			t.Fatal("distinct pools must have distinct identities")
		}
	})
}

func TestWaitUntilPrimed(t *testing.T) {
	pool, err := NewBuilder("primed-test").NumWorkers(3).Build()
	if err != nil {
		t.Fatalf("building pool: %v", err)
	}
	defer pool.Close()

	done := make(chan struct{})
	go func() {
		pool.WaitUntilPrimed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers never primed")
	}
}

func TestInjectAfterTerminate(t *testing.T) {
	pool, err := NewBuilder("terminated-test").NumWorkers(2).Build()
	if err != nil {
		t.Fatalf("building pool: %v", err)
	}
	pool.Close()
	pool.registry.waitUntilStopped()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic injecting into a terminated pool")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrPoolTerminated) {
			t.Fatalf("recovered %v, want ErrPoolTerminated", r)
		}
	}()
	pool.registry.inject(&heapJob{fn: func(*Worker) {}})
}

func TestGlobalPool(t *testing.T) {
	t.Run("Lazy Install Works", func(t *testing.T) {
		got := InstallGlobal(func(w *Worker) int { return 21 * 2 })
		if got != 42 {
			t.Fatalf("InstallGlobal = %d, want 42", got)
		}
	})

	t.Run("Init After Use Fails", func(t *testing.T) {
		// Force the lazy path, then explicit initialization must be
		// rejected.
		_ = InstallGlobal(func(*Worker) struct{} { return struct{}{} })
		err := NewBuilder("too-late").NumWorkers(1).BuildGlobal()
		if !errors.Is(err, ErrGlobalPoolAlreadyInitialized) {
			t.Fatalf("BuildGlobal = %v, want ErrGlobalPoolAlreadyInitialized", err)
		}
	})
}

func TestBuildFailure(t *testing.T) {
	boom := errors.New("no threads today")
	pool, err := NewBuilder("spawn-fail").
		NumWorkers(3).
		SpawnHandler(func(wb *WorkerBuilder) error {
			if wb.Index() == 2 {
				return boom
			}
			go wb.Run()
			return nil
		}).
		Build()
	if pool != nil {
		t.Fatal("pool handle returned despite spawn failure")
	}
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("error %v, want *BuildError", err)
	}
	if be.Index != 2 || !errors.Is(err, boom) {
		t.Fatalf("BuildError = %+v, want index 2 wrapping spawn error", be)
	}
}
