package forkz

import (
	"errors"
	"fmt"
)

// ErrGlobalPoolAlreadyInitialized is returned by InitGlobal when the global
// pool has already been created, either by an earlier InitGlobal call or
// lazily by first use.
var ErrGlobalPoolAlreadyInitialized = errors.New("global pool already initialized")

// ErrPoolTerminated reports a submission to a pool whose terminate count has
// already reached zero. Submitting to a terminated pool is a program error;
// the scheduler panics with this value rather than dropping work silently.
var ErrPoolTerminated = errors.New("job submitted to a terminated pool")

// BuildError reports a failure to start one of the pool's workers. Workers
// spawned before the failure drain their queues and exit; the pool is not
// usable.
type BuildError struct {
	Pool  Name
	Index int
	Err   error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: spawning worker %d: %v", e.Pool, e.Index, e.Err)
}

// Unwrap returns the underlying spawn error, supporting errors.Is and
// errors.As.
func (e *BuildError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
