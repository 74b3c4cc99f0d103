package forkz

import "github.com/zoobzio/capitan"

// Signal constants for forkz scheduler events.
// Signals follow the pattern: <component>.<event>.
var (
	// Pool signals.
	SignalPoolStarted    = capitan.NewSignal("pool.started", "Pool started")
	SignalPoolTerminated = capitan.NewSignal("pool.terminated", "Pool terminated")

	// Worker signals.
	SignalWorkerStarted = capitan.NewSignal("worker.started", "Worker started")
	SignalWorkerExited  = capitan.NewSignal("worker.exited", "Worker exited")

	// Scheduling signals.
	SignalJobsInjected = capitan.NewSignal("jobs.injected", "Jobs injected")
	SignalJobPanicked  = capitan.NewSignal("job.panicked", "Job panicked")

	// Sleep signals.
	SignalWorkerSleeping = capitan.NewSignal("worker.sleeping", "Worker sleeping")
	SignalWorkerWoken    = capitan.NewSignal("worker.woken", "Worker woken")
)

// Common field keys using capitan primitive types.
var (
	FieldPool      = capitan.NewStringKey("pool")       // Pool name
	FieldWorker    = capitan.NewIntKey("worker")        // Worker index
	FieldWorkers   = capitan.NewIntKey("workers")       // Total worker count
	FieldCount     = capitan.NewIntKey("count")         // Number of jobs
	FieldError     = capitan.NewStringKey("error")      // Panic or error text
	FieldTimestamp = capitan.NewFloat64Key("timestamp") // Unix timestamp
)
