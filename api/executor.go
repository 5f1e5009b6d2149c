// Package api
// Author: momentics
//
// Executor contract for handing connection work off the reactor thread.

package api

// Task is one unit of queued work.
type Task interface {
	Run()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }

// Executor abstracts the worker pool.
type Executor interface {
	// Submit schedules task for execution. It may block under backpressure
	// but never drops a task silently.
	Submit(task Task) error

	// NumWorkers returns the fixed number of worker goroutines.
	NumWorkers() int

	// Pending returns the number of queued, not yet started tasks.
	Pending() int

	// Close stops intake, drains queued tasks and waits for workers to exit.
	Close()
}
