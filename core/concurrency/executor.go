// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WorkerPool runs connection steps on a fixed set of worker goroutines fed
// from a single FIFO. The reactor goroutine only submits; it never performs
// socket I/O itself.

package concurrency

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-httpd/api"
)

// DefaultWorkers is used when NewWorkerPool is given a non-positive size.
const DefaultWorkers = 4

// WorkerPool is a fixed-size pool draining a task queue.
//
// With capacity > 0 the queue is bounded and Submit blocks while it is full;
// this throttles the submitter instead of dropping work. With capacity <= 0
// the queue grows as needed.
type WorkerPool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	tasks    *queue.Queue
	capacity int
	closed   bool

	workers int
	running atomic.Int64 // tasks currently executing
	wg      sync.WaitGroup
	logger  api.Logger
}

// NewWorkerPool starts numWorkers goroutines. logger receives recovered
// task panics and may be nil.
func NewWorkerPool(numWorkers, capacity int, logger api.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	p := &WorkerPool{
		tasks:    queue.New(),
		capacity: capacity,
		workers:  numWorkers,
		logger:   logger,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	return p
}

// Submit enqueues a task and returns. Returns ErrPoolClosed after Close.
func (p *WorkerPool) Submit(task api.Task) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	p.mu.Lock()
	for !p.closed && p.capacity > 0 && p.tasks.Length() >= p.capacity {
		p.notFull.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.tasks.Add(task)
	p.mu.Unlock()
	p.notEmpty.Signal()
	return nil
}

// NumWorkers returns the pool size.
func (p *WorkerPool) NumWorkers() int {
	return p.workers
}

// Pending returns the number of queued tasks not yet picked up.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Running returns the number of tasks being executed right now.
func (p *WorkerPool) Running() int {
	return int(p.running.Load())
}

// Close stops intake and waits until every queued task has run and every
// worker has exited. Safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	p.wg.Wait()
}

// run is the worker loop; it exits once the pool is closed and drained.
func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.closed {
			p.notEmpty.Wait()
		}
		if p.tasks.Length() == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(api.Task)
		p.mu.Unlock()
		p.notFull.Signal()

		p.running.Add(1)
		p.safeExecute(id, task)
		p.running.Add(-1)
	}
}

func (p *WorkerPool) safeExecute(id int, task api.Task) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Printf("[pool] worker %d: task panic: %v\n%s", id, r, debug.Stack())
		}
	}()
	task.Run()
}

// String implements fmt.Stringer for debug probes.
func (p *WorkerPool) String() string {
	return fmt.Sprintf("workers=%d pending=%d running=%d", p.workers, p.Pending(), p.Running())
}

var _ api.Executor = (*WorkerPool)(nil)
