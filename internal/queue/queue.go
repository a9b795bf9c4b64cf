// Package queue provides a bounded-concurrency job runner.
//
// Enqueue never blocks: up to N jobs run at once and the rest wait in an
// unbounded FIFO. There is no priority, no cancellation, and no result
// propagation; a job's failures are its own responsibility to catch and
// log. Waiters carry no backpressure signal to the caller, a known
// limitation carried over deliberately rather than silently bounding the
// queue (bounding would turn queued triggers into rejected ones).
package queue

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Job is an opaque unit of asynchronous work closed over already-resolved
// identifiers and credentials.
type Job func()

// Pool runs jobs with a fixed concurrency limit.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Job
	closed  bool
	running int
	wg      sync.WaitGroup
}

// NewPool starts a pool with n workers. The limit is fixed for the
// lifetime of the pool.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Enqueue accepts a job and returns immediately. The job starts as soon as
// a worker is free; jobs accepted while all workers are busy wait in FIFO
// order.
func (p *Pool) Enqueue(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Printf("⚠️  queue: enqueue after stop, dropping job")
		return
	}
	p.pending = append(p.pending, job)
	p.cond.Signal()
}

// Depth returns the number of jobs waiting for a worker.
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop prevents further enqueues and waits for workers to finish their
// current jobs, or until the context expires. Pending jobs that never
// started are discarded.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.pending = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		job := p.pending[0]
		p.pending = p.pending[1:]
		p.running++
		p.mu.Unlock()

		p.run(id, job)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

// run executes one job. A panicking job must not take down the worker or
// block jobs queued behind it.
func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  queue: worker %d recovered from panic: %v\n%s", id, r, debug.Stack())
		}
	}()
	job()
}
