// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

// Package dispatch provides the execution surfaces the auth engine runs
// on: a serialized primary loop for state mutation and a fixed worker
// pool for blocking work such as password hashing and database calls.
package dispatch

import (
	"log/slog"
	"sync"
)

// Executor schedules a function for execution. Implementations decide
// where and with what concurrency the function runs.
type Executor interface {
	Dispatch(fn func())
}

// Direct runs dispatched functions inline on the caller's goroutine.
// It exists for tests and for callers that already own the loop.
type Direct struct{}

func (Direct) Dispatch(fn func()) { fn() }

// Loop is a single-goroutine serialized executor. All functions
// dispatched to it run one at a time in submission order, so state
// owned by the loop needs no locking.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLoop starts the loop goroutine with the given task buffer.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			// Drain what was already queued before shutdown.
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Dispatch queues fn on the loop. Functions dispatched after Close are
// dropped.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		slog.Debug("task dropped, loop closed")
		return
	}
	l.mu.Unlock()

	select {
	case l.tasks <- fn:
	case <-l.quit:
		slog.Debug("task dropped, loop closed")
	}
}

// Close stops the loop after draining queued tasks and waits for the
// loop goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.quit)
	l.wg.Wait()
}

// Pool runs dispatched functions on a fixed set of worker goroutines.
type Pool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines consuming from a shared queue.
func NewPool(workers, buffer int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 256
	}
	p := &Pool{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.quit:
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Dispatch queues fn for an idle worker. Functions dispatched after
// Close are dropped.
func (p *Pool) Dispatch(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Debug("task dropped, pool closed")
		return
	}
	p.mu.Unlock()

	select {
	case p.tasks <- fn:
	case <-p.quit:
		slog.Debug("task dropped, pool closed")
	}
}

// Close stops the workers after draining queued tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()
}
