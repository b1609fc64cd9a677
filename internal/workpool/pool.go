// Package workpool runs submitted tasks on a fixed number of goroutines fed
// by a bounded queue. Submit never blocks: when the queue is full the oldest
// queued task is dropped to make room, so a producer running on a fixed
// schedule is never stalled by slow consumers.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("pool is shut down")

// Task is a unit of work. The context is canceled only when a graceful
// shutdown runs out of time.
type Task func(ctx context.Context)

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Completed int64 `json:"completed"`
	Abandoned int64 `json:"abandoned"`
}

// Pool is a bounded worker pool.
type Pool struct {
	name    string
	workers int
	queue   chan Task

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	discard atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64
}

// New starts a pool with the given number of workers and queue capacity.
// Both are clamped to at least 1.
func New(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.queue {
		if p.discard.Load() {
			p.abandoned.Add(1)
			continue
		}
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("%s pool: task panicked: %v", p.name, r)
		}
		p.completed.Add(1)
	}()
	task(p.ctx)
}

// Submit queues task without blocking. If the queue is full the oldest queued
// task is discarded.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("%s pool: nil task", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	for {
		select {
		case p.queue <- task:
			p.submitted.Add(1)
			return nil
		default:
		}
		select {
		case <-p.queue:
			p.dropped.Add(1)
			monitoring.Debugf("%s pool: queue full, dropped oldest task", p.name)
		default:
		}
	}
}

// Shutdown stops accepting tasks. With a zero grace period it returns at once:
// queued tasks are abandoned and running tasks finish on their own. With a
// positive grace period it waits for queued and running tasks, canceling
// their context if the period expires. It reports whether all work finished.
func (p *Pool) Shutdown(grace time.Duration) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	if grace <= 0 {
		p.discard.Store(true)
	}
	close(p.queue)
	p.mu.Unlock()

	if grace <= 0 {
		for range p.queue {
			p.abandoned.Add(1)
		}
		return false
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		return true
	case <-timer.C:
		monitoring.Logf("%s pool: shutdown grace %s expired with work in flight", p.name, grace)
		p.cancel()
		return false
	}
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Abandoned: p.abandoned.Load(),
	}
}

// Name returns the pool's name as used in log lines.
func (p *Pool) Name() string { return p.name }
