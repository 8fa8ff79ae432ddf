// Package worker runs post-commit side effects (notices, refunds) on a
// bounded pool of goroutines so request handlers never wait on them.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool is a fixed-size worker pool fed by a bounded queue.
type Pool struct {
	jobs    chan Job
	logger  *slog.Logger
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines draining a queue of size queue.
// Each job gets its own context bounded by timeout.
func NewPool(workers, queue int, timeout time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		jobs:    make(chan Job, queue),
		logger:  logger.With("component", "worker"),
		timeout: timeout,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

// Submit enqueues job without blocking. It returns false when the queue is
// full or the pool is closed; the job is dropped and logged.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("job dropped, pool closed", "job", job.Name)
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warn("job dropped, queue full", "job", job.Name)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "job", job.Name, "panic", r)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		p.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	p.logger.Debug("job done", "job", job.Name, "duration", time.Since(start))
}
