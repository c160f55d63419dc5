package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/shared"
)

// Job is a unit of background work. The context is owned by the dispatcher, not the submitter.
type Job func(ctx context.Context)

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
type Dispatcher struct {
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize jobs.
func NewDispatcher(workers, queueSize int, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	for i := range workers {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(id, job)
	}
}

func (d *Dispatcher) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", "worker", id, "panic", r)
		}
	}()
	job(d.ctx)
}

// Submit queues job without blocking. A full queue returns [shared.ErrQueueFull].
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return fmt.Errorf("%w: dispatcher stopped", shared.ErrServiceUnavailable)
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: %d jobs waiting", shared.ErrQueueFull, cap(d.jobs))
	}
}

// Stop refuses new jobs and waits for queued and running jobs to finish.
// When ctx ends first, running jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
