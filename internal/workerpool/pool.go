package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Submit after Stop has been called.
var ErrPoolStopped = errors.New("worker pool is stopped")

// Task produces the extracted text for one document. It runs on a pool
// worker, not on the submitting goroutine.
type Task func(ctx context.Context) (string, error)

// Outcome is the terminal result of one task: extracted text or the error
// that ended it. Exactly one of the two is set.
type Outcome struct {
	Text string
	Err  error
}

// Config holds pool configuration
type Config struct {
	Logger *slog.Logger
	// Capacity is the number of concurrently-executing analysis tasks,
	// sized to available CPU/GPU parallelism.
	Capacity int
	// QueueSize bounds how many dispatched tasks may wait for a free slot.
	QueueSize int
}

type taskEnvelope struct {
	task   Task
	result chan Outcome
}

// Pool executes CPU-bound analysis tasks with bounded concurrency. A failure
// or panic inside one task never affects sibling tasks or the pool itself.
type Pool struct {
	logger   *slog.Logger
	capacity int
	tasks    chan taskEnvelope
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new pool. Start must be called before Submit.
func New(cfg *Config) *Pool {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = capacity
	}

	return &Pool{
		logger:   cfg.Logger,
		capacity: capacity,
		tasks:    make(chan taskEnvelope, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start spawns the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Spawning worker pool",
		slog.Int("capacity", p.capacity),
		slog.Int("queue_size", cap(p.tasks)),
	)

	for i := 0; i < p.capacity; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// Submit enqueues a task and returns the channel its Outcome will be
// delivered on. The call blocks only while the queue is full, never for the
// task's execution.
func (p *Pool) Submit(ctx context.Context, task Task) (<-chan Outcome, error) {
	result := make(chan Outcome, 1)

	select {
	case p.tasks <- taskEnvelope{task: task, result: result}:
		return result, nil
	case <-p.stopChan:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop prevents further submissions and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	p.logger.Debug("Pool worker started", slog.Int("worker_num", workerNum))

	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("Pool worker stopping", slog.Int("worker_num", workerNum))
			return

		case <-ctx.Done():
			p.logger.Debug("Pool worker stopping - context canceled",
				slog.Int("worker_num", workerNum),
			)
			return

		case env := <-p.tasks:
			env.result <- p.execute(ctx, env.task)
		}
	}
}

// execute runs one task, converting errors and panics into a Failed outcome.
func (p *Pool) execute(ctx context.Context, task Task) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Analysis task panicked", slog.Any("panic", r))
			out = Outcome{Err: fmt.Errorf("analysis task panicked: %v", r)}
		}
	}()

	text, err := task(ctx)
	if err != nil {
		return Outcome{Err: err}
	}

	return Outcome{Text: text}
}
