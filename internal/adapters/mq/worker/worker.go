// Package worker defines workers that drain the vote queue and apply
// updates to the rating store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/patinalabs/patina/internal/adapters/repository"
	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/pkg/logger"
	"github.com/patinalabs/patina/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second

	// Transient store failures are retried in the worker before the event
	// is given up on; the backoff doubles per attempt.
	applyMaxAttempts = 3
	applyRetryBase   = 25 * time.Millisecond
)

// Event abstracts what workers read off the queue.
type Event = model.VoteEvent

// VoteApplier applies a single vote event to the rating store.
type VoteApplier interface {
	Apply(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes vote events from the queue.
type Worker struct {
	queue   Queue
	applier VoteApplier
	name    string

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
			w.logger = logger.Get().Named(name)
		}
	}
}

// NewWorker creates a new vote worker with configuration options.
func NewWorker(queue Queue, applier VoteApplier, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop until ctx is canceled, the queue closes, or
// Shutdown is called.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing vote", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent applies a single vote event, retrying transient store
// failures with backoff before giving up on the event.
func (w *Worker) processEvent(ctx context.Context, event Event) error {
	var err error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err = w.applier.Apply(ctx, event)
		metrics.RecordVoteApplyLatency(float64(time.Since(start).Milliseconds()))
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrValidation) {
			// Malformed events are dropped; nothing to retry.
			metrics.RecordVoteApplyError()
			w.logger.Warn(ctx, "invalid vote dropped",
				logger.String("eventID", event.EventID),
				logger.Error(err),
			)
			return nil
		}
		if !retryable(err) || attempt >= applyMaxAttempts {
			break
		}
		w.logger.Warn(ctx, "transient apply failure, retrying",
			logger.String("eventID", event.EventID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			metrics.RecordVoteApplyError()
			return fmt.Errorf("vote %s: %w", event.EventID, ctx.Err())
		case <-time.After(applyRetryBase << (attempt - 1)):
		}
	}
	metrics.RecordVoteApplyError()
	return fmt.Errorf("vote %s: %w", event.EventID, err)
}

// retryable reports whether the apply error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, repository.ErrTransient) || errors.Is(err, repository.ErrConflict)
}

// Pool manages multiple workers draining the same queue.
type Pool struct {
	workers []*Worker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a worker pool of workerCount workers.
func NewPool(workerCount int, queue Queue, applier VoteApplier) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewWorker(queue, applier, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown drains and stops the pool, closing the queue first so no new
// events arrive.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
