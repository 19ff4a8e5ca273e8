// Package worker runs the bounded pool that walks leaderboard players.
package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/okian/harvest/internal/adapters/mq/queue"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

const defaultWorkerCount = 4

// Processor handles one job. A returned error is logged and the worker moves
// on, unless the run context is done.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job queue.Job) error

func (f ProcessorFunc) Process(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker drains jobs from a Queue one at a time.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	pause     time.Duration
	clock     quartz.Clock
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		clock:     quartz.NewReal(),
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes jobs until the queue is drained (nil) or ctx is done
// (ctx.Err()).
func (w *InMemoryWorker) Run(ctx context.Context) error {
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	jobs := w.queue.Dequeue(ctx)
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			job queue.Job
			ok  bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok = <-jobs:
		}
		if !ok {
			return ctx.Err()
		}

		if !first {
			if err := w.sleep(ctx); err != nil {
				return err
			}
		}
		first = false

		if err := w.process(ctx, job); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			w.logger.Warn(ctx, "job failed",
				logger.String("puuid", job.PUUID),
				logger.Int("rank", job.Rank),
				logger.Error(err))
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	err := w.processor.Process(ctx, job)
	metrics.RecordWorkerProcessingLatency(time.Since(start))
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
	}
	return err
}

func (w *InMemoryWorker) sleep(ctx context.Context) error {
	if w.pause <= 0 {
		return nil
	}
	t := w.clock.NewTimer(w.pause, "worker", "pause")
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pool manages a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
}

// NewPool creates a pool of size workers. Options apply to every worker;
// names are assigned per index.
func NewPool(size int, q Queue, p Processor, opts ...Option) *Pool {
	if size < 1 {
		size = defaultWorkerCount
	}
	pool := &Pool{workers: make([]*InMemoryWorker, size)}
	for i := range pool.workers {
		wopts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, p, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run starts every worker and blocks until all of them return. It returns
// the first non-nil worker error, which is a context error on cancellation.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
