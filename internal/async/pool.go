// Package async holds the shared work queue and the worker pool draining it.
package async

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Handler processes one work item. It owns all item-level error handling.
type Handler interface {
	Handle(ctx context.Context, item WorkItem)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, item WorkItem)

func (f HandlerFunc) Handle(ctx context.Context, item WorkItem) { f(ctx, item) }

// Pool is a fixed set of workers draining a Queue until Shutdown.
type Pool struct {
	queue   *Queue
	handler Handler
	logger  *slog.Logger
	workers int

	wg     sync.WaitGroup
	start  sync.Once
	stop   sync.Once
	cancel context.CancelFunc
	quit   chan struct{}
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func NewPool(queue *Queue, handler Handler, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		queue:   queue,
		handler: handler,
		logger:  logger,
		workers: 4,
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers once. ctx is the parent of every handler call.
func (p *Pool) Start(ctx context.Context) {
	p.start.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run(ctx, i+1)
		}
	})
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	p.logger.Info("worker started", "worker_id", workerID)
	for {
		select {
		case <-p.quit:
			p.logger.Info("worker stopped", "worker_id", workerID)
			return
		case item := <-p.queue.items():
			p.queue.freeSlot()
			p.handle(ctx, workerID, item)
		}
	}
}

// handle keeps the worker alive if the handler panics.
func (p *Pool) handle(ctx context.Context, workerID int, item WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				"worker_id", workerID, "job_id", item.JobID, "item_id", item.ItemID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.handler.Handle(ctx, item)
}

// Shutdown closes the queue, cancels in-flight handlers and waits for the
// workers or for ctx. Items still queued are abandoned.
func (p *Pool) Shutdown(ctx context.Context) {
	p.queue.Close()
	p.stop.Do(func() {
		close(p.quit)
		if p.cancel != nil {
			p.cancel()
		}
	})

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("workers stopped, shutdown complete", "abandoned", p.queue.Len())
	}
}
