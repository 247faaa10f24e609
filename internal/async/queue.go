package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Acquire after Close.
var ErrQueueClosed = errors.New("work queue is shut down")

// WorkItem is one uploaded image waiting for a worker.
type WorkItem struct {
	JobID       string
	ItemID      int
	ClientIndex int
	Filename    string
	Path        string
	SubmittedAt time.Time
}

// Queue is the single bounded FIFO shared by every job. Capacity is handed out
// as slots: Acquire blocks while the queue is full, and Push into an acquired
// slot never blocks, so callers can publish an item and update their own
// bookkeeping in one critical section.
type Queue struct {
	ch     chan WorkItem
	slots  chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ch:     make(chan WorkItem, size),
		slots:  make(chan struct{}, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Acquire reserves one slot, blocking while the queue is full until space
// frees, ctx is done, or the queue is closed.
func (q *Queue) Acquire(ctx context.Context) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.slots <- struct{}{}:
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "depth", len(q.ch), "capacity", cap(q.ch))
	select {
	case q.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Release gives back a slot that was acquired but not pushed.
func (q *Queue) Release() {
	<-q.slots
}

// Push appends item into a previously acquired slot.
func (q *Queue) Push(item WorkItem) {
	q.ch <- item
	q.logger.Debug("queued item for processing", "job_id", item.JobID, "item_id", item.ItemID)
}

// items is read by workers; each received item must be followed by freeSlot.
func (q *Queue) items() <-chan WorkItem {
	return q.ch
}

func (q *Queue) freeSlot() {
	<-q.slots
}

// Len is the number of items waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap is the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close rejects further Acquire calls. Items already queued stay readable.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
