package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enqueue acquires a slot and pushes item, the way the job manager does.
func (q *Queue) enqueue(ctx context.Context, item WorkItem) error {
	if err := q.Acquire(ctx); err != nil {
		return err
	}
	q.Push(item)
	return nil
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := NewQueue(1, nil)
	assert.Equal(t, 1, q.Cap())
	require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.enqueue(ctx, WorkItem{ItemID: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueUnblocksWhenSpaceFrees(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: 1}))

	done := make(chan error, 1)
	go func() { done <- q.enqueue(context.Background(), WorkItem{ItemID: 2}) }()

	first := <-q.items()
	q.freeSlot()
	assert.Equal(t, 1, first.ItemID)
	require.NoError(t, <-done)
	second := <-q.items()
	q.freeSlot()
	assert.Equal(t, 2, second.ItemID)
}

func TestAcquireThenPush(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Acquire(ctx), context.DeadlineExceeded, "the only slot is reserved")

	q.Push(WorkItem{ItemID: 9})
	assert.Equal(t, 1, q.Len())

	item := <-q.items()
	q.freeSlot()
	assert.Equal(t, 9, item.ItemID)
	require.NoError(t, q.Acquire(context.Background()))
	q.Release()
}

func TestEnqueueAfterClose(t *testing.T) {
	q := NewQueue(4, nil)
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.enqueue(context.Background(), WorkItem{}), ErrQueueClosed)
}

func TestPoolDrainsInFIFOOrderWithOneWorker(t *testing.T) {
	q := NewQueue(10, nil)
	var mu sync.Mutex
	var seen []int
	var wg sync.WaitGroup
	wg.Add(5)
	p := NewPool(q, HandlerFunc(func(_ context.Context, item WorkItem) {
		mu.Lock()
		seen = append(seen, item.ItemID)
		mu.Unlock()
		wg.Done()
	}), nil, WithWorkers(1))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: i}))
	}
	p.Start(context.Background())
	wg.Wait()
	p.Shutdown(context.Background())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestPoolSurvivesPanickingHandler(t *testing.T) {
	q := NewQueue(10, nil)
	var handled atomic.Int32
	done := make(chan struct{})
	p := NewPool(q, HandlerFunc(func(_ context.Context, item WorkItem) {
		if item.ItemID == 0 {
			panic("boom")
		}
		handled.Add(1)
		close(done)
	}), nil, WithWorkers(1))
	p.Start(context.Background())

	require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: 0}))
	require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: 1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not continue after panic")
	}
	p.Shutdown(context.Background())
	assert.Equal(t, int32(1), handled.Load())
}

func TestPoolRunsWorkersConcurrently(t *testing.T) {
	q := NewQueue(10, nil)
	release := make(chan struct{})
	var running atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	p := NewPool(q, HandlerFunc(func(context.Context, WorkItem) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		wg.Done()
		<-release
		running.Add(-1)
	}), nil, WithWorkers(3))
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, q.enqueue(context.Background(), WorkItem{ItemID: i}))
	}
	wg.Wait()
	close(release)
	p.Shutdown(context.Background())
	assert.Equal(t, int32(3), peak.Load())
}
