package workflow

import (
	"context"
	"sync"

	xerrors "RewardPilot/internal/errors"
)

// MemoryQueue is an in-process channel queue. With a single worker, indices
// are handled in publish order.
type MemoryQueue struct {
	ch     chan int
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue returns a queue buffering up to size indices.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan int, size)}
}

// MemoryQueueFactory creates a fresh queue per run.
func MemoryQueueFactory(size int) QueueFactory {
	return func(context.Context, string) (Queue, error) {
		return NewMemoryQueue(size), nil
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, index int) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return xerrors.New(xerrors.CodeQueueFailure, "queue closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- index:
		return nil
	}
}

// Consume runs workerCount handlers until ctx is done.
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case index, ok := <-q.ch:
					if !ok {
						return
					}
					handler(ctx, index)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}
