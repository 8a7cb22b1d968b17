package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
)

// Policy selects what Push does when the queue is full.
type Policy string

const (
	// Block makes Push wait until the consumer frees a slot.
	Block Policy = "block"
	// DropOldest evicts the oldest buffered item to admit the new one.
	DropOldest Policy = "drop_oldest"
)

// Queue is a bounded FIFO connecting one producer side to one consumer
// loop. Capacity is fixed at construction; overflow behavior is explicit
// via the policy. After Close, Pop drains the remaining items and then
// reports domain.ErrQueueClosed.
//
// Close is meant for shutdown: items pushed concurrently with Close may be
// lost, so producers should be stopped first.
type Queue[T any] struct {
	ch      chan T
	done    chan struct{}
	policy  Policy
	once    sync.Once
	dropped atomic.Uint64
}

func New[T any](capacity int, policy Policy) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		ch:     make(chan T, capacity),
		done:   make(chan struct{}),
		policy: policy,
	}
}

// Push enqueues one item according to the overflow policy.
func (q *Queue[T]) Push(item T) error {
	select {
	case <-q.done:
		return domain.ErrQueueClosed
	default:
	}

	if q.policy == DropOldest {
		for {
			select {
			case <-q.done:
				return domain.ErrQueueClosed
			case q.ch <- item:
				return nil
			default:
			}
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}

	select {
	case q.ch <- item:
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	}
}

// Pop blocks until an item is available, the queue is closed and drained,
// or the context is canceled.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	select {
	case item := <-q.ch:
		return item, nil
	default:
	}

	select {
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return zero, domain.ErrQueueClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops the queue. Idempotent.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Dropped reports how many items the DropOldest policy has evicted.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
