// Package queue is the FIFO hand-off between the recorder and the consumer.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Put after Close, and by Get once a closed
	// queue has been emptied.
	ErrClosed = errors.New("queue closed")
	// ErrTimeout is returned by Get when no item arrived within the wait.
	ErrTimeout = errors.New("queue wait timed out")
)

// Item references one flushed segment. The queue never owns audio.
type Item struct {
	SegmentID int64
	Path      string
}

// Queue is an unbounded FIFO safe for concurrent producers and consumers.
// Each item is delivered to exactly one Get.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Put appends an item. It never blocks.
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Get removes and returns the oldest item, waiting at most wait for one to
// arrive. A non-positive wait polls once.
func (q *Queue[T]) Get(ctx context.Context, wait time.Duration) (T, error) {
	var zero T
	var timer *time.Timer
	if wait > 0 {
		timer = time.NewTimer(wait)
		defer timer.Stop()
	}
	for {
		if item, ok, closed := q.pop(); ok {
			return item, nil
		} else if closed {
			return zero, ErrClosed
		}
		if timer == nil {
			return zero, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			if item, ok, _ := q.pop(); ok {
				return item, nil
			}
			return zero, ErrTimeout
		case <-q.notify:
		}
	}
}

// Drain removes and returns every pending item in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Puts. Pending items can still be taken.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) pop() (item T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false, q.closed
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Keep a waiting consumer awake for the remaining items.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return item, true, q.closed
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
