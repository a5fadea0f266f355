// Package queue provides an unbounded, goroutine-safe FIFO with blocking reads.
package queue

import (
	"sync"
	"time"

	"github.com/edwingeng/deque"
)

// Queue is an unbounded FIFO. Put never blocks; Get blocks until an item is available.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	deque deque.Deque
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{deque: deque.NewDeque()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue[T]) Put(elem T) {
	q.mu.Lock()
	q.deque.PushBack(elem)
	q.mu.Unlock()
	q.cond.Signal()
}

// Get blocks until an item is available and removes it.
func (q *Queue[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.deque.Empty() {
		q.cond.Wait()
	}
	return q.deque.PopFront().(T)
}

// TryGet removes and returns the front item if there is one.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deque.Empty() {
		var noVal T
		return noVal, false
	}
	return q.deque.PopFront().(T), true
}

// GetTimeout waits up to timeout for an item, polling so the wait stays bounded.
func (q *Queue[T]) GetTimeout(timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if v, ok := q.TryGet(); ok {
			return v, true
		}
		if !time.Now().Before(deadline) {
			var noVal T
			return noVal, false
		}
		time.Sleep(pollStep(deadline))
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deque.Len()
}

func pollStep(deadline time.Time) time.Duration {
	const step = 5 * time.Millisecond
	if rem := time.Until(deadline); rem < step {
		if rem <= 0 {
			return 0
		}
		return rem
	}
	return step
}
