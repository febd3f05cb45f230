// Package queue holds the fixed-size FIFO used for per-connection receive queues.
package queue

import "errors"

var ErrQueueEmpty = errors.New("queue is empty")

// Circular is a bounded FIFO backed by a ring buffer. It is not safe for
// concurrent use; callers hold their own lock.
type Circular[T any] struct {
	queue      []T
	head, tail uint

	count uint
}

func NewCircular[T any](size uint) *Circular[T] {
	return &Circular[T]{queue: make([]T, size)}
}

// Enqueue adds an element to the queue. Returns false if the queue is full.
func (q *Circular[T]) Enqueue(data T) (success bool) {
	if q.Len() == q.Size() {
		return false
	}

	q.queue[q.tail] = data
	q.tail = q.advance(q.tail)
	q.count++

	return true
}

// Dequeue removes and returns the front element of the queue.
// If the queue is empty. It will return [ErrQueueEmpty].
func (q *Circular[T]) Dequeue() (T, error) {
	var zero T
	if q.Len() == 0 {
		return zero, ErrQueueEmpty
	}

	data := q.queue[q.head]
	q.queue[q.head] = zero // don't pin dequeued values.

	q.head = q.advance(q.head)
	q.count--

	return data, nil
}

// Peek returns the head element without removing it.
func (q *Circular[T]) Peek() (T, error) {
	if q.Len() == 0 {
		var zero T
		return zero, ErrQueueEmpty
	}

	return q.queue[q.head], nil
}

// Drain dequeues every element, oldest first, handing each to fn.
func (q *Circular[T]) Drain(fn func(T)) {
	for q.Len() > 0 {
		v, _ := q.Dequeue()
		fn(v)
	}
}

// Len returns the number of elements in the queue.
func (q *Circular[T]) Len() uint { return q.count }

// Size returns the capacity of the queue.
func (q *Circular[T]) Size() uint { return uint(len(q.queue)) }

// Full reports whether Enqueue would fail.
func (q *Circular[T]) Full() bool { return q.count == q.Size() }

func (q *Circular[T]) advance(n uint) uint {
	return (n + 1) % uint(len(q.queue))
}
