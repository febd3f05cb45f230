// Package lifo holds the last-in first-out list used for free buffers.
package lifo

// Stack is a growable LIFO. It is not safe for concurrent use.
type Stack[T any] struct{ underlying []T }

func New[T any](cap uint) *Stack[T] {
	return &Stack[T]{underlying: make([]T, 0, cap)}
}

func (s *Stack[T]) Len() uint {
	return uint(len(s.underlying))
}

func (s *Stack[T]) Push(data T) {
	s.underlying = append(s.underlying, data)
}

// Pop removes the most recently pushed element. It reports false when the
// stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	n := len(s.underlying)
	if n == 0 {
		return zero, false
	}

	data := s.underlying[n-1]
	s.underlying[n-1] = zero
	s.underlying = s.underlying[:n-1]

	return data, true
}
