package lifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStackNew(t *testing.T) {
	capacity := uint(10)

	stack := New[int](capacity)

	assert.Equal(t, capacity, uint(cap(stack.underlying)))
	assert.Zero(t, stack.Len())
}

func TestStackPush(t *testing.T) {
	stack := New[int](0)

	stack.Push(1)
	stack.Push(2)

	assert.Equal(t, []int{1, 2}, stack.underlying)
	assert.Equal(t, uint(2), stack.Len())
}

func TestStackPop(t *testing.T) {
	stack := New[*int](2)
	a, b := new(int), new(int)
	stack.Push(a)
	stack.Push(b)

	got, ok := stack.Pop()
	assert.True(t, ok)
	assert.Same(t, b, got)
	assert.Nil(t, stack.underlying[:2][1], "popped slot is cleared")

	got, ok = stack.Pop()
	assert.True(t, ok)
	assert.Same(t, a, got)
}

func TestStackPopEmpty(t *testing.T) {
	stack := New[int](0)

	got, ok := stack.Pop()
	assert.False(t, ok)
	assert.Zero(t, got)
}
