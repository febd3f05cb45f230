package mem

import (
	"sync"

	"csp-stack/lib/ds/lifo"
	"csp-stack/stack"
)

// pool is a fixed set of equally sized buffers, like csp_buffer.
type pool struct {
	mu   sync.Mutex
	bufs []*stack.Packet
	free *lifo.Stack[*stack.Packet]
	size int
}

func newPool(count, size int) *pool {
	p := &pool{
		bufs: make([]*stack.Packet, count),
		free: lifo.New[*stack.Packet](uint(count)),
		size: size,
	}
	for i := range p.bufs {
		b := &stack.Packet{Data: make([]byte, size), Pooled: true, Index: i}
		p.bufs[i] = b
		p.free.Push(b)
	}
	return p
}

// get never blocks. It returns nil when size exceeds the buffer size or no
// buffer is left.
func (p *pool) get(size int) *stack.Packet {
	if size < 0 || size > p.size {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.free.Pop()
	if !ok {
		return nil
	}

	b.Pooled = false
	b.Length = 0
	b.ID = stack.ID{}
	return b
}

// put returns false for foreign buffers and double frees.
func (p *pool) put(b *stack.Packet) bool {
	if b == nil || b.Index < 0 || b.Index >= len(p.bufs) || p.bufs[b.Index] != b {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if b.Pooled {
		return false
	}
	b.Pooled = true
	p.free.Push(b)
	return true
}

func (p *pool) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.free.Len())
}

// bufferPool is the view of the pool handed to interface drivers.
type bufferPool struct{ s *Stack }

var _ stack.Pool = bufferPool{}

func (b bufferPool) Get(size int) *stack.Packet { return b.s.BufferGet(size) }
func (b bufferPool) Free(p *stack.Packet)       { b.s.BufferFree(p) }
