package csp

import "csp-stack/stack"

// Packet owns one pool buffer received on a connection. Release gives the
// buffer back; it must be called exactly once, usually with defer.
type Packet struct {
	s stack.Stack
	p *stack.Packet
}

// newPacket wraps a buffer returned by a stack read. A nil buffer is no
// packet at all.
func newPacket(s stack.Stack, p *stack.Packet) (*Packet, bool) {
	if p == nil {
		return nil, false
	}
	return &Packet{s: s, p: p}, true
}

// Bytes is the payload. The slice is only valid until Release.
func (p *Packet) Bytes() []byte {
	if p == nil || p.p == nil {
		return nil
	}
	return p.p.Payload()
}

func (p *Packet) Len() int { return len(p.Bytes()) }

func (p *Packet) ID() ID {
	if p == nil || p.p == nil {
		return ID{}
	}
	return p.p.ID
}

// Release returns the buffer to the pool. Later calls do nothing.
func (p *Packet) Release() {
	if buf := p.take(); buf != nil {
		p.s.BufferFree(buf)
	}
}

// take hands the buffer over to the caller, leaving p empty.
func (p *Packet) take() *stack.Packet {
	if p == nil {
		return nil
	}
	buf := p.p
	p.p = nil
	return buf
}
