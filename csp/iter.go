package csp

import (
	"iter"
	"time"
)

// PacketIter yields received packets until the first read that times out or
// finds the connection closed. It cannot be restarted.
type PacketIter struct {
	c       *Conn
	timeout time.Duration
	done    bool
}

// Next waits for the next packet. The caller owns and releases it.
func (it *PacketIter) Next() (*Packet, bool) {
	if it.done {
		return nil, false
	}
	p, ok := it.c.ReadPacket(it.timeout)
	if !ok {
		it.done = true
	}
	return p, ok
}

// All ranges over the remaining packets. Packets are owned by the loop body.
func (it *PacketIter) All() iter.Seq[*Packet] {
	return func(yield func(*Packet) bool) {
		for {
			p, ok := it.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Close ends the iteration and closes the connection.
func (it *PacketIter) Close() error {
	it.done = true
	return it.c.Close()
}

func (it *PacketIter) Src() ConnAddress { return it.c.Src() }
func (it *PacketIter) Dst() ConnAddress { return it.c.Dst() }
