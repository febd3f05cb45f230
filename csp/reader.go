package csp

import (
	"io"
	"time"
)

// PacketReader reads the payloads of a connection's packets as one stream.
// The stream ends at the first read that yields no packet.
type PacketReader struct {
	c       *Conn
	timeout time.Duration

	pkt      *Packet // nil when no packet is held.
	off      int
	finished bool
}

var _ io.ReadCloser = (*PacketReader)(nil)

// Read copies from the held packet, then from the next ones. It only waits
// for a packet while nothing has been copied yet.
func (r *PacketReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	n := 0
	for n < len(b) {
		if r.pkt == nil {
			if r.finished || n > 0 {
				break
			}
			p, ok := r.c.ReadPacket(r.timeout)
			if !ok {
				r.finished = true
				break
			}
			r.pkt, r.off = p, 0
		}

		data := r.pkt.Bytes()
		m := copy(b[n:], data[r.off:])
		n += m
		r.off += m

		if r.off >= len(data) {
			r.pkt.Release()
			r.pkt, r.off = nil, 0
		}
	}

	if n == 0 && r.finished {
		return 0, io.EOF
	}
	return n, nil
}

// Close releases a partly read packet and closes the connection.
func (r *PacketReader) Close() error {
	if r.pkt != nil {
		r.pkt.Release()
		r.pkt = nil
	}
	r.finished = true
	return r.c.Close()
}

func (r *PacketReader) Src() ConnAddress { return r.c.Src() }
func (r *PacketReader) Dst() ConnAddress { return r.c.Dst() }
