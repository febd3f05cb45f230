package csp

import (
	"io"

	"csp-stack/stack"
)

// PacketWriter cuts a byte stream into packets. A packet is sent as soon as
// it is full; Flush sends a partial one.
type PacketWriter struct {
	c    *Conn
	size int

	buf    *stack.Packet // nil until the first write after a send.
	closed bool
}

var _ io.WriteCloser = (*PacketWriter)(nil)

func (w *PacketWriter) Write(b []byte) (int, error) {
	if w.closed {
		return 0, newError(KindReset, "writer closed")
	}

	written := 0
	for len(b) > 0 {
		if w.buf == nil {
			w.buf = w.c.s.BufferGet(w.size)
			if w.buf == nil {
				return written, newError(KindNoBuffersAvailable, "getting buffer")
			}
		}

		m := copy(w.buf.Data[w.buf.Length:w.size], b)
		w.buf.Length += uint16(m)
		b = b[m:]
		written += m

		if int(w.buf.Length) == w.size {
			if err := w.sendBuf(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush sends buffered bytes, if any.
func (w *PacketWriter) Flush() error {
	if w.closed {
		return newError(KindReset, "writer closed")
	}
	if w.buf == nil || w.buf.Length == 0 {
		return nil
	}
	return w.sendBuf()
}

func (w *PacketWriter) sendBuf() error {
	p := w.buf
	w.buf = nil
	return w.c.send(p)
}

// Close flushes and closes the connection. A failed flush is logged and
// otherwise ignored.
func (w *PacketWriter) Close() error {
	if w.closed {
		return nil
	}

	if err := w.Flush(); err != nil {
		w.c.logger.Warn("discarding unsent data on close", "error", err)
	}
	if w.buf != nil {
		w.c.s.BufferFree(w.buf)
		w.buf = nil
	}
	w.closed = true
	return w.c.Close()
}

func (w *PacketWriter) Src() ConnAddress { return w.c.Src() }
func (w *PacketWriter) Dst() ConnAddress { return w.c.Dst() }
