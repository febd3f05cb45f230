package link

import (
	"bytes"
	"io"
	"sync"
)

// bufferedPipe is one end of an in-memory duplex byte stream.
//
// See:
// - https://github.com/golang/go/issues/24205
// - https://github.com/golang/go/issues/34502
type bufferedPipe struct {
	buf *bytes.Buffer // protected by in.

	in, out  sync.Cond
	serialMu sync.Mutex // For serialized write operations.

	_closed  bool
	closedMu sync.Mutex

	// the opposite pipe.
	counterpart *bufferedPipe
}

var _ io.ReadWriteCloser = (*bufferedPipe)(nil)

// Pipe creates a pair of connected, buffered streams. Unlike net.Pipe,
// writes complete as soon as the peer's buffer has room, so two links can
// transmit at each other without deadlocking. bufSize MUST be more than 0.
func Pipe(bufSize uint) (c1, c2 io.ReadWriteCloser) {
	if bufSize == 0 {
		panic("buffer size cannot be 0")
	}

	p1, p2 := newBufferedPipe(bufSize), newBufferedPipe(bufSize)
	p1.counterpart, p2.counterpart = p2, p1
	return p1, p2
}

func newBufferedPipe(bufSize uint) *bufferedPipe {
	p := &bufferedPipe{buf: bytes.NewBuffer(make([]byte, 0, bufSize))}
	p.in.L, p.out.L = &sync.Mutex{}, &sync.Mutex{}
	return p
}

func (p *bufferedPipe) Close() error {
	p.closedMu.Lock()
	p._closed = true
	p.closedMu.Unlock()

	p.broadcast()
	p.counterpart.broadcast()
	return nil
}

func (p *bufferedPipe) broadcast() {
	p.in.L.Lock()
	p.in.Broadcast()
	p.in.L.Unlock()

	p.out.L.Lock()
	p.out.Broadcast()
	p.out.L.Unlock()
}

// Read returns io.EOF once either end is closed and the buffer is drained.
func (p *bufferedPipe) Read(b []byte) (n int, err error) {
	defer func() {
		if err != nil {
			return
		}
		// If buffer was full and counterpart was waiting,
		// we must notify them that it is now available to write.
		p.counterpart.out.L.Lock()
		p.counterpart.out.Signal()
		p.counterpart.out.L.Unlock()
	}()

	p.in.L.Lock()
	defer p.in.L.Unlock()

	for {
		// A closed end can still be read to the end of its buffer.
		if p.buf.Len() > 0 {
			return p.buf.Read(b)
		}

		if p.closed() || p.counterpart.closed() {
			return 0, io.EOF
		}

		p.in.Wait()
	}
}

func (p *bufferedPipe) Write(b []byte) (n int, err error) {
	// Serialize write operations to prevent interleaving write.
	p.serialMu.Lock()
	defer p.serialMu.Unlock()

	p.out.L.Lock()
	defer p.out.L.Unlock()

	// Ensure all the bytes are sent.
	nn := 0
	for once := true; once || len(b) > 0; once = false {
		if p.closed() || p.counterpart.closed() {
			return nn, io.ErrClosedPipe
		}

		// It might race with counterpart's read. So acquire lock.
		p.counterpart.in.L.Lock()

		// We don't want counterpart's buffer to grow.
		remain := p.counterpart.buf.Cap() - p.counterpart.buf.Len()

		if canWrite := min(len(b), remain); canWrite > 0 {
			// Counterpart's read waits on this lock, so it starts after the write.
			p.counterpart.in.Signal()

			p.counterpart.buf.Write(b[:canWrite])
			b = b[canWrite:]
			nn += canWrite

			p.counterpart.in.L.Unlock()
			continue
		}

		p.counterpart.in.L.Unlock()
		p.out.Wait()
	}

	return nn, nil
}

func (p *bufferedPipe) closed() bool {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	return p._closed
}
