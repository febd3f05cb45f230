// Package link is a stack.Interface that frames packets over a byte stream.
//
// Each frame is a big-endian uint16 payload length, the 8-byte packet header
// and the payload:
//
//	+--------+------+-------+-----+-----+-------+-------+---------+
//	| length | prio | flags | src | dst | dport | sport | payload |
//	|   2    |  1   |   1   |  2  |  2  |   1   |   1   |  length |
//	+--------+------+-------+-----+-----+-------+-------+---------+
package link

import (
	"encoding/binary"
	"io"
	"log/slog"
	"slices"
	"sync"

	"csp-stack/stack"

	"github.com/pkg/errors"
)

const (
	lengthSize = 2
	headerSize = 8
	frameHead  = lengthSize + headerSize
)

var ErrLinkClosed = errors.New("link closed")

type Options struct {
	Name string
	// Accept limits received packets to these destination addresses.
	// Empty accepts every packet.
	Accept []uint16
	Logger *slog.Logger
}

type Link struct {
	name   string
	rw     io.ReadWriteCloser
	accept []uint16
	logger *slog.Logger
	stats  stack.IfaceStats

	wmu sync.Mutex
	buf []byte

	attached bool
	pool     stack.Pool
	rx       stack.RxFunc
	wg       sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

var _ stack.Interface = (*Link)(nil)
var _ io.Closer = (*Link)(nil)

func New(rw io.ReadWriteCloser, opts Options) *Link {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Link{
		name:   opts.Name,
		rw:     rw,
		accept: slices.Clone(opts.Accept),
		logger: opts.Logger.With("iface", opts.Name),
		closed: make(chan struct{}),
	}
}

func (l *Link) Name() string             { return l.name }
func (l *Link) Stats() *stack.IfaceStats { return &l.stats }

// Attach starts the receive loop.
func (l *Link) Attach(rx stack.RxFunc, pool stack.Pool) error {
	if rx == nil || pool == nil {
		return stack.EINVAL
	}
	if l.attached {
		return stack.EALREADY
	}
	l.attached = true
	l.rx, l.pool = rx, pool

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.readLoop()
	}()
	return nil
}

func (l *Link) Transmit(p *stack.Packet, _ uint16) error {
	payload := p.Payload()

	l.wmu.Lock()
	l.buf = AppendFrame(l.buf[:0], p.ID, payload)
	_, err := l.rw.Write(l.buf)
	l.wmu.Unlock()

	if err != nil {
		l.stats.TXError.Add(1)
		l.logger.Warn("transmit failed", "id", p.ID, "error", err)
		return stack.ETX
	}

	l.stats.TX.Add(1)
	l.stats.TXBytes.Add(uint64(len(payload)))
	if l.pool != nil {
		l.pool.Free(p)
	}
	return nil
}

// Close closes the underlying stream and waits for the receive loop.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.rw.Close()
		l.wg.Wait()
	})
	return err
}

func (l *Link) readLoop() {
	for {
		err := l.readFrame()
		if err == nil {
			continue
		}

		select {
		case <-l.closed:
			return
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			l.logger.Info("link closed by peer")
			return
		}
		l.stats.RXError.Add(1)
		l.logger.Error("receive failed", "error", err)
		return
	}
}

func (l *Link) readFrame() error {
	var head [frameHead]byte
	if _, err := io.ReadFull(l.rw, head[:]); err != nil {
		return err
	}
	n, id := ParseHead(head[:])

	p := l.pool.Get(int(n))
	if p == nil {
		l.stats.Drop.Add(1)
		l.logger.Warn("no buffer for frame, dropping", "id", id, "length", n)
		_, err := io.CopyN(io.Discard, l.rw, int64(n))
		return errors.Wrap(err, "discarding frame")
	}

	if _, err := io.ReadFull(l.rw, p.Data[:n]); err != nil {
		l.pool.Free(p)
		return err
	}
	p.ID, p.Length = id, n

	if !l.accepts(id.Dst) {
		l.stats.Drop.Add(1)
		l.pool.Free(p)
		return nil
	}

	l.stats.RX.Add(1)
	l.stats.RXBytes.Add(uint64(n))
	l.rx(p)
	return nil
}

func (l *Link) accepts(dst uint16) bool {
	return len(l.accept) == 0 || slices.Contains(l.accept, dst)
}

// AppendFrame appends the framed encoding of a packet to b.
func AppendFrame(b []byte, id stack.ID, payload []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)))
	b = append(b, byte(id.Prio), id.Flags)
	b = binary.BigEndian.AppendUint16(b, id.Src)
	b = binary.BigEndian.AppendUint16(b, id.Dst)
	b = append(b, id.DPort, id.SPort)
	return append(b, payload...)
}

// ParseHead decodes the length and header that start every frame. b must be
// at least 10 bytes.
func ParseHead(b []byte) (length uint16, id stack.ID) {
	length = binary.BigEndian.Uint16(b)
	b = b[lengthSize:]
	id = stack.ID{
		Prio:  stack.Priority(b[0]),
		Flags: b[1],
		Src:   binary.BigEndian.Uint16(b[2:]),
		Dst:   binary.BigEndian.Uint16(b[4:]),
		DPort: b[6],
		SPort: b[7],
	}
	return length, id
}
