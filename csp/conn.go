package csp

import (
	"log/slog"
	"time"

	"csp-stack/stack"
)

type connState int

const (
	connOpen connState = iota
	connMoved
	connClosed
)

// Conn owns one connection of the stack. It may be handed between
// goroutines but must not be used from two at once.
//
// IntoReader, IntoWriter and Packets take ownership: afterwards the Conn
// reports ErrConnMoved and Close on it does nothing.
type Conn struct {
	s      stack.Stack
	cfg    *Config
	logger *slog.Logger

	h     stack.Conn
	state connState

	src, dst ConnAddress
}

func newConn(s stack.Stack, cfg *Config, logger *slog.Logger, h stack.Conn) *Conn {
	c := &Conn{
		s:   s,
		cfg: cfg,
		h:   h,
		src: ConnAddress{Address: h.SrcAddr(), Port: h.SrcPort()},
		dst: ConnAddress{Address: h.DstAddr(), Port: h.DstPort()},
	}
	c.logger = logger.With("src", c.src.String(), "dst", c.dst.String())
	return c
}

// Src is the remote end as seen by received packets.
func (c *Conn) Src() ConnAddress { return c.src }

// Dst is the local end. Its port is the one the connection was accepted on.
func (c *Conn) Dst() ConnAddress { return c.dst }

func (c *Conn) IsServiceConn() bool { return c.dst.IsServicePort() }

func (c *Conn) check() error {
	switch c.state {
	case connMoved:
		return ErrConnMoved
	case connClosed:
		return newError(KindReset, "connection closed")
	}
	return nil
}

// SendPacket copies b into a fresh buffer and sends it.
func (c *Conn) SendPacket(b []byte) error {
	if size := c.s.BufferDataSize(); len(b) > size {
		return newError(KindInvalidArgument, "data length %d exceeds maximum buffer size %d", len(b), size)
	}
	return c.SendPacketWith(func(buf []byte) int {
		return copy(buf, b)
	})
}

// SendPacketWith lets fill write the payload into a buffer of the maximum
// size and return its length.
func (c *Conn) SendPacketWith(fill func([]byte) int) error {
	if err := c.check(); err != nil {
		return err
	}

	size := c.s.BufferDataSize()
	p := c.s.BufferGet(size)
	if p == nil {
		return newError(KindNoBuffersAvailable, "getting buffer")
	}

	n := fill(p.Data[:size])
	if n < 0 || n > size {
		c.s.BufferFree(p)
		return newError(KindInvalidArgument, "data length %d exceeds maximum buffer size %d", n, size)
	}
	p.Length = uint16(n)

	return c.send(p)
}

// send consumes p whether or not it succeeds.
func (c *Conn) send(p *stack.Packet) error {
	if err := c.s.Send(c.h, p, c.cfg.SendTimeout); err != nil {
		c.s.BufferFree(p)
		return fromStack(err, "sending packet")
	}
	return nil
}

// ReadPacket waits up to timeout for a packet. It reports false on timeout,
// when the peer closed the connection, and once the Conn was moved or closed.
func (c *Conn) ReadPacket(timeout time.Duration) (*Packet, bool) {
	if c.check() != nil {
		return nil, false
	}
	return newPacket(c.s, c.s.Read(c.h, timeout))
}

// HandleAsServiceConn feeds every packet to the stack's service handler
// until a read times out. The connection stays open.
func (c *Conn) HandleAsServiceConn() error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.IsServiceConn() {
		return newError(KindInvalidArgument, "port %d is not a service port", c.dst.Port)
	}

	for {
		p := c.s.Read(c.h, c.cfg.ServiceTimeout)
		if p == nil {
			return nil
		}
		c.s.ServiceHandler(c.h, p)
	}
}

// Close closes the connection. Only the first call reaches the stack.
func (c *Conn) Close() error {
	if c.state != connOpen {
		return nil
	}
	c.state = connClosed

	if err := c.s.Close(c.h); err != nil {
		return fromStack(err, "closing connection")
	}
	return nil
}

// take moves the connection into a new Conn.
func (c *Conn) take() (*Conn, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	moved := *c
	c.state = connMoved
	return &moved, nil
}

// IntoReader turns the connection into a byte stream. Each read waits up to
// timeout for the next packet; a miss ends the stream.
func (c *Conn) IntoReader(timeout time.Duration) (*PacketReader, error) {
	moved, err := c.take()
	if err != nil {
		return nil, err
	}
	return &PacketReader{c: moved, timeout: timeout}, nil
}

// IntoWriter turns the connection into a byte stream cut into packets of the
// maximum buffer size.
func (c *Conn) IntoWriter() (*PacketWriter, error) {
	moved, err := c.take()
	if err != nil {
		return nil, err
	}
	return &PacketWriter{c: moved, size: moved.s.BufferDataSize()}, nil
}

// Packets iterates over received packets with the configured read timeout.
func (c *Conn) Packets() (*PacketIter, error) {
	return c.PacketsTimeout(c.cfg.ReadTimeout)
}

func (c *Conn) PacketsTimeout(timeout time.Duration) (*PacketIter, error) {
	moved, err := c.take()
	if err != nil {
		return nil, err
	}
	return &PacketIter{c: moved, timeout: timeout}, nil
}
