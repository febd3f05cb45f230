package mem

import (
	"sync"
	"time"

	"csp-stack/lib/ds/queue"
	"csp-stack/stack"

	"github.com/benbjohnson/clock"
)

type connState int

const (
	connOpen connState = iota
	// connPeerClosed still drains queued packets, then reads return nil.
	connPeerClosed
	connClosed
)

func (s connState) String() string {
	switch s {
	case connOpen:
		return "open"
	case connPeerClosed:
		return "peer-closed"
	}
	return "closed"
}

type connKind int

const (
	connActive connKind = iota
	connPassive
)

type conn struct {
	s *Stack

	// in is the id expected on inbound packets: Src is the remote end, Dst
	// the local one. out is stamped on every packet sent.
	in, out stack.ID
	kind    connKind
	opts    uint32

	releasePort func()

	mu    sync.Mutex
	rx    *queue.Circular[*stack.Packet]
	state connState

	avail chan struct{} // a packet was queued or the state changed.
	space chan struct{} // a packet was dequeued or the state changed.
}

var _ stack.Conn = (*conn)(nil)

// Like csp_conn_src and friends, these report the inbound id.
func (c *conn) SrcAddr() uint16 { return c.in.Src }
func (c *conn) SrcPort() uint8  { return c.in.SPort }
func (c *conn) DstAddr() uint16 { return c.in.Dst }
func (c *conn) DstPort() uint8  { return c.in.DPort }

func (c *conn) info() stack.ConnInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	return stack.ConnInfo{
		Src:    c.in.Src,
		SPort:  c.in.SPort,
		Dst:    c.in.Dst,
		DPort:  c.in.DPort,
		Queued: int(c.rx.Len()),
		State:  c.state.String(),
	}
}

func (c *conn) matches(src uint16, sport, dport uint8) bool {
	return c.in.Src == src && c.in.SPort == sport && c.in.DPort == dport
}

// read waits for a packet until timeout. A timeout <= 0 only polls.
func (c *conn) read(timeout time.Duration) *stack.Packet {
	var timer *clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		c.mu.Lock()
		if p, err := c.rx.Dequeue(); err == nil {
			c.mu.Unlock()
			notify(c.space)
			return p
		}
		state := c.state
		c.mu.Unlock()

		if state != connOpen || timeout <= 0 {
			return nil
		}

		if timer == nil {
			timer = c.s.clock.Timer(timeout)
		}

		select {
		case <-c.avail:
		case <-timer.C:
			return nil
		}
	}
}

// enqueue blocks while the receive queue is full. It reports false when the
// connection closed or the stack stopped first; p is then still the caller's.
func (c *conn) enqueue(p *stack.Packet) bool {
	for {
		c.mu.Lock()
		if c.state == connClosed {
			c.mu.Unlock()
			return false
		}
		if c.rx.Enqueue(p) {
			c.mu.Unlock()
			notify(c.avail)
			return true
		}
		c.mu.Unlock()

		c.s.debug(stack.DebugProtocol, "connection queue full, waiting", "conn", c.in)

		select {
		case <-c.space:
		case <-c.s.stop:
			return false
		}
	}
}

func (c *conn) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == connOpen
}

func (c *conn) peerClosed() {
	c.mu.Lock()
	if c.state == connOpen {
		c.state = connPeerClosed
	}
	c.mu.Unlock()
	notify(c.avail)
}

// shutdown marks c closed and frees what it queued. It reports the previous
// state.
func (c *conn) shutdown() connState {
	c.mu.Lock()
	prev := c.state
	if prev != connClosed {
		c.state = connClosed
		c.rx.Drain(c.s.BufferFree)
	}
	c.mu.Unlock()

	notify(c.avail)
	notify(c.space)
	return prev
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Stack) newConnLocked(kind connKind, in, out stack.ID, opts uint32) *conn {
	for i, slot := range s.conns {
		if slot != nil {
			continue
		}
		c := &conn{
			s:     s,
			in:    in,
			out:   out,
			kind:  kind,
			opts:  opts,
			rx:    queue.NewCircular[*stack.Packet](uint(s.cfg.ConnQueueLength)),
			avail: make(chan struct{}, 1),
			space: make(chan struct{}, 1),

			releasePort: func() {},
		}
		s.conns[i] = c
		return c
	}
	return nil
}

// findConnLocked skips connections the peer already closed: a packet on the
// same ports then belongs to a new connection.
func (s *Stack) findConnLocked(src uint16, sport, dport uint8) *conn {
	for _, c := range s.conns {
		if c != nil && c.matches(src, sport, dport) && c.isOpen() {
			return c
		}
	}
	return nil
}

func (s *Stack) removeConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, slot := range s.conns {
		if slot == c {
			s.conns[i] = nil
			return
		}
	}
}

func (s *Stack) Connect(prio stack.Priority, dst uint16, dport uint8, _ time.Duration, opts uint32) stack.Conn {
	if dport > stack.MaxPort {
		s.debug(stack.DebugError, "connect: invalid port", "dport", dport)
		return nil
	}
	if dst != s.cfg.Address && s.routes.lookup(dst) == nil {
		s.debug(stack.DebugWarn, "connect: no route", "dst", dst)
		return nil
	}

	ok, sport, release := s.ports.OccupyEphemeral()
	if !ok {
		s.debug(stack.DebugError, "connect: out of source ports")
		return nil
	}

	s.mu.Lock()
	c := s.newConnLocked(connActive,
		stack.ID{Prio: prio, Src: dst, SPort: dport, Dst: s.cfg.Address, DPort: sport},
		stack.ID{Prio: prio, Src: s.cfg.Address, SPort: sport, Dst: dst, DPort: dport},
		opts|s.cfg.ConnDefaultOpts,
	)
	s.mu.Unlock()

	if c == nil {
		release()
		s.debug(stack.DebugError, "connect: connection table full", "conn_max", s.cfg.ConnMax)
		return nil
	}
	c.releasePort = release

	s.debug(stack.DebugProtocol, "connection opened", "conn", c.out)
	return c
}

func (s *Stack) Close(h stack.Conn) error {
	c, ok := h.(*conn)
	if !ok || c == nil || c.s != s {
		return stack.EINVAL
	}

	prev := c.shutdown()
	if prev == connClosed {
		return stack.EALREADY
	}

	s.removeConn(c)
	c.releasePort()

	if prev == connOpen {
		s.sendClose(c)
	}

	s.debug(stack.DebugProtocol, "connection closed", "conn", c.out)
	return nil
}

// sendClose tells the remote end that c is gone. It is best effort.
func (s *Stack) sendClose(c *conn) {
	p := s.BufferGet(0)
	if p == nil {
		return
	}
	p.ID = c.out
	p.ID.Flags |= stack.FlagClose
	p.Length = 0

	if err := s.output(p, defaultSendTimeout); err != nil {
		s.BufferFree(p)
	}
}

func (s *Stack) Read(h stack.Conn, timeout time.Duration) *stack.Packet {
	c, ok := h.(*conn)
	if !ok || c == nil || c.s != s {
		return nil
	}
	return c.read(timeout)
}

func (s *Stack) Send(h stack.Conn, p *stack.Packet, timeout time.Duration) error {
	c, ok := h.(*conn)
	if !ok || c == nil || c.s != s || p == nil {
		return stack.EINVAL
	}
	if int(p.Length) > len(p.Data) {
		return stack.EINVAL
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == connClosed {
		return stack.ERESET
	}

	p.ID = c.out
	return s.output(p, timeout)
}
