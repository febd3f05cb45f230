package mem

import (
	"time"

	"csp-stack/stack"
)

const loopbackName = "LOOP"

// loopback carries packets addressed to the node itself. It never drops: a
// sender waits for room in the router FIFO until its timeout.
type loopback struct {
	s     *Stack
	stats stack.IfaceStats
}

var _ stack.Interface = (*loopback)(nil)

func (l *loopback) Name() string                          { return loopbackName }
func (l *loopback) Attach(stack.RxFunc, stack.Pool) error { return nil }
func (l *loopback) Stats() *stack.IfaceStats              { return &l.stats }

func (l *loopback) Transmit(p *stack.Packet, _ uint16) error {
	return l.push(p, defaultSendTimeout)
}

func (l *loopback) push(p *stack.Packet, timeout time.Duration) error {
	select {
	case l.s.fifo <- p:
		l.count(p)
		return nil
	case <-l.s.stop:
		l.stats.TXError.Add(1)
		return stack.ETX
	default:
	}
	if timeout <= 0 {
		l.stats.Drop.Add(1)
		return stack.ETIMEDOUT
	}

	timer := l.s.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case l.s.fifo <- p:
		l.count(p)
		return nil
	case <-l.s.stop:
		l.stats.TXError.Add(1)
		return stack.ETX
	case <-timer.C:
		l.stats.Drop.Add(1)
		return stack.ETIMEDOUT
	}
}

func (l *loopback) count(p *stack.Packet) {
	n := uint64(p.Length)
	l.stats.TX.Add(1)
	l.stats.TXBytes.Add(n)
	l.stats.RX.Add(1)
	l.stats.RXBytes.Add(n)
}

// output sends p towards its destination. On success the stack owns p.
func (s *Stack) output(p *stack.Packet, timeout time.Duration) error {
	if p.ID.Dst == s.cfg.Address {
		return s.loop.push(p, timeout)
	}

	r := s.routes.lookup(p.ID.Dst)
	if r == nil {
		s.debug(stack.DebugWarn, "no route", "dst", p.ID.Dst)
		return stack.ETX
	}

	s.debug(stack.DebugPacket, "output", "id", p.ID, "iface", r.iface.Name(), "via", r.via, "length", p.Length)
	return r.iface.Transmit(p, r.via)
}

// input is the RxFunc handed to every interface. It waits for room in the
// FIFO rather than dropping.
func (s *Stack) input(p *stack.Packet) {
	if p == nil {
		return
	}
	select {
	case s.fifo <- p:
	case <-s.stop:
		s.BufferFree(p)
	}
}

func (s *Stack) routeLoop() {
	s.debug(stack.DebugInfo, "router started")
	defer s.debug(stack.DebugInfo, "router stopped")

	for {
		select {
		case <-s.stop:
			return
		case p := <-s.fifo:
			s.route(p)
		}
	}
}

func (s *Stack) route(p *stack.Packet) {
	if p.ID.Dst == s.cfg.Address {
		s.deliver(p)
		return
	}

	r := s.routes.lookup(p.ID.Dst)
	if r == nil || r.iface == stack.Interface(s.loop) {
		s.debug(stack.DebugWarn, "dropping packet without route", "id", p.ID)
		s.BufferFree(p)
		return
	}

	s.debug(stack.DebugPacket, "forwarding", "id", p.ID, "iface", r.iface.Name(), "via", r.via)
	if err := r.iface.Transmit(p, r.via); err != nil {
		s.debug(stack.DebugWarn, "forward failed", "id", p.ID, "error", err)
		s.BufferFree(p)
	}
}

// deliver hands a packet addressed to this node to its connection, creating
// a passive connection on the listening socket when none exists.
func (s *Stack) deliver(p *stack.Packet) {
	id := p.ID
	closing := id.Flags&stack.FlagClose != 0

	s.mu.Lock()
	c := s.findConnLocked(id.Src, id.SPort, id.DPort)
	var k *socket
	if c == nil && !closing {
		k = s.socketForLocked(id.DPort)
		if k != nil {
			c = s.newConnLocked(connPassive,
				stack.ID{Prio: id.Prio, Src: id.Src, SPort: id.SPort, Dst: id.Dst, DPort: id.DPort},
				stack.ID{Prio: id.Prio, Src: id.Dst, SPort: id.DPort, Dst: id.Src, DPort: id.SPort},
				k.opts|s.cfg.ConnDefaultOpts,
			)
			if c == nil {
				s.mu.Unlock()
				s.debug(stack.DebugError, "connection table full, dropping", "id", id)
				s.BufferFree(p)
				return
			}
		}
	}
	s.mu.Unlock()

	if c == nil {
		s.debug(stack.DebugProtocol, "no connection or socket, dropping", "id", id)
		s.BufferFree(p)
		return
	}

	if closing {
		s.BufferFree(p)
		c.peerClosed()
		s.debug(stack.DebugProtocol, "peer closed connection", "conn", c.in)
		return
	}

	s.debug(stack.DebugPacket, "input", "id", id, "length", p.Length)
	if !c.enqueue(p) {
		s.BufferFree(p)
		if k != nil {
			s.removeConn(c)
		}
		return
	}

	if k != nil && !k.push(c) {
		s.debug(stack.DebugWarn, "socket backlog full or closed, dropping connection", "id", id)
		c.shutdown()
		s.removeConn(c)
	}
}
