package mem

import (
	"sync"
	"time"

	"csp-stack/stack"
)

type socket struct {
	s    *Stack
	opts uint32

	mu      sync.Mutex
	port    uint8
	bound   bool
	closed  bool
	backlog chan *conn
	release func()
}

var _ stack.Socket = (*socket)(nil)

func (k *socket) Port() uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.port
}

// push queues an incoming connection. It fails when the socket is closed,
// not listening or its backlog is full.
func (k *socket) push(c *conn) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed || k.backlog == nil {
		return false
	}
	select {
	case k.backlog <- c:
		return true
	default:
		return false
	}
}

func (s *Stack) Socket(opts uint32) stack.Socket {
	return &socket{s: s, opts: opts, release: func() {}}
}

func (s *Stack) Bind(h stack.Socket, port uint8) error {
	k, ok := h.(*socket)
	if !ok || k == nil || k.s != s {
		return stack.EINVAL
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.bound || k.closed {
		return stack.EINVAL
	}

	if port == stack.AnyPort {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.anySocket != nil {
			return stack.EUSED
		}
		s.anySocket = k
		k.port, k.bound = port, true
		return nil
	}

	if port > s.cfg.PortMaxBind {
		s.debug(stack.DebugError, "bind: port out of range", "port", port, "port_max_bind", s.cfg.PortMaxBind)
		return stack.EINVAL
	}

	ok, release := s.ports.Occupy(port)
	if !ok {
		s.debug(stack.DebugError, "bind: port in use", "port", port)
		return stack.EUSED
	}

	s.mu.Lock()
	s.sockets[port] = k
	s.mu.Unlock()

	k.port, k.bound, k.release = port, true, release
	return nil
}

func (s *Stack) Listen(h stack.Socket, backlog int) error {
	k, ok := h.(*socket)
	if !ok || k == nil || k.s != s {
		return stack.EINVAL
	}
	if backlog <= 0 {
		return stack.ENOMEM
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed || k.backlog != nil {
		return stack.EINVAL
	}
	k.backlog = make(chan *conn, backlog)
	return nil
}

func (s *Stack) Accept(h stack.Socket, timeout time.Duration) stack.Conn {
	k, ok := h.(*socket)
	if !ok || k == nil || k.s != s {
		return nil
	}

	k.mu.Lock()
	backlog := k.backlog
	k.mu.Unlock()
	if backlog == nil {
		return nil
	}

	select {
	case c := <-backlog:
		return c
	default:
	}
	if timeout <= 0 {
		return nil
	}

	timer := s.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case c := <-backlog:
		return c
	case <-timer.C:
		return nil
	}
}

func (s *Stack) CloseSocket(h stack.Socket) error {
	k, ok := h.(*socket)
	if !ok || k == nil || k.s != s {
		return stack.EINVAL
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return stack.EALREADY
	}
	k.closed = true
	var pending []*conn
	if k.backlog != nil {
	drain:
		for {
			select {
			case c := <-k.backlog:
				pending = append(pending, c)
			default:
				break drain
			}
		}
	}
	port, bound := k.port, k.bound
	k.mu.Unlock()

	if bound {
		s.mu.Lock()
		if port == stack.AnyPort {
			if s.anySocket == k {
				s.anySocket = nil
			}
		} else if s.sockets[port] == k {
			delete(s.sockets, port)
		}
		s.mu.Unlock()
	}
	k.release()

	for _, c := range pending {
		s.Close(c)
	}
	return nil
}

// socketForLocked picks the socket a new connection to port belongs to.
func (s *Stack) socketForLocked(port uint8) *socket {
	if k, ok := s.sockets[port]; ok {
		return k
	}
	return s.anySocket
}
