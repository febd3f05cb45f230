package csp

import (
	"log/slog"
	"sync/atomic"
	"time"

	"csp-stack/stack"
)

// Socket is a bound, listening socket.
type Socket struct {
	s      stack.Stack
	cfg    *Config
	logger *slog.Logger

	h      stack.Socket
	port   uint8
	closed atomic.Bool
}

func (k *Socket) Port() uint8 { return k.port }

// AcceptTimeout waits up to timeout for a connection.
func (k *Socket) AcceptTimeout(timeout time.Duration) (*Conn, bool) {
	if k.closed.Load() {
		return nil, false
	}
	h := k.s.Accept(k.h, timeout)
	if h == nil {
		return nil, false
	}
	return newConn(k.s, k.cfg, k.logger, h), true
}

// Accept waits until a connection arrives, polling every AcceptPoll.
func (k *Socket) Accept() *Conn {
	for {
		if c, ok := k.AcceptTimeout(k.cfg.AcceptPoll); ok {
			return c
		}
	}
}

// Close releases the port. Later calls do nothing. It may be called while
// another goroutine serves the socket.
func (k *Socket) Close() error {
	if k.closed.Swap(true) {
		return nil
	}

	if err := k.s.CloseSocket(k.h); err != nil {
		return fromStack(err, "closing socket")
	}
	return nil
}
