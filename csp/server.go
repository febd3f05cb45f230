package csp

import (
	"context"
	"sync"
)

// HandlerFunc serves one connection. The server closes the connection when
// the handler returns. A handler that moves it into a reader, writer or
// iterator closes that instead.
type HandlerFunc func(c *Conn)

type portHandler struct {
	port   uint8
	handle HandlerFunc
}

type unhandledAction int

const (
	unhandledDrop unhandledAction = iota
	unhandledLog
	unhandledFallback
)

// UnhandledPolicy decides what happens to a connection on a port without a
// handler.
type UnhandledPolicy struct {
	action   unhandledAction
	fallback HandlerFunc
}

var (
	// DropUnhandled closes the connection silently.
	DropUnhandled = UnhandledPolicy{action: unhandledDrop}
	// LogUnhandled closes the connection and logs a warning.
	LogUnhandled = UnhandledPolicy{action: unhandledLog}
)

// FallbackUnhandled passes the connection to h.
func FallbackUnhandled(h HandlerFunc) UnhandledPolicy {
	return UnhandledPolicy{action: unhandledFallback, fallback: h}
}

// ServerBuilder dispatches the connections accepted on a socket. Service
// ports are answered by the stack; other ports go to the first handler
// bound to them.
type ServerBuilder struct {
	sock      *Socket
	handlers  []portHandler
	unhandled UnhandledPolicy
}

func NewServerBuilder(sock *Socket) *ServerBuilder {
	return &ServerBuilder{sock: sock, unhandled: DropUnhandled}
}

// BindPort adds a handler for port. Handlers are tried in the order they
// were bound.
func (b *ServerBuilder) BindPort(port uint8, h HandlerFunc) *ServerBuilder {
	b.handlers = append(b.handlers, portHandler{port: port, handle: h})
	return b
}

func (b *ServerBuilder) Unhandled(p UnhandledPolicy) *ServerBuilder {
	b.unhandled = p
	return b
}

// RunSync serves connections one at a time, forever.
func (b *ServerBuilder) RunSync() {
	_ = b.ServeSync(context.Background())
	panic("csp: server loop returned")
}

// Run serves connections forever, each handler in its own goroutine.
func (b *ServerBuilder) Run() {
	_ = b.Serve(context.Background())
	panic("csp: server loop returned")
}

// ServeSync is RunSync until ctx is done. It returns ctx.Err(), or an error
// once the socket is closed.
func (b *ServerBuilder) ServeSync(ctx context.Context) error {
	return b.serve(ctx, func(h HandlerFunc, c *Conn) {
		b.handle(h, c)
	})
}

// Serve is Run until ctx is done. It waits for running handlers, then
// returns ctx.Err().
func (b *ServerBuilder) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	return b.serve(ctx, func(h HandlerFunc, c *Conn) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handle(h, c)
		}()
	})
}

func (b *ServerBuilder) serve(ctx context.Context, dispatch func(HandlerFunc, *Conn)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.sock.closed.Load() {
			return newError(KindReset, "socket on port %d closed", b.sock.port)
		}

		c, ok := b.sock.AcceptTimeout(b.sock.cfg.AcceptPoll)
		if !ok {
			continue
		}

		if h := b.route(c); h != nil {
			dispatch(h, c)
		}
	}
}

// route picks the handler for c. Service and dropped connections are dealt
// with here and yield nil.
func (b *ServerBuilder) route(c *Conn) HandlerFunc {
	if c.IsServiceConn() {
		if err := c.HandleAsServiceConn(); err != nil {
			c.logger.Warn("handling service connection", "error", err)
		}
		b.close(c)
		return nil
	}

	for _, ph := range b.handlers {
		if ph.port == c.Dst().Port {
			return ph.handle
		}
	}

	switch b.unhandled.action {
	case unhandledFallback:
		if b.unhandled.fallback != nil {
			return b.unhandled.fallback
		}
	case unhandledLog:
		c.logger.Warn("no handler for port, closing connection")
	}
	b.close(c)
	return nil
}

func (b *ServerBuilder) handle(h HandlerFunc, c *Conn) {
	defer b.close(c)
	h(c)
}

func (b *ServerBuilder) close(c *Conn) {
	if err := c.Close(); err != nil {
		c.logger.Warn("closing connection", "error", err)
	}
}

// Close closes the server's socket.
func (b *ServerBuilder) Close() error { return b.sock.Close() }
