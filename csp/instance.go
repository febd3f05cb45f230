// Package csp is a safe client and server layer over a CubeSat Space
// Protocol style packet stack.
//
// A process builds exactly one Instance. From it, servers open sockets and
// dispatch accepted connections by port, and clients open connections, ping
// nodes and query their services. Connections can be used packet by packet,
// as packet iterators or as byte streams.
package csp

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"text/tabwriter"

	"csp-stack/stack"
	"csp-stack/stack/mem"

	"github.com/pkg/errors"
)

// initGuard can be acquired once per process.
type initGuard struct{ taken atomic.Bool }

func (g *initGuard) acquire() {
	if !g.taken.CompareAndSwap(false, true) {
		panic("csp: only one instance can be created per process")
	}
}

var global initGuard

type Builder struct {
	cfg    Config
	stack  stack.Stack
	logger *slog.Logger
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
}

// WithDebugChannels enables the given stack debug channels.
func (b *Builder) WithDebugChannels(channels ...DebugChannel) *Builder {
	b.cfg.Channels = channels
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithStack replaces the in-process stack.
func (b *Builder) WithStack(s stack.Stack) *Builder {
	b.stack = s
	return b
}

// Build initialises the stack and starts its router. It panics if an
// instance was already built in this process.
func (b *Builder) Build() (*Instance, error) {
	global.acquire()
	return b.build()
}

func (b *Builder) build() (*Instance, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, newError(KindInvalidArgument, "%s", errors.Wrap(err, "validating config"))
	}

	s := b.stack
	if s == nil {
		s = mem.New(mem.Options{})
	}

	if err := s.Init(b.cfg.stackConfig(b.logger)); err != nil {
		return nil, fromStack(err, "initialising stack")
	}
	if err := s.StartRouter(); err != nil {
		return nil, fromStack(err, "starting router")
	}

	cfg := b.cfg
	b.logger.Info("csp instance started", "address", cfg.Address, "hostname", cfg.Hostname)
	return &Instance{s: s, cfg: &cfg, logger: b.logger}, nil
}

// Instance is the process-wide handle on the stack.
type Instance struct {
	s      stack.Stack
	cfg    *Config
	logger *slog.Logger
}

func (i *Instance) Config() Config     { return *i.cfg }
func (i *Instance) Stack() stack.Stack { return i.s }

// AddInterface registers iface. Interfaces live as long as the process.
func (i *Instance) AddInterface(iface stack.Interface) error {
	if err := i.s.AddInterface(iface); err != nil {
		return fromStack(err, fmt.Sprintf("adding interface %s", iface.Name()))
	}
	return nil
}

func (i *Instance) AddRoute(r Route, iface stack.Interface) error {
	if err := i.s.RouteSet(r.Address, r.Netmask, iface, r.Via); err != nil {
		return fromStack(err, fmt.Sprintf("setting route %d/%d", r.Address, r.Netmask))
	}
	return nil
}

// AddInterfaceRoute registers iface, unless it already is, and routes r
// through it.
func (i *Instance) AddInterfaceRoute(r Route, iface stack.Interface) error {
	if err := i.AddInterface(iface); err != nil && !errors.Is(err, KindAlreadyDone) {
		return err
	}
	return i.AddRoute(r, iface)
}

// OpenServerSocket binds a listening socket to port, which may be AnyPort.
func (i *Instance) OpenServerSocket(port uint8) (*Socket, error) {
	h := i.s.Socket(i.cfg.ConnDefaultOpts)
	if err := i.s.Bind(h, port); err != nil {
		i.s.CloseSocket(h)
		return nil, fromStack(err, fmt.Sprintf("binding port %d", port))
	}
	if err := i.s.Listen(h, i.cfg.Backlog); err != nil {
		i.s.CloseSocket(h)
		return nil, fromStack(err, fmt.Sprintf("listening on port %d", port))
	}

	return &Socket{
		s:      i.s,
		cfg:    i.cfg,
		logger: i.logger.With("port", port),
		h:      h,
		port:   port,
	}, nil
}

// ServerSocketBuilder starts a server listening on every port.
func (i *Instance) ServerSocketBuilder() (*ServerBuilder, error) {
	sock, err := i.OpenServerSocket(AnyPort)
	if err != nil {
		return nil, err
	}
	return NewServerBuilder(sock), nil
}

func (i *Instance) Client() Client {
	return Client{s: i.s, cfg: i.cfg, logger: i.logger}
}

func (i *Instance) Tables() stack.Tables { return i.s.Tables() }

// Stop shuts the stack down when it supports it. The instance is unusable
// afterwards.
func (i *Instance) Stop() {
	if s, ok := i.s.(interface{ Stop() }); ok {
		s.Stop()
	}
}

func (i *Instance) PrintConnTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SRC\tDST\tQUEUED\tSTATE")
	for _, c := range i.s.Tables().Conns {
		fmt.Fprintf(tw, "%d:%d\t%d:%d\t%d\t%s\n", c.Src, c.SPort, c.Dst, c.DPort, c.Queued, c.State)
	}
	return tw.Flush()
}

func (i *Instance) PrintIfList(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTX\tRX\tTXERR\tRXERR\tDROP\tTXBYTES\tRXBYTES")
	for _, f := range i.s.Tables().Interfaces {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			f.Name, f.TX, f.RX, f.TXError, f.RXError, f.Drop, f.TXBytes, f.RXBytes)
	}
	return tw.Flush()
}

func (i *Instance) PrintRTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tINTERFACE\tVIA")
	for _, r := range i.s.Tables().Routes {
		via := "-"
		if r.Via != NoVia {
			via = fmt.Sprint(r.Via)
		}
		fmt.Fprintf(tw, "%d/%d\t%s\t%s\n", r.Address, r.Netmask, r.Interface, via)
	}
	return tw.Flush()
}
