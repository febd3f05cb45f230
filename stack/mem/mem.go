// Package mem is an in-process implementation of stack.Stack.
//
// It provides what the csp package expects from the C library: a fixed buffer
// pool, a bounded connection table, port binding, a router task fed by a FIFO,
// the built-in service ports and a routing table over pluggable interfaces.
// There is no reliability layer; packets on the loopback path are never lost,
// they wait for room instead.
package mem

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"csp-stack/stack"

	"github.com/benbjohnson/clock"
)

const (
	defaultSendTimeout = time.Second
	maxEphemeralTry    = 8
)

type Options struct {
	Clock clock.Clock
	Rand  func() uint32
}

type Stack struct {
	cfg   stack.Config
	clock clock.Clock
	rand  func() uint32

	logger   *slog.Logger
	channels [stack.DebugLock + 1]bool

	pool   *pool
	ports  *portTable
	routes routeTable
	loop   *loopback

	mu        sync.Mutex
	inited    bool
	conns     []*conn // fixed slots, nil when free.
	sockets   map[uint8]*socket
	anySocket *socket
	ifaces    []stack.Interface

	fifo    chan *stack.Packet
	stop    chan struct{}
	stopped sync.Once
	running bool
	wg      sync.WaitGroup

	bootTime time.Time
}

var _ stack.Stack = (*Stack)(nil)

func New(opts Options) *Stack {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Rand == nil {
		opts.Rand = rand.Uint32
	}

	return &Stack{
		clock:   opts.Clock,
		rand:    opts.Rand,
		logger:  slog.New(slog.DiscardHandler),
		sockets: make(map[uint8]*socket),
		stop:    make(chan struct{}),
	}
}

func (s *Stack) Init(cfg stack.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inited {
		return stack.EALREADY
	}
	if cfg.Buffers <= 0 || cfg.BufferDataSize <= 0 || cfg.ConnMax <= 0 ||
		cfg.ConnQueueLength <= 0 || cfg.FifoLength <= 0 || cfg.PortMaxBind >= stack.MaxPort {
		return stack.EINVAL
	}

	s.cfg = cfg
	if cfg.Logger != nil {
		s.logger = cfg.Logger
	}
	for _, ch := range cfg.Channels {
		if ch >= 0 && int(ch) < len(s.channels) {
			s.channels[ch] = true
		}
	}

	s.pool = newPool(cfg.Buffers, cfg.BufferDataSize)
	s.ports = newPortTable(ephemeralPortOptions{
		Range:  [2]uint8{cfg.PortMaxBind + 1, stack.MaxPort},
		Rand:   s.rand,
		MaxTry: maxEphemeralTry,
	})
	s.conns = make([]*conn, cfg.ConnMax)
	s.fifo = make(chan *stack.Packet, cfg.FifoLength)
	s.loop = &loopback{s: s}
	s.ifaces = append(s.ifaces, s.loop)
	s.bootTime = s.clock.Now()
	s.inited = true

	s.debug(stack.DebugInfo, "stack initialised",
		"address", cfg.Address, "hostname", cfg.Hostname,
		"buffers", cfg.Buffers, "buffer_size", cfg.BufferDataSize)
	return nil
}

// StartRouter starts the router task. It runs until Stop.
func (s *Stack) StartRouter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inited {
		return stack.EINVAL
	}
	if s.running {
		return stack.EALREADY
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.routeLoop()
	}()
	return nil
}

// Stop halts the router and closes every interface that is an io.Closer.
// The C library has no equivalent; this exists so tests and the CLI can shut
// a node down without leaking goroutines.
func (s *Stack) Stop() {
	s.stopped.Do(func() {
		close(s.stop)
		s.wg.Wait()

		s.mu.Lock()
		ifaces := append([]stack.Interface(nil), s.ifaces...)
		s.mu.Unlock()

		for _, iface := range ifaces {
			if c, ok := iface.(io.Closer); ok {
				if err := c.Close(); err != nil {
					s.debug(stack.DebugWarn, "closing interface", "iface", iface.Name(), "error", err)
				}
			}
		}

		for {
			select {
			case p := <-s.fifo:
				s.BufferFree(p)
			default:
				return
			}
		}
	})
}

func (s *Stack) BufferGet(size int) *stack.Packet {
	p := s.pool.get(size)
	if p == nil {
		s.debug(stack.DebugBuffer, "buffer unavailable", "size", size, "remaining", s.pool.remaining())
	}
	return p
}

func (s *Stack) BufferFree(p *stack.Packet) {
	if p == nil {
		return
	}
	if !s.pool.put(p) {
		s.debug(stack.DebugError, "invalid buffer free", "index", p.Index, "pooled", p.Pooled)
	}
}

func (s *Stack) BufferDataSize() int { return s.cfg.BufferDataSize }

// BuffersRemaining is the number of free buffers in the pool.
func (s *Stack) BuffersRemaining() int { return s.pool.remaining() }

func (s *Stack) Tables() stack.Tables {
	var t stack.Tables

	s.mu.Lock()
	for _, c := range s.conns {
		if c != nil {
			t.Conns = append(t.Conns, c.info())
		}
	}
	ifaces := append([]stack.Interface(nil), s.ifaces...)
	s.mu.Unlock()

	for _, iface := range ifaces {
		t.Interfaces = append(t.Interfaces, iface.Stats().Info(iface.Name()))
	}
	t.Routes = s.routes.snapshot()
	return t
}

func (s *Stack) debug(ch stack.DebugChannel, msg string, args ...any) {
	if ch < 0 || int(ch) >= len(s.channels) || !s.channels[ch] {
		return
	}
	s.logger.Log(context.Background(), ch.Level(), msg, append(args, "channel", ch.String())...)
}
