package csp

import (
	"log/slog"
	"math"
	"time"

	"csp-stack/stack"

	"github.com/pkg/errors"
)

type DebugChannel = stack.DebugChannel

const (
	DebugError    = stack.DebugError
	DebugWarn     = stack.DebugWarn
	DebugInfo     = stack.DebugInfo
	DebugBuffer   = stack.DebugBuffer
	DebugPacket   = stack.DebugPacket
	DebugProtocol = stack.DebugProtocol
	DebugLock     = stack.DebugLock
)

// Config holds the node settings passed to the stack at initialisation
// plus the timeouts used by this package.
type Config struct {
	Address  uint16
	Hostname string
	Model    string
	Revision string

	ConnMax         int
	ConnQueueLength int
	FifoLength      int
	PortMaxBind     uint8
	RDPMaxWindow    int
	Buffers         int
	BufferDataSize  int
	ConnDefaultOpts uint32

	// Backlog is the listen backlog of server sockets.
	Backlog int

	SendTimeout    time.Duration
	ReadTimeout    time.Duration
	ServiceTimeout time.Duration
	// AcceptPoll is how long Socket.Accept waits per attempt.
	AcceptPoll time.Duration

	// Channels are the enabled debug channels. Each one is independent.
	Channels []DebugChannel

	// RebootHook runs on a valid reboot request. Nil ignores them.
	RebootHook func()
}

func DefaultConfig() Config {
	return Config{
		Address:         1,
		Hostname:        "{hostname unspecified}",
		Model:           "{model unspecified}",
		Revision:        "{revision unspecified}",
		ConnMax:         10,
		ConnQueueLength: 10,
		FifoLength:      25,
		PortMaxBind:     24,
		RDPMaxWindow:    20,
		Buffers:         10,
		BufferDataSize:  256,
		ConnDefaultOpts: stack.OptNone,
		Backlog:         10,
		SendTimeout:     time.Second,
		ReadTimeout:     time.Second,
		ServiceTimeout:  time.Second,
		AcceptPoll:      time.Second,
		Channels:        stack.DebugChannelsUpTo(stack.DebugError),
	}
}

func (c Config) WithAddress(addr uint16) Config { c.Address = addr; return c }

func (c Config) WithDetails(hostname, model, revision string) Config {
	c.Hostname, c.Model, c.Revision = hostname, model, revision
	return c
}

func (c Config) WithConnMax(n int) Config            { c.ConnMax = n; return c }
func (c Config) WithConnQueueLength(n int) Config    { c.ConnQueueLength = n; return c }
func (c Config) WithFifoLength(n int) Config         { c.FifoLength = n; return c }
func (c Config) WithPortMaxBind(port uint8) Config   { c.PortMaxBind = port; return c }
func (c Config) WithRDPMaxWindow(n int) Config       { c.RDPMaxWindow = n; return c }
func (c Config) WithBuffers(n int) Config            { c.Buffers = n; return c }
func (c Config) WithBufferDataSize(n int) Config     { c.BufferDataSize = n; return c }
func (c Config) WithConnDefaultOpts(o uint32) Config { c.ConnDefaultOpts = o; return c }
func (c Config) WithBacklog(n int) Config            { c.Backlog = n; return c }

func (c Config) WithDebugChannels(channels ...DebugChannel) Config {
	c.Channels = channels
	return c
}

func (c Config) Validate() error {
	switch {
	case c.ConnMax <= 0:
		return errors.Errorf("conn max must be positive, got %d", c.ConnMax)
	case c.ConnQueueLength <= 0:
		return errors.Errorf("conn queue length must be positive, got %d", c.ConnQueueLength)
	case c.FifoLength <= 0:
		return errors.Errorf("fifo length must be positive, got %d", c.FifoLength)
	case c.PortMaxBind >= stack.MaxPort:
		return errors.Errorf("port max bind must be below %d, got %d", stack.MaxPort, c.PortMaxBind)
	case c.Buffers <= 0:
		return errors.Errorf("buffers must be positive, got %d", c.Buffers)
	case c.BufferDataSize <= 0 || c.BufferDataSize > math.MaxUint16:
		return errors.Errorf("buffer data size must be in 1..%d, got %d", math.MaxUint16, c.BufferDataSize)
	case c.Backlog <= 0:
		return errors.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	return nil
}

func (c Config) stackConfig(logger *slog.Logger) stack.Config {
	return stack.Config{
		Address:         c.Address,
		Hostname:        c.Hostname,
		Model:           c.Model,
		Revision:        c.Revision,
		ConnMax:         c.ConnMax,
		ConnQueueLength: c.ConnQueueLength,
		FifoLength:      c.FifoLength,
		PortMaxBind:     c.PortMaxBind,
		RDPMaxWindow:    c.RDPMaxWindow,
		Buffers:         c.Buffers,
		BufferDataSize:  c.BufferDataSize,
		ConnDefaultOpts: c.ConnDefaultOpts,
		Logger:          logger,
		Channels:        c.Channels,
		RebootHook:      c.RebootHook,
	}
}
