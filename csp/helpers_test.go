package csp

import (
	"context"
	"sync/atomic"
	"time"

	"csp-stack/stack"
	"csp-stack/stack/mem"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

const (
	testAddr = 1
	testPort = 10
)

// countingStack records the calls this package makes into the stack.
type countingStack struct {
	stack.Stack

	closes      atomic.Int32
	frees       atomic.Int32
	closeSocket atomic.Int32
}

func (c *countingStack) Close(h stack.Conn) error {
	c.closes.Add(1)
	return c.Stack.Close(h)
}

func (c *countingStack) BufferFree(p *stack.Packet) {
	c.frees.Add(1)
	c.Stack.BufferFree(p)
}

func (c *countingStack) Stop() { c.mem().Stop() }

func (c *countingStack) mem() *mem.Stack { return c.Stack.(*mem.Stack) }

func (c *countingStack) CloseSocket(h stack.Socket) error {
	c.closeSocket.Add(1)
	return c.Stack.CloseSocket(h)
}

func testConfig() Config {
	return DefaultConfig().
		WithAddress(testAddr).
		WithDetails("test", "mem", "v0").
		WithBuffers(128).
		WithDebugChannels()
}

// InstanceTestSuite gives every test a fresh node. It skips the process-wide
// guard so each test can build its own instance.
type InstanceTestSuite struct {
	suite.Suite

	cfg   Config
	stack *countingStack
	inst  *Instance
}

func (s *InstanceTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.cfg.AcceptPoll = 20 * time.Millisecond
	s.cfg.ServiceTimeout = 200 * time.Millisecond

	s.stack = &countingStack{Stack: mem.New(mem.Options{})}

	inst, err := NewBuilder(s.cfg).WithStack(s.stack).build()
	s.Require().NoError(err)
	s.inst = inst
}

func (s *InstanceTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.inst.Stop()
}

func (s *InstanceTestSuite) connect(port uint8) *Conn {
	c, err := s.inst.Client().Connect(testAddr, port, PrioNormal, time.Second)
	s.Require().NoError(err)
	return c
}

func (s *InstanceTestSuite) listen(port uint8) *Socket {
	sock, err := s.inst.OpenServerSocket(port)
	s.Require().NoError(err)
	return sock
}

// serve runs b in the background until the returned function is called.
func (s *InstanceTestSuite) serve(b *ServerBuilder, sync bool) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		if sync {
			done <- b.ServeSync(ctx)
		} else {
			done <- b.Serve(ctx)
		}
	}()

	return func() {
		cancel()
		s.ErrorIs(<-done, context.Canceled)
		s.NoError(b.Close())
	}
}

func (s *InstanceTestSuite) buffersBack() {
	s.Eventually(func() bool {
		return s.stack.mem().BuffersRemaining() == s.cfg.Buffers
	}, time.Second, time.Millisecond)
}
