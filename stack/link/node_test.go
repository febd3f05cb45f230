package link

import (
	"testing"
	"time"

	"csp-stack/stack"
	"csp-stack/stack/mem"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func nodeConfig(addr uint16) stack.Config {
	return stack.Config{
		Address:         addr,
		Hostname:        "node",
		ConnMax:         10,
		ConnQueueLength: 10,
		FifoLength:      25,
		PortMaxBind:     24,
		Buffers:         32,
		BufferDataSize:  256,
	}
}

// TwoNodeTestSuite runs two mem stacks joined by a piped link.
type TwoNodeTestSuite struct {
	suite.Suite
	n1, n2 *mem.Stack
}

func TestTwoNodeTestSuite(t *testing.T) {
	suite.Run(t, new(TwoNodeTestSuite))
}

func (s *TwoNodeTestSuite) SetupTest() {
	c1, c2 := Pipe(1024)
	s.n1 = s.node(1, New(c1, Options{Name: "L1"}), 2)
	s.n2 = s.node(2, New(c2, Options{Name: "L2"}), 1)
}

func (s *TwoNodeTestSuite) node(addr uint16, l *Link, peer uint16) *mem.Stack {
	n := mem.New(mem.Options{})
	s.Require().NoError(n.Init(nodeConfig(addr)))
	s.Require().NoError(n.AddInterface(l))
	s.Require().NoError(n.RouteSet(peer, -1, l, stack.NoVia))
	s.Require().NoError(n.StartRouter())
	return n
}

func (s *TwoNodeTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.n1.Stop()
	s.n2.Stop()
}

func (s *TwoNodeTestSuite) TestRequestReply() {
	k := s.n2.Socket(stack.OptNone)
	s.Require().NoError(s.n2.Bind(k, 10))
	s.Require().NoError(s.n2.Listen(k, 1))
	defer s.n2.CloseSocket(k)

	c := s.n1.Connect(stack.PrioNormal, 2, 10, time.Second, stack.OptNone)
	s.Require().NotNil(c)
	defer s.n1.Close(c)

	p := s.n1.BufferGet(4)
	s.Require().NotNil(p)
	p.Length = uint16(copy(p.Data, "ping"))
	s.Require().NoError(s.n1.Send(c, p, time.Second))

	server := s.n2.Accept(k, time.Second)
	s.Require().NotNil(server)
	defer s.n2.Close(server)
	s.Equal(uint16(1), server.SrcAddr())

	req := s.n2.Read(server, time.Second)
	s.Require().NotNil(req)
	s.Equal("ping", string(req.Payload()))

	req.Length = uint16(copy(req.Data, "pong"))
	s.Require().NoError(s.n2.Send(server, req, time.Second))

	reply := s.n1.Read(c, time.Second)
	s.Require().NotNil(reply)
	s.Equal("pong", string(reply.Payload()))
	s.Equal(uint16(2), reply.ID.Src)
	s.n1.BufferFree(reply)
}

func (s *TwoNodeTestSuite) TestPingAcrossLink() {
	k := s.n2.Socket(stack.OptNone)
	s.Require().NoError(s.n2.Bind(k, stack.AnyPort))
	s.Require().NoError(s.n2.Listen(k, 1))
	defer s.n2.CloseSocket(k)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := s.n2.Accept(k, time.Second)
		if c == nil {
			return
		}
		defer s.n2.Close(c)
		if p := s.n2.Read(c, time.Second); p != nil {
			s.n2.ServiceHandler(c, p)
		}
	}()

	rtt, err := s.n1.Ping(2, time.Second, 64, stack.OptNone)
	s.Require().NoError(err)
	s.Positive(rtt)
	<-done
}

func (s *TwoNodeTestSuite) TestNoRoute() {
	s.Nil(s.n1.Connect(stack.PrioNormal, 3, 10, time.Second, stack.OptNone))
}
