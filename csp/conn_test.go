package csp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConnTestSuite struct {
	InstanceTestSuite
}

func TestConnTestSuite(t *testing.T) {
	suite.Run(t, new(ConnTestSuite))
}

// pair returns a connected client and server conn on testPort.
func (s *ConnTestSuite) pair(sock *Socket) (client, server *Conn) {
	client = s.connect(testPort)
	s.Require().NoError(client.SendPacket([]byte("hello")))

	server, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	return client, server
}

func (s *ConnTestSuite) TestSendPacketSize() {
	sock := s.listen(testPort)
	defer sock.Close()

	c := s.connect(testPort)
	defer c.Close()

	size := s.cfg.BufferDataSize
	s.NoError(c.SendPacket(make([]byte, size)))
	s.ErrorIs(c.SendPacket(make([]byte, size+1)), KindInvalidArgument)

	s.ErrorIs(c.SendPacketWith(func(buf []byte) int {
		s.Len(buf, size)
		return size + 1
	}), KindInvalidArgument)

	sc, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	p, ok := sc.ReadPacket(time.Second)
	s.Require().True(ok)
	s.Equal(size, p.Len())
	p.Release()

	_, ok = sc.ReadPacket(20 * time.Millisecond)
	s.False(ok)
	s.NoError(sc.Close())
}

func (s *ConnTestSuite) TestNoBuffers() {
	c := s.connect(testPort)
	defer c.Close()

	var held []*Packet
	mem := s.stack.mem()
	for mem.BuffersRemaining() > 0 {
		p, ok := newPacket(s.stack, mem.BufferGet(1))
		s.Require().True(ok)
		held = append(held, p)
	}

	s.ErrorIs(c.SendPacket([]byte("x")), KindNoBuffersAvailable)

	for _, p := range held {
		p.Release()
	}
	s.buffersBack()
}

func (s *ConnTestSuite) TestPacketReleaseOnce() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)
	defer client.Close()
	defer server.Close()

	p, ok := server.ReadPacket(time.Second)
	s.Require().True(ok)
	s.Equal("hello", string(p.Bytes()))
	s.Equal(uint8(testPort), p.ID().DPort)
	s.Equal(client.Dst().Port, p.ID().SPort)

	frees := s.stack.frees.Load()
	p.Release()
	p.Release()
	s.Equal(frees+1, s.stack.frees.Load())
	s.Nil(p.Bytes())
	s.Zero(p.Len())
}

func (s *ConnTestSuite) TestCloseOnce() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)

	s.NoError(server.Close())
	s.NoError(server.Close())
	s.NoError(client.Close())
	s.Equal(int32(2), s.stack.closes.Load())

	_, ok := server.ReadPacket(0)
	s.False(ok)
	s.ErrorIs(server.SendPacket([]byte("x")), KindReset)
	s.buffersBack()
}

func (s *ConnTestSuite) TestPeerCloseEndsReads() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)
	defer server.Close()

	s.Require().NoError(client.SendPacket([]byte("bye")))
	s.Require().NoError(client.Close())

	var got []string
	for {
		p, ok := server.ReadPacket(time.Second)
		if !ok {
			break
		}
		got = append(got, string(p.Bytes()))
		p.Release()
	}
	s.Equal([]string{"hello", "bye"}, got)
}

func (s *ConnTestSuite) TestMoved() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)
	defer client.Close()

	it, err := server.Packets()
	s.Require().NoError(err)
	s.Equal(server.Src(), it.Src())
	s.Equal(server.Dst(), it.Dst())

	s.ErrorIs(server.SendPacket([]byte("x")), ErrConnMoved)
	_, err = server.IntoReader(time.Second)
	s.ErrorIs(err, ErrConnMoved)
	_, err = server.IntoWriter()
	s.ErrorIs(err, ErrConnMoved)
	_, ok := server.ReadPacket(0)
	s.False(ok)
	s.ErrorIs(server.HandleAsServiceConn(), ErrConnMoved)

	closes := s.stack.closes.Load()
	s.NoError(server.Close())
	s.Equal(closes, s.stack.closes.Load(), "closing a moved conn does nothing")

	p, ok := it.Next()
	s.Require().True(ok)
	s.Equal("hello", string(p.Bytes()))
	p.Release()

	s.NoError(it.Close())
	s.Equal(closes+1, s.stack.closes.Load())
	_, ok = it.Next()
	s.False(ok)
}

func (s *ConnTestSuite) TestIterStopsOnTimeout() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)
	defer client.Close()
	s.Require().NoError(client.SendPacket([]byte("world")))

	it, err := server.PacketsTimeout(50 * time.Millisecond)
	s.Require().NoError(err)
	defer it.Close()

	var got []string
	for p := range it.All() {
		got = append(got, string(p.Bytes()))
		p.Release()
	}
	s.Equal([]string{"hello", "world"}, got)

	// Finished iterators stay finished even if more data arrives.
	s.Require().NoError(client.SendPacket([]byte("late")))
	_, ok := it.Next()
	s.False(ok)
}

func (s *ConnTestSuite) TestHandleAsServiceConnRejectsUserPort() {
	sock := s.listen(testPort)
	defer sock.Close()

	client, server := s.pair(sock)
	defer client.Close()
	defer server.Close()

	s.False(server.IsServiceConn())
	s.ErrorIs(server.HandleAsServiceConn(), KindInvalidArgument)
}

func (s *ConnTestSuite) TestHandleAsServiceConn() {
	sock := s.listen(PortPing)
	defer sock.Close()

	client := s.connect(PortPing)
	defer client.Close()
	s.Require().NoError(client.SendPacket([]byte("echo")))

	server, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	s.True(server.IsServiceConn())
	s.True(server.Dst().IsServicePort())

	s.NoError(server.HandleAsServiceConn())
	s.NoError(server.Close())

	p, ok := client.ReadPacket(time.Second)
	s.Require().True(ok)
	s.Equal("echo", string(p.Bytes()))
	p.Release()
}
