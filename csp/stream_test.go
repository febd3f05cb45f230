package csp

import (
	"bytes"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type StreamTestSuite struct {
	InstanceTestSuite
}

func TestStreamTestSuite(t *testing.T) {
	suite.Run(t, new(StreamTestSuite))
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.UintN(256))
	}
	return b
}

func (s *StreamTestSuite) writeChunked(data []byte, chunk func() int) {
	c := s.connect(testPort)
	w, err := c.IntoWriter()
	s.Require().NoError(err)

	for len(data) > 0 {
		n := min(chunk(), len(data))
		m, err := w.Write(data[:n])
		s.Require().NoError(err)
		s.Require().Equal(n, m)
		data = data[n:]
	}
	s.Require().NoError(w.Close())
}

func (s *StreamTestSuite) readChunked(sock *Socket, size func() int) []byte {
	c, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)

	r, err := c.IntoReader(time.Second)
	s.Require().NoError(err)
	defer r.Close()

	var got bytes.Buffer
	for {
		buf := make([]byte, size())
		n, err := r.Read(buf)
		s.Require().LessOrEqual(n, len(buf))
		got.Write(buf[:n])
		if err == io.EOF {
			return got.Bytes()
		}
		s.Require().NoError(err)
	}
}

func (s *StreamTestSuite) TestRoundTripProperty() {
	sock := s.listen(testPort)
	defer sock.Close()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		data := randomBytes(rng, 1+rng.IntN(5000))
		maxWrite, maxRead := 1+rng.IntN(700), 1+rng.IntN(700)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrng := rand.New(rand.NewPCG(uint64(len(data)), 3))
			s.writeChunked(data, func() int { return 1 + wrng.IntN(maxWrite) })
		}()

		got := s.readChunked(sock, func() int { return 1 + rng.IntN(maxRead) })
		wg.Wait()

		s.Require().Equal(data, got)
	}
	s.buffersBack()
}

// TestEndToEnd sends the same 10 000 bytes over three connections, each
// written in a different chunk size, to a server on port 10.
func (s *StreamTestSuite) TestEndToEnd() {
	data := randomBytes(rand.New(rand.NewPCG(42, 42)), 10000)
	received := make(chan []byte, 3)

	b, err := s.inst.ServerSocketBuilder()
	s.Require().NoError(err)
	b.BindPort(testPort, func(c *Conn) {
		r, err := c.IntoReader(time.Second)
		if !s.NoError(err) {
			return
		}
		defer r.Close()

		got, err := io.ReadAll(r)
		s.NoError(err)
		received <- got
	})
	stop := s.serve(b, false)
	defer stop()

	for _, chunk := range []int{100, 1000, 10000} {
		s.writeChunked(data, func() int { return chunk })

		select {
		case got := <-received:
			s.Equal(data, got, "chunk size %d", chunk)
		case <-time.After(5 * time.Second):
			s.FailNow("no data received", "chunk size %d", chunk)
		}
	}
}

func (s *StreamTestSuite) TestReaderNeverOverreads() {
	sock := s.listen(testPort)
	defer sock.Close()

	c := s.connect(testPort)
	s.Require().NoError(c.SendPacket([]byte("abcdef")))
	s.Require().NoError(c.SendPacket([]byte("gh")))

	sc, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	r, err := sc.IntoReader(100 * time.Millisecond)
	s.Require().NoError(err)

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	s.NoError(err)
	s.Equal("abcd", string(buf[:n]))

	// The rest of the first packet only; the reader does not wait for more
	// once it has copied something.
	n, err = r.Read(buf)
	s.NoError(err)
	s.Equal("ef", string(buf[:n]))

	n, err = r.Read(buf)
	s.NoError(err)
	s.Equal("gh", string(buf[:n]))

	n, err = r.Read(make([]byte, 0))
	s.NoError(err)
	s.Zero(n)

	s.Require().NoError(c.Close())
	n, err = r.Read(buf)
	s.Equal(io.EOF, err)
	s.Zero(n)

	// Finished stays finished.
	n, err = r.Read(buf)
	s.Equal(io.EOF, err)
	s.Zero(n)

	s.NoError(r.Close())
	s.buffersBack()
}

func (s *StreamTestSuite) TestReaderCloseReleasesHeldPacket() {
	sock := s.listen(testPort)
	defer sock.Close()

	c := s.connect(testPort)
	defer c.Close()
	s.Require().NoError(c.SendPacket([]byte("partial")))

	sc, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	r, err := sc.IntoReader(time.Second)
	s.Require().NoError(err)

	_, err = r.Read(make([]byte, 3))
	s.Require().NoError(err)

	frees := s.stack.frees.Load()
	s.NoError(r.Close())
	s.Equal(frees+1, s.stack.frees.Load())
	s.NoError(r.Close())
	s.Equal(frees+1, s.stack.frees.Load())
}

func (s *StreamTestSuite) TestWriterPacketBoundaries() {
	sock := s.listen(testPort)
	defer sock.Close()

	size := s.cfg.BufferDataSize
	c := s.connect(testPort)
	w, err := c.IntoWriter()
	s.Require().NoError(err)

	// Zero-length writes send nothing.
	n, err := w.Write(nil)
	s.NoError(err)
	s.Zero(n)
	s.NoError(w.Flush())

	n, err = w.Write(make([]byte, size+10))
	s.Require().NoError(err)
	s.Equal(size+10, n)
	s.Require().NoError(w.Flush())
	s.Require().NoError(w.Flush())

	sc, ok := sock.AcceptTimeout(time.Second)
	s.Require().True(ok)
	it, err := sc.PacketsTimeout(100 * time.Millisecond)
	s.Require().NoError(err)
	defer it.Close()

	var lengths []int
	for p := range it.All() {
		lengths = append(lengths, p.Len())
		p.Release()
		if len(lengths) == 2 {
			break
		}
	}
	s.Equal([]int{size, 10}, lengths)

	s.NoError(w.Close())
	s.NoError(w.Close())
	_, err = w.Write([]byte("x"))
	s.ErrorIs(err, KindReset)
}

func (s *StreamTestSuite) TestWriterCloseSwallowsFlushError() {
	c := s.connect(testPort)
	w, err := c.IntoWriter()
	s.Require().NoError(err)

	_, err = w.Write([]byte("pending"))
	s.Require().NoError(err)

	// Closing the connection underneath makes the final flush fail.
	s.Require().NoError(s.inst.Stack().Close(w.c.h))
	err = w.Close()
	s.NotErrorIs(err, KindReset)
	s.ErrorIs(err, KindAlreadyDone)
	s.buffersBack()
}
