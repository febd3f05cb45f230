package link

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type PipeTestSuite struct {
	suite.Suite
	C1, C2 io.ReadWriteCloser
}

func TestPipeTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTestSuite))
}

func (s *PipeTestSuite) SetupTest() {
	s.C1, s.C2 = Pipe(20)
}

func (s *PipeTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
}

func (s *PipeTestSuite) TestReadWrite() {
	data := []byte("Hello, World!")

	n, err := s.C1.Write(data)
	s.Require().NoError(err)
	s.Equal(len(data), n)

	buf := make([]byte, 10)
	n, err = s.C2.Read(buf)
	s.Require().NoError(err)
	s.Equal(data[:n], buf[:n])

	rest, err := io.ReadAll(io.LimitReader(s.C2, int64(len(data)-n)))
	s.Require().NoError(err)
	s.Equal(data[n:], rest)
}

func (s *PipeTestSuite) TestLargeWrite() {
	// Larger than the buffer: Write must wait for the reader.
	data := bytes.Repeat([]byte("0123456789"), 100)

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := s.C1.Write(data)
		s.NoError(err)
		s.Equal(len(data), n)
	}()

	got := make([]byte, len(data))
	_, err := io.ReadFull(s.C2, got)
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *PipeTestSuite) TestWriteRace() {
	data := []byte("ABCD")
	N := 10

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(N)
	for range N {
		go func() {
			defer wg.Done()
			_, err := s.C1.Write(data)
			s.NoError(err)
		}()
	}

	got := make([]byte, len(data)*N)
	_, err := io.ReadFull(s.C2, got)
	s.Require().NoError(err)

	// Writes are serialized, so every chunk arrives whole.
	for i := 0; i < len(got); i += len(data) {
		s.Equal(data, got[i:i+len(data)])
	}
}

func (s *PipeTestSuite) TestCloseDrainsThenEOF() {
	_, err := s.C1.Write([]byte("bye"))
	s.Require().NoError(err)
	s.Require().NoError(s.C1.Close())

	got, err := io.ReadAll(s.C2)
	s.NoError(err)
	s.Equal("bye", string(got))

	_, err = s.C2.Write([]byte("x"))
	s.ErrorIs(err, io.ErrClosedPipe)
}

func (s *PipeTestSuite) TestCloseUnblocksRead() {
	done := make(chan error)
	go func() {
		_, err := s.C2.Read(make([]byte, 1))
		done <- err
	}()

	s.Require().NoError(s.C1.Close())
	s.ErrorIs(<-done, io.EOF)
}
