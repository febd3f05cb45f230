package mem

import (
	"bytes"
	"fmt"
	"math"
	"runtime"
	"time"

	"csp-stack/stack"
)

const (
	identDateLayout = "Jan _2 2006"
	identTimeLayout = "15:04:05"
)

func (s *Stack) ServiceHandler(h stack.Conn, p *stack.Packet) {
	c, ok := h.(*conn)
	if !ok || c == nil || c.s != s || p == nil {
		s.BufferFree(p)
		return
	}

	port := c.DstPort()
	switch port {
	case stack.PortPing:
		// Echo the packet as is.
		s.reply(c, p)
		return

	case stack.PortCMP:
		payload := p.Payload()
		if len(payload) < 2 || payload[0] != stack.CMPRequest || payload[1] != stack.CMPIdent {
			s.debug(stack.DebugProtocol, "unsupported cmp request", "conn", c.in, "length", p.Length)
			s.BufferFree(p)
			return
		}
		s.replyWith(c, p, stack.AppendIdent(nil, s.ident()))

	case stack.PortPS:
		s.replyWith(c, p, []byte(fmt.Sprintf("goroutines: %d\n", runtime.NumGoroutine())))

	case stack.PortMemFree:
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		s.replyWith(c, p, stack.AppendUint32(nil, clampUint32(ms.HeapIdle-ms.HeapReleased)))

	case stack.PortBufFree:
		// The request buffer is still held, so count it as free.
		s.replyWith(c, p, stack.AppendUint32(nil, uint32(s.pool.remaining()+1)))

	case stack.PortUptime:
		up := s.clock.Since(s.bootTime) / time.Second
		s.replyWith(c, p, stack.AppendUint32(nil, uint32(up)))

	case stack.PortReboot:
		magic, ok := stack.ParseUint32(p.Payload())
		s.BufferFree(p)
		if !ok || magic != stack.RebootMagic {
			s.debug(stack.DebugWarn, "reboot request with bad magic", "conn", c.in)
			return
		}
		s.debug(stack.DebugInfo, "reboot requested", "conn", c.in)
		if s.cfg.RebootHook != nil {
			s.cfg.RebootHook()
		}

	default:
		s.debug(stack.DebugProtocol, "no service on port", "port", port)
		s.BufferFree(p)
	}
}

// replyWith reuses p for the reply payload b.
func (s *Stack) replyWith(c *conn, p *stack.Packet, b []byte) {
	p.Length = uint16(copy(p.Data, b))
	s.reply(c, p)
}

func (s *Stack) reply(c *conn, p *stack.Packet) {
	if err := s.Send(c, p, defaultSendTimeout); err != nil {
		s.debug(stack.DebugWarn, "service reply failed", "conn", c.in, "error", err)
		s.BufferFree(p)
	}
}

func (s *Stack) ident() stack.Ident {
	return stack.Ident{
		Hostname: s.cfg.Hostname,
		Model:    s.cfg.Model,
		Revision: s.cfg.Revision,
		Date:     s.bootTime.Format(identDateLayout),
		Time:     s.bootTime.Format(identTimeLayout),
	}
}

func clampUint32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// Ping sends size patterned bytes to the ping port of addr and waits for the
// echo.
func (s *Stack) Ping(addr uint16, timeout time.Duration, size int, opts uint32) (time.Duration, error) {
	if size <= 0 || size > s.cfg.BufferDataSize {
		return 0, stack.EINVAL
	}

	start := s.clock.Now()

	h := s.Connect(stack.PrioNormal, addr, stack.PortPing, timeout, opts)
	if h == nil {
		return 0, stack.ETX
	}
	defer s.Close(h)

	p := s.BufferGet(size)
	if p == nil {
		return 0, stack.ENOBUFS
	}
	p.Length = uint16(copy(p.Data, pingPattern(size)))

	if err := s.Send(h, p, timeout); err != nil {
		s.BufferFree(p)
		return 0, err
	}

	reply := s.Read(h, timeout)
	if reply == nil {
		s.debug(stack.DebugWarn, "ping timed out", "addr", addr)
		return 0, stack.ETIMEDOUT
	}
	defer s.BufferFree(reply)

	if int(reply.Length) != size || !bytes.Equal(reply.Payload(), pingPattern(size)) {
		s.debug(stack.DebugWarn, "ping reply mismatch", "addr", addr, "length", reply.Length)
		return 0, stack.EINVAL
	}

	rtt := s.clock.Since(start)
	s.debug(stack.DebugInfo, "ping reply", "addr", addr, "size", size, "rtt", rtt)
	return rtt, nil
}

func pingPattern(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
