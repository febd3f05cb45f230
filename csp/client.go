package csp

import (
	"fmt"
	"log/slog"
	"time"

	"csp-stack/stack"
)

const (
	defaultPingTimeout = time.Second
	defaultPingSize    = 100
)

// Client opens connections and queries the services of other nodes. It holds
// no state of its own.
type Client struct {
	s      stack.Stack
	cfg    *Config
	logger *slog.Logger
}

// Ping probes addr with a 100 byte packet and a one second timeout.
func (c Client) Ping(addr uint16) (time.Duration, error) {
	return c.PingTimeoutSize(addr, defaultPingTimeout, defaultPingSize)
}

// PingTimeoutSize returns the round trip time of a size byte probe.
func (c Client) PingTimeoutSize(addr uint16, timeout time.Duration, size int) (time.Duration, error) {
	rtt, err := c.s.Ping(addr, timeout, size, c.cfg.ConnDefaultOpts)
	if err != nil {
		return 0, fromStack(err, fmt.Sprintf("pinging %d", addr))
	}
	return rtt, nil
}

func (c Client) Connect(addr uint16, port uint8, prio Priority, timeout time.Duration) (*Conn, error) {
	h := c.s.Connect(prio, addr, port, timeout, c.cfg.ConnDefaultOpts)
	if h == nil {
		return nil, newError(KindConnectFailed, "connecting to %d:%d", addr, port)
	}
	return newConn(c.s, c.cfg, c.logger, h), nil
}

func (c Client) ConnectAddr(to ConnAddress, prio Priority, timeout time.Duration) (*Conn, error) {
	return c.Connect(to.Address, to.Port, prio, timeout)
}

// Transaction sends req to addr:port and waits up to timeout for a single
// reply packet.
func (c Client) Transaction(addr uint16, port uint8, req []byte, timeout time.Duration) ([]byte, error) {
	conn, err := c.Connect(addr, port, PrioNormal, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SendPacket(req); err != nil {
		return nil, err
	}

	p, ok := conn.ReadPacket(timeout)
	if !ok {
		return nil, newError(KindTimedOut, "waiting for reply from %d:%d", addr, port)
	}
	defer p.Release()

	return append([]byte(nil), p.Bytes()...), nil
}

func (c Client) uint32Query(addr uint16, port uint8, timeout time.Duration) (uint32, error) {
	reply, err := c.Transaction(addr, port, []byte{0}, timeout)
	if err != nil {
		return 0, err
	}
	v, ok := stack.ParseUint32(reply)
	if !ok {
		return 0, newError(KindInvalidArgument, "short reply of %d bytes from %d:%d", len(reply), addr, port)
	}
	return v, nil
}

// Uptime asks addr how long it has been running.
func (c Client) Uptime(addr uint16, timeout time.Duration) (time.Duration, error) {
	secs, err := c.uint32Query(addr, PortUptime, timeout)
	return time.Duration(secs) * time.Second, err
}

// BufFree asks addr how many free buffers its pool has.
func (c Client) BufFree(addr uint16, timeout time.Duration) (uint32, error) {
	return c.uint32Query(addr, PortBufFree, timeout)
}

// MemFree asks addr how much memory it has free, in bytes.
func (c Client) MemFree(addr uint16, timeout time.Duration) (uint32, error) {
	return c.uint32Query(addr, PortMemFree, timeout)
}

// PS returns the process listing of addr.
func (c Client) PS(addr uint16, timeout time.Duration) (string, error) {
	reply, err := c.Transaction(addr, PortPS, []byte{0}, timeout)
	return string(reply), err
}

// Ident returns the identification of addr.
func (c Client) Ident(addr uint16, timeout time.Duration) (stack.Ident, error) {
	reply, err := c.Transaction(addr, PortCMP, stack.IdentRequest(), timeout)
	if err != nil {
		return stack.Ident{}, err
	}
	id, ok := stack.ParseIdent(reply)
	if !ok {
		return stack.Ident{}, newError(KindInvalidArgument, "malformed ident reply from %d", addr)
	}
	return id, nil
}

// Reboot asks addr to reboot. No reply is expected.
func (c Client) Reboot(addr uint16, timeout time.Duration) error {
	conn, err := c.Connect(addr, PortReboot, PrioNormal, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.SendPacket(stack.AppendUint32(nil, stack.RebootMagic))
}
