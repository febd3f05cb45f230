// Package stack defines the boundary between the csp abstraction layer and the
// packet stack it binds against.
//
// Everything here is deliberately C-shaped: handles are opaque, a nil handle
// means "nothing", and buffers are owned by whoever holds the pointer. The csp
// package is what turns this into safe ownership.
package stack

import (
	"time"
)

// Conn is an opaque connection handle owned by the stack.
type Conn interface {
	SrcAddr() uint16
	SrcPort() uint8
	DstAddr() uint16
	DstPort() uint8
}

// Socket is an opaque listening handle owned by the stack.
type Socket interface {
	Port() uint8
}

// Stack is the set of calls the csp package makes into the underlying stack.
//
// Ownership rules follow the C API: a *Packet returned by Read or BufferGet is
// owned by the caller until it is passed to Send (successfully) or BufferFree.
// When Send fails the caller still owns the packet.
type Stack interface {
	// Init configures the stack. It is called exactly once.
	Init(cfg Config) error
	// StartRouter starts the background router/dispatch task.
	StartRouter() error

	Socket(opts uint32) Socket
	Bind(s Socket, port uint8) error
	Listen(s Socket, backlog int) error
	// Accept returns nil when no connection arrived before timeout.
	Accept(s Socket, timeout time.Duration) Conn
	CloseSocket(s Socket) error

	// Connect returns nil when the connection could not be opened.
	Connect(prio Priority, dst uint16, dport uint8, timeout time.Duration, opts uint32) Conn
	Close(c Conn) error

	// Read returns nil on timeout or when the peer closed the connection.
	Read(c Conn, timeout time.Duration) *Packet
	Send(c Conn, p *Packet, timeout time.Duration) error

	// BufferGet returns nil when the pool is exhausted or size is too large.
	BufferGet(size int) *Packet
	BufferFree(p *Packet)
	BufferDataSize() int

	// ServiceHandler consumes p, which was read from a service port connection.
	ServiceHandler(c Conn, p *Packet)
	Ping(addr uint16, timeout time.Duration, size int, opts uint32) (time.Duration, error)

	AddInterface(iface Interface) error
	RouteSet(addr uint16, netmask int, iface Interface, via uint16) error

	Tables() Tables
}

// Pool is the slice of the buffer pool exposed to interface drivers.
type Pool interface {
	Get(size int) *Packet
	Free(p *Packet)
}

// RxFunc hands an inbound packet to the stack. Ownership passes with it.
type RxFunc func(p *Packet)

// Interface is a network interface driver.
//
// Interfaces are never removed once added. The stack keeps them for the
// lifetime of the process.
type Interface interface {
	Name() string
	// Attach is called once when the interface is registered.
	Attach(rx RxFunc, pool Pool) error
	// Transmit sends p towards via. On success the interface owns p.
	Transmit(p *Packet, via uint16) error
	Stats() *IfaceStats
}
