package csp

import (
	"fmt"

	"csp-stack/stack"
)

type Priority = stack.Priority

const (
	PrioCritical = stack.PrioCritical
	PrioHigh     = stack.PrioHigh
	PrioNormal   = stack.PrioNormal
	PrioLow      = stack.PrioLow
)

// ID is the header of a received packet.
type ID = stack.ID

// AnyPort binds a socket to every port without a dedicated socket.
const AnyPort = stack.AnyPort

// Built-in service ports. Connections to them never reach user handlers.
const (
	PortCMP     = stack.PortCMP
	PortPing    = stack.PortPing
	PortPS      = stack.PortPS
	PortMemFree = stack.PortMemFree
	PortReboot  = stack.PortReboot
	PortBufFree = stack.PortBufFree
	PortUptime  = stack.PortUptime
)

// ConnAddress is one endpoint of a connection.
type ConnAddress struct {
	Address uint16
	Port    uint8
}

func NewConnAddress(address uint16, port uint8) ConnAddress {
	return ConnAddress{Address: address, Port: port}
}

func (a ConnAddress) IsServicePort() bool { return stack.IsServicePort(a.Port) }

func (a ConnAddress) String() string {
	if a.Port == AnyPort {
		return fmt.Sprintf("%d:any", a.Address)
	}
	return fmt.Sprintf("%d:%d", a.Address, a.Port)
}
