package csp

import "csp-stack/stack"

// NoVia sends routed packets straight to their destination.
const NoVia = stack.NoVia

// Route is an entry of the routing table. A Netmask of -1 covers every bit
// of the address.
type Route struct {
	Address uint16
	Netmask int
	Via     uint16
}

// NewRoute is a host route to address.
func NewRoute(address uint16) Route {
	return Route{Address: address, Netmask: -1, Via: NoVia}
}

// DefaultRoute matches every address.
func DefaultRoute() Route {
	return Route{Address: 0, Netmask: 0, Via: NoVia}
}

func (r Route) WithNetmask(netmask int) Route    { r.Netmask = netmask; return r }
func (r Route) WithNetmaskBits(bits uint8) Route { r.Netmask = int(bits); return r }
func (r Route) WithVia(via uint16) Route         { r.Via = via; return r }
