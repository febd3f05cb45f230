package mem

import (
	"sort"
	"sync"

	"csp-stack/stack"
)

const addressBits = 16

type route struct {
	addr    uint16
	netmask int
	iface   stack.Interface
	via     uint16
}

func (r route) matches(addr uint16) bool {
	return prefix(r.addr, r.netmask) == prefix(addr, r.netmask)
}

func prefix(addr uint16, netmask int) uint16 {
	if netmask <= 0 {
		return 0
	}
	return addr & ^uint16(0xFFFF>>netmask)
}

// routeTable is a longest-prefix match table over 16-bit addresses.
type routeTable struct {
	mu     sync.RWMutex
	routes []route
}

// set adds or replaces the route for addr/netmask. A netmask of -1 means the
// full address width.
func (t *routeTable) set(addr uint16, netmask int, iface stack.Interface, via uint16) error {
	if netmask < 0 {
		netmask = addressBits
	}
	if netmask > addressBits || iface == nil {
		return stack.EINVAL
	}
	r := route{addr: prefix(addr, netmask), netmask: netmask, iface: iface, via: via}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.routes {
		if t.routes[i].addr == r.addr && t.routes[i].netmask == r.netmask {
			t.routes[i] = r
			return nil
		}
	}
	t.routes = append(t.routes, r)
	sort.SliceStable(t.routes, func(i, j int) bool {
		return t.routes[i].netmask > t.routes[j].netmask
	})
	return nil
}

func (t *routeTable) lookup(addr uint16) *route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.routes {
		if t.routes[i].matches(addr) {
			r := t.routes[i]
			return &r
		}
	}
	return nil
}

func (t *routeTable) snapshot() []stack.RouteInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]stack.RouteInfo, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, stack.RouteInfo{
			Address:   r.addr,
			Netmask:   r.netmask,
			Interface: r.iface.Name(),
			Via:       r.via,
		})
	}
	return out
}

func (s *Stack) AddInterface(iface stack.Interface) error {
	if iface == nil {
		return stack.EINVAL
	}

	s.mu.Lock()
	if !s.inited {
		s.mu.Unlock()
		return stack.EINVAL
	}
	for _, existing := range s.ifaces {
		if existing.Name() == iface.Name() {
			s.mu.Unlock()
			return stack.EALREADY
		}
	}
	s.ifaces = append(s.ifaces, iface)
	s.mu.Unlock()

	if err := iface.Attach(s.input, bufferPool{s}); err != nil {
		s.mu.Lock()
		s.ifaces = s.ifaces[:len(s.ifaces)-1]
		s.mu.Unlock()
		return err
	}

	s.debug(stack.DebugInfo, "interface added", "iface", iface.Name())
	return nil
}

func (s *Stack) RouteSet(addr uint16, netmask int, iface stack.Interface, via uint16) error {
	if err := s.routes.set(addr, netmask, iface, via); err != nil {
		return err
	}
	s.debug(stack.DebugInfo, "route set", "address", addr, "netmask", netmask, "iface", iface.Name(), "via", via)
	return nil
}
