package stack

import "sync/atomic"

// IfaceStats are the per-interface counters shown by the interface list.
type IfaceStats struct {
	TX      atomic.Uint64
	RX      atomic.Uint64
	TXError atomic.Uint64
	RXError atomic.Uint64
	Drop    atomic.Uint64
	TXBytes atomic.Uint64
	RXBytes atomic.Uint64
}

func (s *IfaceStats) Info(name string) IfaceInfo {
	return IfaceInfo{
		Name:    name,
		TX:      s.TX.Load(),
		RX:      s.RX.Load(),
		TXError: s.TXError.Load(),
		RXError: s.RXError.Load(),
		Drop:    s.Drop.Load(),
		TXBytes: s.TXBytes.Load(),
		RXBytes: s.RXBytes.Load(),
	}
}

// IsServicePort reports whether port is served by the stack itself.
func IsServicePort(port uint8) bool {
	switch port {
	case PortCMP, PortPing, PortPS, PortMemFree, PortReboot, PortBufFree, PortUptime:
		return true
	}
	return false
}
