package stack

import "log/slog"

// AnyPort binds a socket to every port that has no dedicated socket.
const AnyPort uint8 = 255

// MaxPort is the highest port a connection can use.
const MaxPort uint8 = 254

// Service ports handled by ServiceHandler.
const (
	PortCMP     uint8 = 0
	PortPing    uint8 = 1
	PortPS      uint8 = 2
	PortMemFree uint8 = 3
	PortReboot  uint8 = 4
	PortBufFree uint8 = 5
	PortUptime  uint8 = 6
)

// RebootMagic must be the payload of a reboot request.
const RebootMagic uint32 = 0x80078007

// Socket and connection options.
const (
	OptNone uint32 = 0
)

// NoVia routes directly to the destination.
const NoVia uint16 = 0xFFFF

// Config mirrors csp_conf_t.
type Config struct {
	Address  uint16
	Hostname string
	Model    string
	Revision string

	ConnMax         int
	ConnQueueLength int
	FifoLength      int
	PortMaxBind     uint8
	RDPMaxWindow    int
	Buffers         int
	BufferDataSize  int
	ConnDefaultOpts uint32

	Logger   *slog.Logger
	Channels []DebugChannel

	// RebootHook runs when a valid reboot request arrives. Nil ignores them.
	RebootHook func()
}

// DebugChannel is one of the stack's debug output channels.
// Channels are independent: enabling Info does not enable Error.
type DebugChannel int

const (
	DebugError DebugChannel = iota
	DebugWarn
	DebugInfo
	DebugBuffer
	DebugPacket
	DebugProtocol
	DebugLock
)

var debugChannelNames = [...]string{"error", "warn", "info", "buffer", "packet", "protocol", "lock"}

func (c DebugChannel) String() string {
	if c < 0 || int(c) >= len(debugChannelNames) {
		return "unknown"
	}
	return debugChannelNames[c]
}

// AllDebugChannels lists every channel in severity order.
func AllDebugChannels() []DebugChannel {
	return []DebugChannel{DebugError, DebugWarn, DebugInfo, DebugBuffer, DebugPacket, DebugProtocol, DebugLock}
}

// DebugChannelsUpTo returns all channels up to and including c.
func DebugChannelsUpTo(c DebugChannel) []DebugChannel {
	all := AllDebugChannels()
	if c < 0 {
		return nil
	}
	if int(c) >= len(all) {
		return all
	}
	return all[:c+1]
}

// ParseDebugChannel is the inverse of DebugChannel.String.
func ParseDebugChannel(s string) (DebugChannel, bool) {
	for i, name := range debugChannelNames {
		if name == s {
			return DebugChannel(i), true
		}
	}
	return 0, false
}

// Level is the slog level a channel logs at.
func (c DebugChannel) Level() slog.Level {
	switch c {
	case DebugError:
		return slog.LevelError
	case DebugWarn:
		return slog.LevelWarn
	case DebugInfo:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// Tables is a diagnostic snapshot of the stack's state.
type Tables struct {
	Conns      []ConnInfo  `json:"conns" yaml:"conns"`
	Interfaces []IfaceInfo `json:"interfaces" yaml:"interfaces"`
	Routes     []RouteInfo `json:"routes" yaml:"routes"`
}

type ConnInfo struct {
	Src    uint16 `json:"src" yaml:"src"`
	SPort  uint8  `json:"sport" yaml:"sport"`
	Dst    uint16 `json:"dst" yaml:"dst"`
	DPort  uint8  `json:"dport" yaml:"dport"`
	Queued int    `json:"queued" yaml:"queued"`
	State  string `json:"state" yaml:"state"`
}

type IfaceInfo struct {
	Name    string `json:"name" yaml:"name"`
	TX      uint64 `json:"tx" yaml:"tx"`
	RX      uint64 `json:"rx" yaml:"rx"`
	TXError uint64 `json:"tx_error" yaml:"tx_error"`
	RXError uint64 `json:"rx_error" yaml:"rx_error"`
	Drop    uint64 `json:"drop" yaml:"drop"`
	TXBytes uint64 `json:"tx_bytes" yaml:"tx_bytes"`
	RXBytes uint64 `json:"rx_bytes" yaml:"rx_bytes"`
}

type RouteInfo struct {
	Address   uint16 `json:"address" yaml:"address"`
	Netmask   int    `json:"netmask" yaml:"netmask"`
	Interface string `json:"interface" yaml:"interface"`
	Via       uint16 `json:"via" yaml:"via"`
}
