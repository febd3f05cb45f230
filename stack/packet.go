package stack

import "fmt"

type Priority uint8

const (
	PrioCritical Priority = 0
	PrioHigh     Priority = 1
	PrioNormal   Priority = 2
	PrioLow      Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PrioCritical:
		return "critical"
	case PrioHigh:
		return "high"
	case PrioNormal:
		return "normal"
	case PrioLow:
		return "low"
	}
	return fmt.Sprintf("prio(%d)", uint8(p))
}

// Packet flags.
const (
	FlagCRC32 uint8 = 1 << 0
	FlagRDP   uint8 = 1 << 1
	FlagXTEA  uint8 = 1 << 2
	FlagHMAC  uint8 = 1 << 3
	// FlagClose marks a zero-length control packet telling the peer the
	// sending side closed its end of the connection.
	FlagClose uint8 = 1 << 7
)

// ID is the packet header.
type ID struct {
	Prio  Priority
	Flags uint8
	Src   uint16
	Dst   uint16
	DPort uint8
	SPort uint8
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d -> %d:%d (%s, flags=%#02x)",
		id.Src, id.SPort, id.Dst, id.DPort, id.Prio, id.Flags)
}

// Packet is a pool buffer. Data always has the pool's full data size as its
// length; Length is how much of it is payload.
type Packet struct {
	ID     ID
	Length uint16
	Data   []byte

	// Owned by the pool implementation.
	Pooled bool
	Index  int
}

// Payload returns Data[:Length], bounded by the buffer size.
func (p *Packet) Payload() []byte {
	n := min(int(p.Length), len(p.Data))
	return p.Data[:n]
}
