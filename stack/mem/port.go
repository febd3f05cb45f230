package mem

import (
	"sync"

	"github.com/pkg/errors"
)

// portTable tracks which local ports are taken, both by bound sockets and by
// the ephemeral source ports of outgoing connections.
type portTable struct {
	table map[uint8]struct{}
	mu    sync.Mutex

	ephemeral  [2]uint8 // [start, end]
	rand       func() uint32
	maxRandTry uint
}

type ephemeralPortOptions struct {
	Range  [2]uint8 // [start, end]
	Rand   func() uint32
	MaxTry uint
}

func (o ephemeralPortOptions) validate() error {
	if o.Range[0] > o.Range[1] {
		return errors.Errorf("end(%d) must be greater or equal than start(%d)", o.Range[1], o.Range[0])
	}
	if o.Rand == nil {
		return errors.New("rand function must be provided")
	}
	return nil
}

func newPortTable(opts ephemeralPortOptions) *portTable {
	if err := opts.validate(); err != nil {
		panic(err)
	}

	return &portTable{
		table:      make(map[uint8]struct{}),
		ephemeral:  opts.Range,
		rand:       opts.Rand,
		maxRandTry: opts.MaxTry,
	}
}

// Occupy takes port. release gives it back; calling it more than once is harmless.
func (p *portTable) Occupy(port uint8) (ok bool, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.occupyLocked(port)
}

// OccupyEphemeral picks a free port from the ephemeral range. Random picks
// are tried first, then the range is scanned.
func (p *portTable) OccupyEphemeral() (ok bool, port uint8, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for try := uint(0); try < p.maxRandTry; try++ {
		port := p.selectEphemeral()
		if ok, release := p.occupyLocked(port); ok {
			return true, port, release
		}
	}

	for port := int(p.ephemeral[0]); port <= int(p.ephemeral[1]); port++ {
		if ok, release := p.occupyLocked(uint8(port)); ok {
			return true, uint8(port), release
		}
	}

	return false, 0, nil
}

func (p *portTable) occupyLocked(port uint8) (ok bool, release func()) {
	if _, found := p.table[port]; found {
		return false, nil
	}

	p.table[port] = struct{}{}

	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.table, port)
		})
	}

	return true, release
}

func (p *portTable) selectEphemeral() uint8 {
	gap := uint32(p.ephemeral[1]-p.ephemeral[0]) + 1
	return p.ephemeral[0] + uint8(p.rand()%gap)
}

func (p *portTable) inUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}
