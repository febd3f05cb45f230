package mem

import (
	"testing"

	"csp-stack/stack"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIface struct {
	name  string
	stats stack.IfaceStats
}

func (f *fakeIface) Name() string                          { return f.name }
func (f *fakeIface) Attach(stack.RxFunc, stack.Pool) error { return nil }
func (f *fakeIface) Transmit(*stack.Packet, uint16) error  { return nil }
func (f *fakeIface) Stats() *stack.IfaceStats              { return &f.stats }

func TestRouteLongestPrefix(t *testing.T) {
	var rt routeTable
	def, sub, host := &fakeIface{name: "def"}, &fakeIface{name: "sub"}, &fakeIface{name: "host"}

	require.NoError(t, rt.set(0, 0, def, stack.NoVia))
	require.NoError(t, rt.set(0x0100, 8, sub, 7))
	require.NoError(t, rt.set(0x0105, -1, host, stack.NoVia))

	r := rt.lookup(0x0105)
	require.NotNil(t, r)
	assert.Equal(t, "host", r.iface.Name())

	r = rt.lookup(0x01AA)
	require.NotNil(t, r)
	assert.Equal(t, "sub", r.iface.Name())
	assert.Equal(t, uint16(7), r.via)

	r = rt.lookup(0x2000)
	require.NotNil(t, r)
	assert.Equal(t, "def", r.iface.Name())
}

func TestRouteNoMatch(t *testing.T) {
	var rt routeTable
	require.NoError(t, rt.set(10, -1, &fakeIface{name: "a"}, stack.NoVia))
	assert.Nil(t, rt.lookup(11))
}

func TestRouteReplace(t *testing.T) {
	var rt routeTable
	require.NoError(t, rt.set(10, 16, &fakeIface{name: "a"}, stack.NoVia))
	require.NoError(t, rt.set(10, 16, &fakeIface{name: "b"}, stack.NoVia))

	routes := rt.snapshot()
	require.Len(t, routes, 1)
	assert.Equal(t, "b", routes[0].Interface)
}

func TestRouteInvalid(t *testing.T) {
	var rt routeTable
	assert.ErrorIs(t, rt.set(10, 17, &fakeIface{name: "a"}, stack.NoVia), stack.EINVAL)
	assert.ErrorIs(t, rt.set(10, 8, nil, stack.NoVia), stack.EINVAL)
}
