package output

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"csp-stack/stack"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleTables() stack.Tables {
	return stack.Tables{
		Conns:      []stack.ConnInfo{{Src: 1, SPort: 10, Dst: 1, DPort: 30, State: "open"}},
		Interfaces: []stack.IfaceInfo{{Name: "LOOP", TX: 4, RX: 4}},
		Routes:     []stack.RouteInfo{{Address: 2, Netmask: 16, Interface: "GND", Via: stack.NoVia}},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": Table, "TABLE": Table, "json": JSON, "Yaml": YAML} {
		f, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sampleTables(), nil))

	var got stack.Tables
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleTables(), got)
	assert.Contains(t, buf.String(), `"interface": "GND"`)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	id := stack.Ident{Hostname: "obc", Model: "mem", Revision: "v1", Date: "Oct 19 2026", Time: "10:00:00"}
	require.NoError(t, Write(&buf, YAML, id, nil))

	assert.Contains(t, buf.String(), "hostname: obc\n")

	var got stack.Ident
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, id, got)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Table, sampleTables().Interfaces, nil))
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "LOOP")

	buf.Reset()
	require.NoError(t, Write(&buf, Table, []stack.ConnInfo{}, nil))
	assert.Equal(t, "No entries.\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, Table, stack.Ident{Hostname: "obc"}, nil))
	assert.Contains(t, buf.String(), "Hostname:")

	buf.Reset()
	require.NoError(t, Write(&buf, Table, nil, func(w io.Writer) error {
		_, err := io.WriteString(w, "custom\n")
		return err
	}))
	assert.Equal(t, "custom\n", buf.String())
}
