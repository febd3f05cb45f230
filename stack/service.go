package stack

import (
	"bytes"
	"encoding/binary"
)

// CMP message types and codes.
const (
	CMPRequest uint8 = 0x00
	CMPReply   uint8 = 0xFF
	CMPIdent   uint8 = 1
)

// Field widths of an ident reply, NUL padded.
const (
	IdentHostnameLen = 20
	IdentModelLen    = 30
	IdentRevisionLen = 20
	IdentDateLen     = 12
	IdentTimeLen     = 9

	identLen = 2 + IdentHostnameLen + IdentModelLen + IdentRevisionLen + IdentDateLen + IdentTimeLen
)

// Ident is the node identification returned on the CMP port.
type Ident struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	Model    string `json:"model" yaml:"model"`
	Revision string `json:"revision" yaml:"revision"`
	Date     string `json:"date" yaml:"date"`
	Time     string `json:"time" yaml:"time"`
}

// IdentRequest is the payload asking a node for its Ident.
func IdentRequest() []byte { return []byte{CMPRequest, CMPIdent} }

// AppendIdent appends the reply encoding of id to b.
func AppendIdent(b []byte, id Ident) []byte {
	b = append(b, CMPReply, CMPIdent)
	b = appendField(b, id.Hostname, IdentHostnameLen)
	b = appendField(b, id.Model, IdentModelLen)
	b = appendField(b, id.Revision, IdentRevisionLen)
	b = appendField(b, id.Date, IdentDateLen)
	b = appendField(b, id.Time, IdentTimeLen)
	return b
}

// ParseIdent decodes an ident reply.
func ParseIdent(b []byte) (Ident, bool) {
	if len(b) < identLen || b[0] != CMPReply || b[1] != CMPIdent {
		return Ident{}, false
	}
	b = b[2:]

	var id Ident
	id.Hostname, b = field(b, IdentHostnameLen)
	id.Model, b = field(b, IdentModelLen)
	id.Revision, b = field(b, IdentRevisionLen)
	id.Date, b = field(b, IdentDateLen)
	id.Time, _ = field(b, IdentTimeLen)
	return id, true
}

func appendField(b []byte, s string, n int) []byte {
	// The last byte is always NUL.
	if len(s) > n-1 {
		s = s[:n-1]
	}
	b = append(b, s...)
	return append(b, make([]byte, n-len(s))...)
}

func field(b []byte, n int) (string, []byte) {
	f := b[:n]
	if i := bytes.IndexByte(f, 0); i >= 0 {
		f = f[:i]
	}
	return string(f), b[n:]
}

// AppendUint32 appends v in network byte order, the encoding of every
// numeric service reply.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// ParseUint32 decodes a numeric service reply.
func ParseUint32(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
