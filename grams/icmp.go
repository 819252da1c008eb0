package grams

import (
	"encoding/binary"

	"github.com/soypat/w5500/lax"
	"github.com/soypat/w5500/rfc791"
)

// ICMP message types used by echo.
const (
	ICMPEchoReply   uint8 = 0
	ICMPEchoRequest uint8 = 8
)

// ICMP is the 8 byte header of an ICMP echo message. The payload follows
// it on the wire and is covered by the checksum.
type ICMP [8]byte

func (m *ICMP) Type() uint8      { return m[0] }
func (m *ICMP) Code() uint8      { return m[1] }
func (m *ICMP) Checksum() uint16 { return binary.BigEndian.Uint16(m[2:4]) }
func (m *ICMP) ID() uint16       { return binary.BigEndian.Uint16(m[4:6]) }
func (m *ICMP) Seq() uint16      { return binary.BigEndian.Uint16(m[6:8]) }

func (m *ICMP) String() string {
	return lax.Strcat("icmp type=", lax.U16toa(uint16(m.Type())), " id=", lax.U16toa(m.ID()), " seq=", lax.U16toa(m.Seq()))
}

// ComputeChecksum returns the checksum of the header and payload with
// the checksum field taken as zero.
func (m *ICMP) ComputeChecksum(payload []byte) uint16 {
	hdr := *m
	hdr.Set().Checksum(0)
	var c rfc791.Checksum
	c.Write(hdr[:])
	c.Write(payload)
	return c.Sum()
}

// Valid reports whether the stored checksum matches header and payload.
func (m *ICMP) Valid(payload []byte) bool {
	return m.ComputeChecksum(payload) == m.Checksum()
}

func (m *ICMP) Set() ICMPSet { return ICMPSet{m} }

type ICMPSet struct {
	m *ICMP
}

func (s ICMPSet) Reset()            { *s.m = ICMP{} }
func (s ICMPSet) Type(t uint8)      { s.m[0] = t }
func (s ICMPSet) Code(c uint8)      { s.m[1] = c }
func (s ICMPSet) Checksum(c uint16) { binary.BigEndian.PutUint16(s.m[2:4], c) }
func (s ICMPSet) ID(id uint16)      { binary.BigEndian.PutUint16(s.m[4:6], id) }
func (s ICMPSet) Seq(seq uint16)    { binary.BigEndian.PutUint16(s.m[6:8], seq) }
