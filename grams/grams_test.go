package grams

import (
	"net"
	"testing"

	"github.com/soypat/w5500/hex"
	"github.com/soypat/w5500/rfc791"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEthernetVLAN(t *testing.T) {
	var f Ethernet
	copy(f[:], hex.Decode([]byte(`ffffffffffff 28d2449a2ff3 8100 a07b`)))
	assert.Equal(t, Broadcast, f.Destination())
	assert.Equal(t, net.HardwareAddr{0x28, 0xd2, 0x44, 0x9a, 0x2f, 0xf3}, f.Source())
	require.True(t, f.IsVLAN())
	tag := f.VLAN()
	assert.Equal(t, uint16(0x07b), tag.Identifier())
	assert.Equal(t, uint8(5), tag.Priority())
	assert.False(t, tag.CFI())
	assert.Equal(t, "dst: ff:ff:ff:ff:ff:ff, src: 28:d2:44:9a:2f:f3, etype: 8100 (VLAN)", f.String())

	f.Set().EtherType(EtherTypeIPv4)
	assert.Zero(t, f.VLAN())
	f.Set().Reset()
	assert.Equal(t, None, f.Source())
}

func TestICMPEcho(t *testing.T) {
	payload := []byte("abcdefghijklmnopqrstuvwabcdefghi")
	var m ICMP
	m.Set().Type(ICMPEchoRequest)
	m.Set().ID(0x0001)
	m.Set().Seq(0x0021)
	m.Set().Checksum(m.ComputeChecksum(payload))

	// Same message as captured from a ping on the wire.
	assert.Equal(t, hex.Decode([]byte(`08 00 4d 3a 00 01 00 21`)), m[:])
	assert.True(t, m.Valid(payload))
	assert.True(t, rfc791.Verify(append(m[:], payload...)))
	assert.False(t, m.Valid(payload[1:]))
	assert.Equal(t, "icmp type=8 id=1 seq=33", m.String())
}
