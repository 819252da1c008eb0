package rfc791

import (
	"testing"

	"github.com/soypat/w5500/hex"
	"github.com/stretchr/testify/assert"
)

// IPv4 header from a capture, checksum 0xb861 at offset 10.
var ipHeader = hex.Decode([]byte(`45 00 00 73 00 00 40 00 40 11 b8 61 c0 a8 00 01 c0 a8 00 c7`))

func TestSum(t *testing.T) {
	hdr := append([]byte(nil), ipHeader...)
	hdr[10], hdr[11] = 0, 0
	assert.Equal(t, uint16(0xb861), Sum(hdr))
	assert.True(t, Verify(ipHeader))

	ipHeader := append([]byte(nil), ipHeader...)
	ipHeader[15] ^= 1
	assert.False(t, Verify(ipHeader))
}

func TestChecksumSplitWrites(t *testing.T) {
	data := []byte{0x08, 0x00, 0x00, 0x00, 0x12, 0x34, 0x00, 0x01, 'p', 'i', 'n', 'g', '!'}
	want := Sum(data)
	for split := 0; split <= len(data); split++ {
		c := New()
		c.Write(data[:split])
		c.Write(data[split:])
		assert.Equal(t, want, c.Sum(), "split at %d", split)
		c.Reset()
		assert.Equal(t, uint16(0xffff), c.Sum())
	}
}

func TestSumOddLengthPads(t *testing.T) {
	assert.Equal(t, Sum([]byte{0xab, 0xcd, 0xef, 0x00}), Sum([]byte{0xab, 0xcd, 0xef}))
}
