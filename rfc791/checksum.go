// Package rfc791 implements the Internet checksum: the 16-bit ones'
// complement of the ones' complement sum of all 16-bit words of the data.
// It protects IPv4 headers and ICMP messages.
package rfc791

import "encoding/binary"

// Sum returns the checksum of data. Odd length data is padded with a
// zero byte. The checksum field inside data must be zero while summing.
func Sum(data []byte) uint16 {
	var c Checksum
	c.Write(data)
	return c.Sum()
}

// Verify reports whether data, checksum field included, sums to zero.
func Verify(data []byte) bool {
	return Sum(data) == 0
}

// New returns a streaming checksum.
func New() *Checksum {
	return &Checksum{}
}

// Checksum accumulates the Internet checksum over several writes. Writes
// need not be word aligned.
type Checksum struct {
	sum uint32
	// odd byte waiting for its pair.
	pending  byte
	havePend bool
}

// Write adds buff to the sum. It never fails.
func (c *Checksum) Write(buff []byte) (int, error) {
	n := len(buff)
	if c.havePend && len(buff) > 0 {
		c.sum += uint32(c.pending)<<8 | uint32(buff[0])
		buff = buff[1:]
		c.havePend = false
	}
	for len(buff) >= 2 {
		c.sum += uint32(binary.BigEndian.Uint16(buff))
		buff = buff[2:]
	}
	if len(buff) == 1 {
		c.pending = buff[0]
		c.havePend = true
	}
	return n, nil
}

// Sum folds the accumulated sum and returns its complement. Further
// writes continue from the folded value.
func (c *Checksum) Sum() uint16 {
	if c.havePend {
		c.sum += uint32(c.pending) << 8
		c.havePend = false
	}
	for c.sum > 0xffff {
		c.sum = c.sum&0xffff + c.sum>>16
	}
	return ^uint16(c.sum)
}

func (c *Checksum) Reset() {
	*c = Checksum{}
}
