package w5500

import (
	"encoding/binary"
	"runtime"
	"sync"
	"time"

	"github.com/soypat/w5500/lax"
	"tinygo.org/x/drivers"
)

var _log = lax.Log

// DefaultPollDelay is the pause between command completion polls.
const DefaultPollDelay = 10 * time.Microsecond

// Bus frames register transactions to the chip over SPI. Every
// transaction holds the bus lock with chip select asserted for its
// whole duration so transactions from different sockets never interleave.
type Bus struct {
	mu  sync.Mutex
	spi drivers.SPI
	// cs drives the active low chip select line.
	cs  func(level bool)
	hdr [3]byte
	// PollDelay is the pause between Issue polls.
	PollDelay time.Duration
	// PollLimit bounds every polling loop. Zero polls until the
	// condition is met, which is what hardware wants.
	PollLimit int
}

// NewBus returns a Bus on spi. cs is called with false to select the
// chip and true to release it.
func NewBus(spi drivers.SPI, cs func(level bool)) *Bus {
	return &Bus{spi: spi, cs: cs, PollDelay: DefaultPollDelay}
}

// Write writes data to the register at addr in the block selected by ctl.
func (b *Bus) Write(addr uint16, ctl uint8, data []byte) error {
	b.acquire()
	defer b.release()
	b.header(addr, ctl|ctlWrite|ctlVDM)
	_log("w", b.hdr[:], data)
	err := b.spi.Tx(b.hdr[:], nil)
	if err == nil && len(data) > 0 {
		err = b.spi.Tx(data, nil)
	}
	return err
}

// Read fills buf with the registers starting at addr in the block selected by ctl.
func (b *Bus) Read(addr uint16, ctl uint8, buf []byte) error {
	b.acquire()
	defer b.release()
	b.header(addr, ctl|ctlRead|ctlVDM)
	err := b.spi.Tx(b.hdr[:], nil)
	if err == nil && len(buf) > 0 {
		err = b.spi.Tx(nil, buf)
	}
	_log("r", b.hdr[:], buf)
	return err
}

func (b *Bus) Write8(addr uint16, ctl, v uint8) error {
	buf := [1]byte{v}
	return b.Write(addr, ctl, buf[:])
}

func (b *Bus) Read8(addr uint16, ctl uint8) (uint8, error) {
	var v [1]byte
	err := b.Read(addr, ctl, v[:])
	return v[0], err
}

// Write16 writes v big-endian, the chip's byte order.
func (b *Bus) Write16(addr uint16, ctl uint8, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return b.Write(addr, ctl, buf[:])
}

func (b *Bus) Read16(addr uint16, ctl uint8) (uint16, error) {
	var buf [2]byte
	err := b.Read(addr, ctl, buf[:])
	return binary.BigEndian.Uint16(buf[:]), err
}

// Issue writes a command byte and waits for the chip to acknowledge it
// by clearing the register.
func (b *Bus) Issue(addr uint16, ctl, cmd uint8) error {
	if err := b.Write8(addr, ctl, cmd); err != nil {
		return err
	}
	return b.poll(b.PollDelay, func() (bool, error) {
		v, err := b.Read8(addr, ctl)
		return v == 0, err
	})
}

// poll calls cond until it reports done, pausing between calls. A zero
// pause yields to the scheduler instead of sleeping.
func (b *Bus) poll(pause time.Duration, cond func() (done bool, err error)) error {
	for i := 0; ; i++ {
		done, err := cond()
		if err != nil || done {
			return err
		}
		if b.PollLimit > 0 && i >= b.PollLimit {
			return ErrFault
		}
		if pause > 0 {
			time.Sleep(pause)
		} else {
			runtime.Gosched()
		}
	}
}

func (b *Bus) header(addr uint16, ctl uint8) {
	b.hdr[0] = byte(addr >> 8)
	b.hdr[1] = byte(addr)
	b.hdr[2] = ctl
}

func (b *Bus) acquire() {
	b.mu.Lock()
	b.cs(false)
}

func (b *Bus) release() {
	b.cs(true)
	b.mu.Unlock()
}
