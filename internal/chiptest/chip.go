// Package chiptest simulates the SPI register interface of a W5500 so the
// driver can be exercised without hardware.
//
// The simulation works at the byte level: it decodes the 3 byte frame
// header clocked in after chip select, serves reads from and stores writes
// to an in-memory register map, and applies command side effects when chip
// select is released. Only the behavior the driver observes is modeled.
package chiptest

import (
	"encoding/binary"
	"errors"
)

const (
	NumSockets = 8
	BufSize    = 2048
)

// Socket register offsets.
const (
	SnMR    = 0x00
	SnCR    = 0x01
	SnIR    = 0x02
	SnSR    = 0x03
	SnPORT  = 0x04
	SnDHAR  = 0x06
	SnDIPR  = 0x0C
	SnDPORT = 0x10
	SnPROTO = 0x14
	SnTXFSR = 0x20
	SnTXRD  = 0x22
	SnTXWR  = 0x24
	SnRXRSR = 0x26
	SnRXRD  = 0x28
	SnRXWR  = 0x2A
)

// Common register offsets.
const (
	MR       = 0x00
	GAR      = 0x01
	SUBR     = 0x05
	SHAR     = 0x09
	SIPR     = 0x0F
	RTR      = 0x19
	VERSIONR = 0x39
)

// Status values.
const (
	StatusClosed      = 0x00
	StatusInit        = 0x13
	StatusListen      = 0x14
	StatusEstablished = 0x17
	StatusCloseWait   = 0x1C
	StatusUDP         = 0x22
	StatusIPRaw       = 0x32
	StatusMACRaw      = 0x42
)

// Interrupt flags.
const (
	IntCon     = 0x01
	IntDiscon  = 0x02
	IntRecv    = 0x04
	IntTimeout = 0x08
	IntSendOK  = 0x10
)

// Commands.
const (
	CmdOpen    = 0x01
	CmdListen  = 0x02
	CmdConnect = 0x04
	CmdDiscon  = 0x08
	CmdClose   = 0x10
	CmdSend    = 0x20
	CmdRecv    = 0x40
)

// ErrNotSelected is returned by SPI transfers clocked without chip select.
var ErrNotSelected = errors.New("chiptest: transfer without chip select")

// Socket is the memory of one hardware socket.
type Socket struct {
	Reg [0x30]byte
	TX  [BufSize]byte
	RX  [BufSize]byte

	// FailOpen makes OPEN leave the socket CLOSED.
	FailOpen bool
	// SendTimeout makes SEND raise the timeout flag instead of SEND_OK.
	SendTimeout bool
	// ConnectTimeout makes CONNECT raise the timeout flag.
	ConnectTimeout bool
	// HoldCommand keeps Sn_CR nonzero for this many reads after a command.
	HoldCommand int

	hold     int
	commands []byte
	reads    map[uint16][]uint16
}

// Chip is a simulated W5500. It implements drivers.SPI; CS is the chip
// select line.
type Chip struct {
	Common  [0x40]byte
	Sockets [NumSockets]Socket

	// OnSend is called with the bytes the chip puts on the wire when a
	// socket executes SEND.
	OnSend func(sn int, data []byte)

	// Transactions counts completed chip select cycles.
	Transactions int
	// Writes counts completed write transactions.
	Writes int

	selected bool
	hdr      [3]byte
	nhdr     int
	idx      int
	write    bool
	override []byte
	touched  [NumSockets]bool
	resetReq bool
}

// New returns a chip in its power-on state.
func New() *Chip {
	c := &Chip{}
	c.reset()
	return c
}

func (c *Chip) reset() {
	c.Common = [0x40]byte{}
	c.Common[RTR], c.Common[RTR+1] = 0x07, 0xD0
	c.Common[VERSIONR] = 0x04
	for i := range c.Sockets {
		s := &c.Sockets[i]
		s.Reg = [0x30]byte{}
		s.hold = 0
		s.commands = nil
	}
}

// CS drives chip select. false selects the chip.
func (c *Chip) CS(level bool) {
	if !level {
		c.selected = true
		c.nhdr, c.idx = 0, 0
		c.override = nil
		return
	}
	if !c.selected {
		return
	}
	c.selected = false
	c.Transactions++
	if c.nhdr == 3 && c.write {
		c.Writes++
		c.commit()
	}
}

// Tx implements drivers.SPI.
func (c *Chip) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var in byte
		if i < len(w) {
			in = w[i]
		}
		out, err := c.Transfer(in)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = out
		}
	}
	return nil
}

// Transfer implements drivers.SPI.
func (c *Chip) Transfer(b byte) (byte, error) {
	if !c.selected {
		return 0, ErrNotSelected
	}
	if c.nhdr < 3 {
		c.hdr[c.nhdr] = b
		c.nhdr++
		if c.nhdr == 3 {
			c.start()
		}
		return 0, nil
	}
	addr := c.addr() + uint16(c.idx)
	if c.write {
		c.store(addr, b)
		c.idx++
		return 0, nil
	}
	var out byte
	if c.idx < len(c.override) {
		out = c.override[c.idx]
	} else {
		out = c.load(addr)
	}
	c.idx++
	return out, nil
}

func (c *Chip) addr() uint16 { return binary.BigEndian.Uint16(c.hdr[:2]) }
func (c *Chip) block() uint8 { return c.hdr[2] >> 3 }

// socket returns the socket index and block kind (1 register, 2 TX, 3 RX).
func (c *Chip) socket() (sn int, kind uint8) {
	bsb := c.block()
	return int(bsb >> 2), bsb & 0b11
}

func (c *Chip) start() {
	c.write = c.hdr[2]&0x04 != 0
	if c.write || c.block() == 0 {
		return
	}
	sn, kind := c.socket()
	if kind != 1 {
		return
	}
	s := &c.Sockets[sn]
	q := s.reads[c.addr()]
	if len(q) == 0 {
		return
	}
	c.override = binary.BigEndian.AppendUint16(nil, q[0])
	s.reads[c.addr()] = q[1:]
}

func (c *Chip) store(addr uint16, b byte) {
	if c.block() == 0 {
		if addr == MR && b&0x80 != 0 {
			c.resetReq = true
			return
		}
		if int(addr) < len(c.Common) {
			c.Common[addr] = b
		}
		return
	}
	sn, kind := c.socket()
	s := &c.Sockets[sn]
	switch kind {
	case 1:
		switch {
		case addr == SnIR:
			s.Reg[SnIR] &^= b
		case addr == SnCR:
			s.Reg[SnCR] = b
			c.touched[sn] = true
		case int(addr) < len(s.Reg):
			s.Reg[addr] = b
		}
	case 2:
		s.TX[int(addr)%BufSize] = b
	case 3:
		s.RX[int(addr)%BufSize] = b
	}
}

func (c *Chip) load(addr uint16) byte {
	if c.block() == 0 {
		if int(addr) < len(c.Common) {
			return c.Common[addr]
		}
		return 0
	}
	sn, kind := c.socket()
	s := &c.Sockets[sn]
	switch kind {
	case 1:
		switch addr {
		case SnCR:
			v := s.Reg[SnCR]
			if s.hold > 0 {
				s.hold--
				if s.hold == 0 {
					s.Reg[SnCR] = 0
				}
			}
			return v
		case SnTXFSR, SnTXFSR + 1:
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], s.freeSize())
			return buf[addr-SnTXFSR]
		case SnRXRSR, SnRXRSR + 1:
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], s.RecvSize())
			return buf[addr-SnRXRSR]
		}
		if int(addr) < len(s.Reg) {
			return s.Reg[addr]
		}
	case 2:
		return s.TX[int(addr)%BufSize]
	case 3:
		return s.RX[int(addr)%BufSize]
	}
	return 0
}

func (c *Chip) commit() {
	if c.resetReq {
		c.resetReq = false
		c.reset()
	}
	for sn := range c.touched {
		if !c.touched[sn] {
			continue
		}
		c.touched[sn] = false
		c.execute(sn)
	}
}

func (c *Chip) execute(sn int) {
	s := &c.Sockets[sn]
	cmd := s.Reg[SnCR]
	s.commands = append(s.commands, cmd)
	switch cmd {
	case CmdOpen:
		if s.FailOpen {
			s.Reg[SnSR] = StatusClosed
			break
		}
		switch s.Reg[SnMR] & 0x0F {
		case 1:
			s.Reg[SnSR] = StatusInit
		case 2:
			s.Reg[SnSR] = StatusUDP
		case 3:
			s.Reg[SnSR] = StatusIPRaw
		case 4:
			s.Reg[SnSR] = StatusMACRaw
		}
	case CmdListen:
		if s.Reg[SnSR] == StatusInit {
			s.Reg[SnSR] = StatusListen
		}
	case CmdConnect:
		if s.ConnectTimeout {
			s.Reg[SnIR] |= IntTimeout
			s.Reg[SnSR] = StatusClosed
			break
		}
		if s.Reg[SnSR] == StatusInit {
			s.Reg[SnSR] = StatusEstablished
			s.Reg[SnIR] |= IntCon
		}
	case CmdDiscon:
		s.Reg[SnSR] = StatusClosed
		s.Reg[SnIR] |= IntDiscon
	case CmdClose:
		s.Reg[SnSR] = StatusClosed
	case CmdSend:
		rd, wr := s.Reg16(SnTXRD), s.Reg16(SnTXWR)
		data := make([]byte, wr-rd)
		for i := range data {
			data[i] = s.TX[(int(rd)+i)%BufSize]
		}
		s.SetReg16(SnTXRD, wr)
		if s.SendTimeout {
			s.Reg[SnIR] |= IntTimeout
		} else {
			s.Reg[SnIR] |= IntSendOK
		}
		if c.OnSend != nil {
			c.OnSend(sn, data)
		}
	case CmdRecv:
		if s.RecvSize() == 0 {
			s.Reg[SnIR] &^= IntRecv
		}
	}
	if s.HoldCommand > 0 {
		s.hold = s.HoldCommand
		return
	}
	s.Reg[SnCR] = 0
}

// Reg16 returns a big-endian socket register.
func (s *Socket) Reg16(off int) uint16 {
	return binary.BigEndian.Uint16(s.Reg[off : off+2])
}

// SetReg16 sets a big-endian socket register.
func (s *Socket) SetReg16(off int, v uint16) {
	binary.BigEndian.PutUint16(s.Reg[off:off+2], v)
}

// RecvSize is the value the chip reports in Sn_RX_RSR.
func (s *Socket) RecvSize() uint16 { return s.Reg16(SnRXWR) - s.Reg16(SnRXRD) }

func (s *Socket) freeSize() uint16 { return BufSize - (s.Reg16(SnTXWR) - s.Reg16(SnTXRD)) }

// Commands returns every command executed by the socket in order.
func (s *Socket) Commands() []byte { return s.commands }

// QueueReads makes the next reads of the 16 bit register at off return
// values in order before falling back to the register contents.
func (s *Socket) QueueReads(off uint16, values ...uint16) {
	if s.reads == nil {
		s.reads = make(map[uint16][]uint16)
	}
	s.reads[off] = append(s.reads[off], values...)
}

// Inject appends data to the socket's RX ring, as the chip does when a
// packet arrives, and raises the receive flag.
func (s *Socket) Inject(data []byte) {
	wr := s.Reg16(SnRXWR)
	for i, b := range data {
		s.RX[(int(wr)+i)%BufSize] = b
	}
	s.SetReg16(SnRXWR, wr+uint16(len(data)))
	s.Reg[SnIR] |= IntRecv
}

// InjectUDP queues a datagram from ip:port with the chip's 8 byte header.
func (s *Socket) InjectUDP(ip [4]byte, port uint16, payload []byte) {
	hdr := make([]byte, 8, 8+len(payload))
	copy(hdr, ip[:])
	binary.BigEndian.PutUint16(hdr[4:], port)
	binary.BigEndian.PutUint16(hdr[6:], uint16(len(payload)))
	s.Inject(append(hdr, payload...))
}

// InjectIPRaw queues a raw IP payload from ip with the chip's 6 byte header.
func (s *Socket) InjectIPRaw(ip [4]byte, payload []byte) {
	hdr := make([]byte, 6, 6+len(payload))
	copy(hdr, ip[:])
	binary.BigEndian.PutUint16(hdr[4:], uint16(len(payload)))
	s.Inject(append(hdr, payload...))
}

// InjectMACRaw queues an ethernet frame with the chip's 2 byte header.
func (s *Socket) InjectMACRaw(frame []byte) {
	hdr := make([]byte, 2, 2+len(frame))
	binary.BigEndian.PutUint16(hdr, uint16(len(frame)))
	s.Inject(append(hdr, frame...))
}

// Establish simulates a remote peer completing a TCP handshake.
func (s *Socket) Establish(mac [6]byte, ip [4]byte, port uint16) {
	copy(s.Reg[SnDHAR:], mac[:])
	copy(s.Reg[SnDIPR:], ip[:])
	s.SetReg16(SnDPORT, port)
	s.Reg[SnSR] = StatusEstablished
	s.Reg[SnIR] |= IntCon
}
