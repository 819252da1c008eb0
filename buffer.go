package w5500

import (
	"errors"
	"net/netip"
)

// Available returns the number of received bytes waiting in the RX
// buffer. With nothing to read it returns ErrNotConnected if the socket
// is listening, closed or closed by the peer.
func (s *Socket) Available() (int, error) {
	size, err := s.stable16(regSnRXRSR)
	if err != nil || size != 0 {
		return int(size), err
	}
	status, err := s.Status()
	if err != nil {
		return 0, err
	}
	switch status {
	case srLISTEN, srCLOSED, srCLOSEWAIT:
		return 0, ErrNotConnected
	}
	return 0, nil
}

// Room returns the free space in the TX buffer.
func (s *Socket) Room() (int, error) {
	size, err := s.stable16(regSnTXFSR)
	return int(size), err
}

// stable16 reads a size register until two consecutive samples agree
// and the value is within the buffer, yielding between attempts. The
// chip updates these registers while they are read.
func (s *Socket) stable16(reg uint16) (size uint16, err error) {
	err = s.dev.bus.poll(0, func() (bool, error) {
		a, err := s.read16(reg)
		if err != nil {
			return false, err
		}
		b, err := s.read16(reg)
		if err != nil {
			return false, err
		}
		size = a
		return a == b && int16(a) >= 0 && a <= BufMax, nil
	})
	return size, err
}

// Read reads received bytes from the RX buffer into b, at most what is
// available, and acknowledges them to the chip. It is the raw stream
// read; Recv and RecvFrom add protocol framing.
func (s *Socket) Read(b []byte) (int, error) {
	if s.proto == ProtoNone {
		return 0, ErrNotOpen
	}
	n, err := s.Available()
	if err != nil {
		return 0, err
	}
	if len(b) > n {
		b = b[:n]
	}
	if len(b) == 0 {
		return 0, nil
	}
	ptr, err := s.read16(regSnRXRD)
	if err != nil {
		return 0, err
	}
	if err = s.dev.bus.Read(ptr, rxBlock(s.num), b); err != nil {
		return 0, err
	}
	if err = s.advanceRx(ptr + uint16(len(b))); err != nil {
		return 0, err
	}
	return len(b), nil
}

// skip drops n received bytes without reading them.
func (s *Socket) skip(n int) error {
	if n <= 0 {
		return nil
	}
	ptr, err := s.read16(regSnRXRD)
	if err != nil {
		return err
	}
	return s.advanceRx(ptr + uint16(n))
}

// discard drops everything currently in the RX buffer. A closed socket
// with nothing left to read is not an error.
func (s *Socket) discard() error {
	n, err := s.Available()
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	if err != nil || n == 0 {
		return err
	}
	return s.skip(n)
}

// advanceRx stores the RX read pointer. The pointer wraps with the
// register width, which the chip maps onto the ring.
func (s *Socket) advanceRx(ptr uint16) error {
	if err := s.write16(regSnRXRD, ptr); err != nil {
		return err
	}
	return s.issue(crRECV)
}

// devWrite copies b into the TX buffer at the tracked offset without
// sending it.
func (s *Socket) devWrite(b []byte) (int, error) {
	if len(b) > BufMax {
		b = b[:BufMax]
	}
	if len(b) == 0 {
		return 0, nil
	}
	if err := s.dev.bus.Write(s.txOffset, txBlock(s.num), b); err != nil {
		return 0, err
	}
	s.txOffset += uint16(len(b))
	s.txLen += uint16(len(b))
	return len(b), nil
}

// setupTx waits for room for a full burst and resets the TX baseline
// to the chip's write pointer.
func (s *Socket) setupTx() error {
	err := s.dev.bus.poll(0, func() (bool, error) {
		room, err := s.Room()
		return room >= MsgMax, err
	})
	if err != nil {
		return err
	}
	s.txOffset, err = s.read16(regSnTXWR)
	s.txLen = 0
	return err
}

// Write queues b for sending, flushing each time a full burst of
// MsgMax bytes is pending. Bytes left pending are sent by Flush.
func (s *Socket) Write(b []byte) (int, error) {
	if s.proto == ProtoNone {
		return 0, ErrNotOpen
	}
	if err := s.requireEstablished(); err != nil {
		return 0, err
	}
	n := 0
	for n < len(b) {
		if s.txLen >= MsgMax {
			if err := s.Flush(); err != nil {
				return n, err
			}
		}
		chunk := min(MsgMax-int(s.txLen), len(b)-n)
		w, err := s.devWrite(b[n : n+chunk])
		n += w
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush sends the pending bytes and waits for the chip to report the
// send done. It returns ErrTimeout if the chip timed out sending.
func (s *Socket) Flush() error {
	if s.txLen == 0 {
		return nil
	}
	if err := s.requireEstablished(); err != nil {
		return err
	}
	ptr, err := s.read16(regSnTXWR)
	if err != nil {
		return err
	}
	if err = s.write16(regSnTXWR, ptr+s.txLen); err != nil {
		return err
	}
	if err = s.issue(crSEND); err != nil {
		return err
	}
	var ir uint8
	err = s.dev.bus.poll(0, func() (bool, error) {
		var err error
		ir, err = s.read8(regSnIR)
		return ir&(irSENDOK|irTIMEOUT) != 0, err
	})
	if err != nil {
		return err
	}
	if err = s.write8(regSnIR, irSENDOK|irTIMEOUT); err != nil {
		return err
	}
	if err = s.setupTx(); err != nil {
		return err
	}
	if ir&irTIMEOUT != 0 {
		return ErrTimeout
	}
	return nil
}

func (s *Socket) requireEstablished() error {
	if s.proto != ProtoTCP {
		return nil
	}
	status, err := s.Status()
	if err != nil {
		return err
	}
	if status != srESTABLISHED {
		return ErrProtocol
	}
	return nil
}

// Send writes b and flushes it.
func (s *Socket) Send(b []byte) (int, error) {
	n, err := s.Write(b)
	if err != nil {
		return n, err
	}
	return n, s.Flush()
}

// SendTo sends b as a datagram to addr:port.
func (s *Socket) SendTo(b []byte, addr netip.Addr, port uint16) (int, error) {
	if err := s.SetDatagram(addr, port); err != nil {
		return 0, err
	}
	return s.Send(b)
}
