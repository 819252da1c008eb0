package w5500

import (
	"encoding/binary"
	"net/netip"
)

// recvHeader is the packet info the chip prepends to every datagram in
// the RX buffer of a connectionless socket. Each protocol has its own
// layout.
type recvHeader interface {
	// Len is the size of the header in bytes.
	Len() int
	// Parse returns the sender and payload length encoded in h.
	Parse(h []byte) (from netip.AddrPort, size int)
}

// udpHeader: source IP [4], source port [2], payload length [2].
type udpHeader struct{}

func (udpHeader) Len() int { return 8 }

func (udpHeader) Parse(h []byte) (netip.AddrPort, int) {
	addr := netip.AddrFrom4([4]byte(h[0:4]))
	return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(h[4:6])), int(binary.BigEndian.Uint16(h[6:8]))
}

// ipRawHeader: source IP [4], payload length [2].
type ipRawHeader struct{}

func (ipRawHeader) Len() int { return 6 }

func (ipRawHeader) Parse(h []byte) (netip.AddrPort, int) {
	addr := netip.AddrFrom4([4]byte(h[0:4]))
	return netip.AddrPortFrom(addr, 0), int(binary.BigEndian.Uint16(h[4:6]))
}

// macRawHeader: frame length [2]. The sender is only known from the
// frame itself so the zero address is reported.
type macRawHeader struct{}

func (macRawHeader) Len() int { return 2 }

func (macRawHeader) Parse(h []byte) (netip.AddrPort, int) {
	return netip.AddrPortFrom(netip.IPv4Unspecified(), 0), int(binary.BigEndian.Uint16(h[0:2]))
}

func headerFor(p Protocol) recvHeader {
	switch p {
	case ProtoUDP:
		return udpHeader{}
	case ProtoIPRaw:
		return ipRawHeader{}
	case ProtoMACRaw:
		return macRawHeader{}
	}
	return nil
}

// Recv reads stream data from a TCP socket. It returns 0 without
// touching the buffer until the chip has flagged received data.
func (s *Socket) Recv(b []byte) (int, error) {
	if s.proto != ProtoTCP {
		return 0, ErrProtocol
	}
	if len(b) == 0 {
		return 0, nil
	}
	ir, err := s.read8(regSnIR)
	if err != nil {
		return 0, err
	}
	if ir&irRECV == 0 {
		return 0, nil
	}
	return s.Read(b)
}

// RecvFrom reads one datagram from a UDP, raw IP or raw MAC socket into
// b and returns its sender. A datagram longer than b is truncated and
// the rest of it dropped. With no datagram waiting it returns 0 and a nil
// error so callers can poll. The sender is remembered as RemoteAddr only
// when payload bytes were read.
func (s *Socket) RecvFrom(b []byte) (n int, from netip.AddrPort, err error) {
	h := headerFor(s.proto)
	if h == nil {
		return 0, from, ErrProtocol
	}
	if len(b) == 0 {
		return 0, from, nil
	}
	var buf [8]byte
	hdr := buf[:h.Len()]
	got, err := s.Read(hdr)
	if err != nil || got == 0 {
		return 0, from, err
	}
	if got != len(hdr) {
		return 0, from, ErrIO
	}
	from, size := h.Parse(hdr)
	toRead := min(size, len(b))
	for n < toRead {
		got, err = s.Read(b[n:toRead])
		n += got
		if err != nil {
			return n, from, err
		}
		if got == 0 {
			break
		}
	}
	if n == toRead {
		if err = s.skip(size - toRead); err != nil {
			return n, from, err
		}
	}
	if n > 0 {
		s.peerMAC = [6]byte{}
		s.peerIP = from.Addr().As4()
		s.peerPort = from.Port()
	}
	return n, from, nil
}
