package w5500

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/soypat/w5500/lax"
)

// Protocol is the wire protocol a socket is opened with. Its value is
// the protocol field of the socket mode register.
type Protocol uint8

const (
	ProtoNone Protocol = iota
	ProtoTCP
	ProtoUDP
	ProtoIPRaw
	ProtoMACRaw
)

func (p Protocol) String() string {
	switch p {
	case ProtoNone:
		return "none"
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoIPRaw:
		return "IPRAW"
	case ProtoMACRaw:
		return "MACRAW"
	}
	return "invalid"
}

// openStatus is the status the chip reports after OPEN in protocol p.
func (p Protocol) openStatus() Status {
	switch p {
	case ProtoTCP:
		return srINIT
	case ProtoUDP:
		return srUDP
	case ProtoIPRaw:
		return srIPRAW
	case ProtoMACRaw:
		return srMACRAW
	}
	return srCLOSED
}

func (p Protocol) connectionless() bool {
	return p == ProtoUDP || p == ProtoIPRaw || p == ProtoMACRaw
}

// Flags are the upper mode register bits set on Open.
type Flags uint8

const (
	FlagUnicastBlock   Flags = 0x10
	FlagNoDelayedAck   Flags = 0x20
	FlagBroadcastBlock Flags = 0x40
	FlagMulticast      Flags = 0x80
)

// Socket is one of the chip's hardware sockets. Sockets are owned by
// their Device and handed out by Device.Socket; the zero protocol marks a
// free slot.
type Socket struct {
	dev   *Device
	num   uint8
	proto Protocol
	port  uint16

	peerMAC  [6]byte
	peerIP   [4]byte
	peerPort uint16

	// Write offset into the TX buffer and bytes queued since the last send.
	txOffset uint16
	txLen    uint16
}

// Num returns the hardware index of the socket.
func (s *Socket) Num() uint8 { return s.num }

// Protocol returns the protocol the socket is open with or ProtoNone.
func (s *Socket) Protocol() Protocol { return s.proto }

// LocalPort returns the port the socket was opened on.
func (s *Socket) LocalPort() uint16 { return s.port }

// RemoteAddr returns the peer recorded by Accept or the sender of the
// last datagram received.
func (s *Socket) RemoteAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(s.peerIP), s.peerPort)
}

// RemoteMAC returns the peer hardware address recorded by Accept.
func (s *Socket) RemoteMAC() net.HardwareAddr {
	mac := s.peerMAC
	return mac[:]
}

func (s *Socket) String() string {
	return lax.Strcat("socket ", lax.U16toa(uint16(s.num)), " ", s.proto.String(), " :", lax.U16toa(s.port))
}

// Status reads the socket status register.
func (s *Socket) Status() (Status, error) {
	v, err := s.read8(regSnSR)
	return Status(v), err
}

// Open sets the socket's protocol and local port and opens it on the
// chip. A zero port on TCP and UDP sockets takes the next dynamic port.
// For raw IP sockets port is the IP protocol number to filter on.
func (s *Socket) Open(proto Protocol, port uint16, flags Flags) error {
	if s.proto != ProtoNone {
		return ErrInUse
	}
	if proto == ProtoNone || proto > ProtoMACRaw {
		return ErrInvalidArgument
	}
	err := s.write8(regSnMR, uint8(proto)|uint8(flags)&mrFlagMask)
	if err != nil {
		return err
	}
	switch proto {
	case ProtoIPRaw:
		err = s.write8(regSnPROTO, uint8(port))
	case ProtoTCP, ProtoUDP:
		if port == 0 {
			port = s.dev.nextPort()
		}
		err = s.write16(regSnPORT, port)
	}
	if err != nil {
		return err
	}
	s.port = port
	if err = s.issue(crOPEN); err != nil {
		return err
	}
	status, err := s.Status()
	if err != nil {
		return err
	}
	if status != proto.openStatus() {
		s.dev.debug("open:bad status", slog.Int("sn", int(s.num)), slog.String("status", status.String()))
		return ErrProtocol
	}
	s.txOffset, err = s.read16(regSnTXWR)
	if err != nil {
		return err
	}
	s.txLen = 0
	s.proto = proto
	s.dev.debug("open", slog.Int("sn", int(s.num)), slog.String("proto", proto.String()), slog.Int("port", int(port)))
	return nil
}

// Listen puts an open TCP socket in passive mode.
func (s *Socket) Listen() error {
	if s.proto != ProtoTCP {
		return ErrProtocol
	}
	status, err := s.Status()
	if err != nil {
		return err
	}
	if status != srINIT {
		if err = s.issue(crOPEN); err != nil {
			return err
		}
	}
	if err = s.issue(crLISTEN); err != nil {
		return err
	}
	status, err = s.Status()
	if err != nil {
		return err
	}
	if status != srLISTEN {
		return ErrFault
	}
	return nil
}

// Accept completes a passive open once a client has connected. It
// returns ErrFault while the socket is still listening.
func (s *Socket) Accept() error {
	if s.proto != ProtoTCP {
		return ErrProtocol
	}
	status, err := s.Status()
	if err != nil {
		return err
	}
	if status == srLISTEN || status != srESTABLISHED {
		return ErrFault
	}
	bus, ctl := s.dev.bus, socketBlock(s.num)
	if err = bus.Read(regSnDHAR, ctl, s.peerMAC[:]); err != nil {
		return err
	}
	if err = bus.Read(regSnDIPR, ctl, s.peerIP[:]); err != nil {
		return err
	}
	if s.peerPort, err = s.read16(regSnDPORT); err != nil {
		return err
	}
	s.dev.debug("accept", slog.Int("sn", int(s.num)), slog.String("peer", s.RemoteAddr().String()))
	return s.setupTx()
}

// Connect starts an active open to addr:port. Completion is reported
// by IsConnected.
func (s *Socket) Connect(addr netip.Addr, port uint16) error {
	if s.proto != ProtoTCP {
		return ErrProtocol
	}
	if !s.dev.validPeer(addr, port) {
		return ErrInvalidArgument
	}
	ip := addr.As4()
	if err := s.dev.bus.Write(regSnDIPR, socketBlock(s.num), ip[:]); err != nil {
		return err
	}
	if err := s.write16(regSnDPORT, port); err != nil {
		return err
	}
	return s.issue(crCONNECT)
}

// ConnectHost resolves hostname with the device's Resolver over a
// transient UDP socket and connects to the resolved address.
func (s *Socket) ConnectHost(hostname string, port uint16) error {
	if s.proto != ProtoTCP {
		return ErrProtocol
	}
	r := s.dev.resolver
	if r == nil {
		return ErrPermission
	}
	udp, err := s.dev.Socket(ProtoUDP, 0, 0)
	if err != nil {
		s.dev.debug("resolve:no socket", slog.String("err", err.Error()))
		return ErrPermission
	}
	addr, err := r.LookupHost(udp, s.dev.dns, hostname)
	if cerr := udp.Close(); cerr != nil {
		s.dev.debug("resolve:close", slog.Int("sn", int(udp.num)), slog.String("err", cerr.Error()))
	}
	if err != nil {
		s.dev.debug("resolve", slog.String("host", hostname), slog.String("err", err.Error()))
		return ErrInvalidArgument
	}
	return s.Connect(addr, port)
}

// IsConnected polls for completion of Connect. It returns ErrTimeout if
// the chip gave up on the handshake.
func (s *Socket) IsConnected() (bool, error) {
	if s.proto != ProtoTCP {
		return false, ErrProtocol
	}
	ir, err := s.read8(regSnIR)
	if err != nil {
		return false, err
	}
	if ir&irTIMEOUT != 0 {
		return false, ErrTimeout
	}
	if ir&irCON == 0 {
		return false, nil
	}
	return true, s.setupTx()
}

// Disconnect closes the TCP connection and drops unread data so it does
// not leak into the socket's next use.
func (s *Socket) Disconnect() error {
	if s.proto != ProtoTCP {
		return ErrProtocol
	}
	if err := s.issue(crDISCON); err != nil {
		return err
	}
	return s.discard()
}

// Close releases the socket on the chip and frees the slot.
func (s *Socket) Close() error {
	if s.proto == ProtoNone {
		return ErrNotOpen
	}
	if err := s.issue(crCLOSE); err != nil {
		return err
	}
	if err := s.write8(regSnIR, irAll); err != nil {
		return err
	}
	s.dev.debug("close", slog.Int("sn", int(s.num)))
	s.proto = ProtoNone
	return nil
}

// SetDatagram sets the destination of the next datagram sent on a
// connectionless socket.
func (s *Socket) SetDatagram(addr netip.Addr, port uint16) error {
	if !s.proto.connectionless() {
		return ErrProtocol
	}
	if !addr.Is4() {
		return ErrInvalidArgument
	}
	ip := addr.As4()
	if err := s.dev.bus.Write(regSnDIPR, socketBlock(s.num), ip[:]); err != nil {
		return err
	}
	if err := s.write16(regSnDPORT, port); err != nil {
		return err
	}
	return s.setupTx()
}

func (s *Socket) issue(cmd uint8) error {
	return s.dev.bus.Issue(regSnCR, socketBlock(s.num), cmd)
}

func (s *Socket) read8(reg uint16) (uint8, error) {
	return s.dev.bus.Read8(reg, socketBlock(s.num))
}

func (s *Socket) write8(reg uint16, v uint8) error {
	return s.dev.bus.Write8(reg, socketBlock(s.num), v)
}

func (s *Socket) read16(reg uint16) (uint16, error) {
	return s.dev.bus.Read16(reg, socketBlock(s.num))
}

func (s *Socket) write16(reg uint16, v uint16) error {
	return s.dev.bus.Write16(reg, socketBlock(s.num), v)
}
