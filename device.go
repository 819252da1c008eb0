package w5500

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"tinygo.org/x/drivers"
)

// Resolver resolves host names to IPv4 addresses by sending queries
// through sock to server.
type Resolver interface {
	LookupHost(sock *Socket, server netip.Addr, hostname string) (netip.Addr, error)
}

// Lease is the network configuration handed out by a lease server.
type Lease struct {
	Addr    netip.Addr
	Subnet  netip.Addr
	Gateway netip.Addr
	DNS     netip.Addr
}

// Leaser acquires a network address lease through sock, which is a UDP
// socket bound to LeasePort.
type Leaser interface {
	Lease(sock *Socket, hostname string, mac net.HardwareAddr) (Lease, error)
}

// LeasePort is the client port lease requests are sent from.
const LeasePort = 68

// Device is a W5500 and its sockets. Only one Device should drive a
// given chip.
type Device struct {
	bus     *Bus
	mac     [6]byte
	sockets [NumSockets]Socket

	// next dynamic port and the value it wraps to.
	local uint16
	floor uint16

	addr, subnet, gateway, dns netip.Addr

	// configured name server, preferred over the derived one.
	staticDNS netip.Addr

	hostname     string
	leaseRetries int
	resolver     Resolver
	log          *slog.Logger
}

// New returns a Device on the chip selected by cs on spi. The chip is
// not touched until Begin.
func New(spi drivers.SPI, cs func(level bool), cfg Config) *Device {
	cfg.setDefaults()
	d := &Device{
		bus:          NewBus(spi, cs),
		local:        cfg.DynamicPort,
		floor:        cfg.DynamicPort,
		staticDNS:    cfg.DNS,
		hostname:     cfg.Hostname,
		leaseRetries: cfg.LeaseRetries,
		resolver:     cfg.Resolver,
		log:          cfg.Logger,
	}
	copy(d.mac[:], cfg.MAC)
	d.bus.PollDelay = cfg.PollDelay
	d.bus.PollLimit = cfg.PollLimit
	for i := range d.sockets {
		d.sockets[i] = Socket{dev: d, num: uint8(i)}
	}
	return d
}

// Bus returns the register transport of the device.
func (d *Device) Bus() *Bus { return d.bus }

// MAC returns the hardware address programmed on Begin.
func (d *Device) MAC() net.HardwareAddr {
	mac := d.mac
	return mac[:]
}

// DNS returns the name server address used by ConnectHost.
func (d *Device) DNS() netip.Addr { return d.dns }

// Gateway returns the gateway address last bound.
func (d *Device) Gateway() netip.Addr { return d.gateway }

// Begin resets the chip and configures it with addr and subnet. Invalid
// addresses configure the unspecified address. timeout is the chip's
// retransmission timeout; zero selects DefaultTimeout.
func (d *Device) Begin(addr, subnet netip.Addr, timeout time.Duration) error {
	for i := range d.sockets {
		d.sockets[i].proto = ProtoNone
	}
	if !addr.Is4() || !subnet.Is4() {
		addr, subnet = netip.IPv4Unspecified(), netip.IPv4Unspecified()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rtr := timeout / (100 * time.Microsecond)
	if rtr > 0xffff {
		rtr = 0xffff
	}
	err := d.bus.Write8(regMR, commonBlock, mrRST)
	if err != nil {
		return err
	}
	if err = d.bus.Write(regSHAR, commonBlock, d.mac[:]); err != nil {
		return err
	}
	if err = d.bus.Write16(regRTR, commonBlock, uint16(rtr)); err != nil {
		return err
	}
	d.info("begin", slog.String("mac", d.MAC().String()), slog.Int("rtr", int(rtr)))
	return d.Bind(addr, subnet, netip.Addr{})
}

// BeginConfig begins with the static addresses of cfg.
func (d *Device) BeginConfig(cfg Config) error {
	if err := d.Begin(cfg.Addr, cfg.Subnet, cfg.Timeout); err != nil {
		return err
	}
	if cfg.Gateway.IsValid() {
		if err := d.Bind(d.addr, d.subnet, cfg.Gateway); err != nil {
			return err
		}
	}
	if cfg.DNS.IsValid() {
		d.dns = cfg.DNS
	}
	return nil
}

// BeginLease begins without an address and binds the configuration
// obtained by leaser.
func (d *Device) BeginLease(leaser Leaser, timeout time.Duration) error {
	if err := d.Begin(netip.Addr{}, netip.Addr{}, timeout); err != nil {
		return err
	}
	sock, err := d.Socket(ProtoUDP, LeasePort, 0)
	if err != nil {
		return err
	}
	defer sock.Close()
	var lerr error
	for retry := 0; retry < d.leaseRetries; retry++ {
		var l Lease
		l, lerr = leaser.Lease(sock, d.hostname, d.MAC())
		if lerr != nil {
			d.debug("lease", slog.Int("retry", retry), slog.String("err", lerr.Error()))
			continue
		}
		if err = d.Bind(l.Addr, l.Subnet, l.Gateway); err != nil {
			return err
		}
		if l.DNS.IsValid() {
			d.dns = l.DNS
		}
		d.info("lease", slog.String("addr", l.Addr.String()), slog.String("dns", d.dns.String()))
		return nil
	}
	return lerr
}

// Bind sets the chip's address, subnet mask and gateway. An invalid
// gateway is taken to be the first host of the network, a.b.c.1, which
// then also becomes the DNS server unless Config.DNS was set.
func (d *Device) Bind(addr, subnet, gateway netip.Addr) error {
	if !addr.Is4() || !subnet.Is4() {
		return ErrInvalidArgument
	}
	if !gateway.Is4() {
		gateway = defaultRouter(addr)
		d.dns = gateway
		if d.staticDNS.IsValid() {
			d.dns = d.staticDNS
		}
	}
	ip, mask, gw := addr.As4(), subnet.As4(), gateway.As4()
	err := d.bus.Write(regSIPR, commonBlock, ip[:])
	if err != nil {
		return err
	}
	if err = d.bus.Write(regSUBR, commonBlock, mask[:]); err != nil {
		return err
	}
	if err = d.bus.Write(regGAR, commonBlock, gw[:]); err != nil {
		return err
	}
	d.addr, d.subnet, d.gateway = addr, subnet, gateway
	d.debug("bind", slog.String("addr", addr.String()), slog.String("subnet", subnet.String()), slog.String("gateway", gateway.String()))
	return nil
}

// Addr reads back the address and subnet mask configured on the chip.
func (d *Device) Addr() (addr, subnet netip.Addr, err error) {
	var ip, mask [4]byte
	if err = d.bus.Read(regSIPR, commonBlock, ip[:]); err != nil {
		return addr, subnet, err
	}
	if err = d.bus.Read(regSUBR, commonBlock, mask[:]); err != nil {
		return addr, subnet, err
	}
	return netip.AddrFrom4(ip), netip.AddrFrom4(mask), nil
}

// Version reads the chip version register. A W5500 reports 4.
func (d *Device) Version() (uint8, error) {
	return d.bus.Read8(regVERSIONR, commonBlock)
}

// Socket opens the first free socket. It returns ErrNoSocket if all are
// in use. If Open fails the slot stays free and the error is returned.
func (d *Device) Socket(proto Protocol, port uint16, flags Flags) (*Socket, error) {
	for i := range d.sockets {
		s := &d.sockets[i]
		if s.proto != ProtoNone {
			continue
		}
		if err := s.Open(proto, port, flags); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, ErrNoSocket
}

// End closes every open socket.
func (d *Device) End() error {
	var errs []error
	for i := range d.sockets {
		err := d.sockets[i].Close()
		if err != nil && !errors.Is(err, ErrNotOpen) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// nextPort hands out dynamic ports in increasing order, wrapping to the
// floor after the last port.
func (d *Device) nextPort() uint16 {
	port := d.local
	d.local++
	if d.local == 0 {
		d.local = d.floor
	}
	return port
}

// validPeer reports whether addr:port can be connected to: a unicast
// IPv4 address that is neither unspecified nor a broadcast of the bound
// network, and a port other than 0 and 65535.
func (d *Device) validPeer(addr netip.Addr, port uint16) bool {
	if !addr.Is4() || port == 0 || port == 0xffff {
		return false
	}
	ip := addr.As4()
	if ip[0] == 0 || ip == [4]byte{255, 255, 255, 255} || addr.IsMulticast() {
		return false
	}
	if d.addr.Is4() && d.subnet.Is4() && d.subnet != netip.IPv4Unspecified() {
		mask := d.subnet.As4()
		local := d.addr.As4()
		var bcast [4]byte
		for i := range bcast {
			bcast[i] = local[i]&mask[i] | ^mask[i]
		}
		if ip == bcast {
			return false
		}
	}
	return true
}

func defaultRouter(addr netip.Addr) netip.Addr {
	ip := addr.As4()
	ip[3] = 1
	return netip.AddrFrom4(ip)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}
