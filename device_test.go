package w5500

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/w5500/internal/chiptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginProgramsChip(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}
	d, chip := newTestDevice(t, Config{MAC: mac})
	s, err := d.Socket(ProtoUDP, 0, 0)
	require.NoError(t, err)

	err = d.Begin(netip.MustParseAddr("10.1.2.3"), netip.MustParseAddr("255.255.0.0"), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ProtoNone, s.Protocol(), "Begin frees every socket")
	assert.Equal(t, []byte(mac), chip.Common[chiptest.SHAR:chiptest.SHAR+6])
	assert.Equal(t, []byte{0x03, 0xE8}, chip.Common[chiptest.RTR:chiptest.RTR+2])
	assert.Equal(t, []byte{10, 1, 2, 1}, chip.Common[chiptest.GAR:chiptest.GAR+4])
	assert.Equal(t, mac, d.MAC())

	addr, subnet, err := d.Addr()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), addr)
	assert.Equal(t, netip.MustParseAddr("255.255.0.0"), subnet)

	v, err := d.Version()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), v)
}

func TestBeginDefaultTimeout(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	require.NoError(t, d.Begin(netip.Addr{}, netip.Addr{}, 0))
	assert.Equal(t, []byte{0x07, 0xD0}, chip.Common[chiptest.RTR:chiptest.RTR+2])

	addr, _, err := d.Addr()
	require.NoError(t, err)
	assert.Equal(t, netip.IPv4Unspecified(), addr, "invalid address configures zero")
}

func TestBindDerivesGateway(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), d.Gateway())
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), d.DNS())
	assert.Equal(t, []byte{192, 168, 1, 1}, chip.Common[chiptest.GAR:chiptest.GAR+4])
	assert.Equal(t, []byte{255, 255, 255, 0}, chip.Common[chiptest.SUBR:chiptest.SUBR+4])

	assert.ErrorIs(t, d.Bind(netip.Addr{}, netip.MustParseAddr("255.0.0.0"), netip.Addr{}), ErrInvalidArgument)
}

func TestConfiguredDNSSurvivesBind(t *testing.T) {
	d, _ := newTestDevice(t, Config{DNS: netip.MustParseAddr("9.9.9.9")})
	assert.Equal(t, netip.MustParseAddr("9.9.9.9"), d.DNS())
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), d.Gateway())

	require.NoError(t, d.Bind(netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("255.0.0.0"), netip.Addr{}))
	assert.Equal(t, netip.MustParseAddr("9.9.9.9"), d.DNS())
}

func TestBeginConfig(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	err := d.BeginConfig(Config{
		Addr:    netip.MustParseAddr("172.16.0.9"),
		Subnet:  netip.MustParseAddr("255.255.255.0"),
		Gateway: netip.MustParseAddr("172.16.0.254"),
		DNS:     netip.MustParseAddr("1.1.1.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{172, 16, 0, 254}, chip.Common[chiptest.GAR:chiptest.GAR+4])
	assert.Equal(t, []byte{172, 16, 0, 9}, chip.Common[chiptest.SIPR:chiptest.SIPR+4])
	assert.Equal(t, netip.MustParseAddr("1.1.1.1"), d.DNS())
}

func TestSocketExhaustion(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	for i := 0; i < NumSockets; i++ {
		s, err := d.Socket(ProtoUDP, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), s.Num())
	}
	_, err := d.Socket(ProtoTCP, 0, 0)
	assert.ErrorIs(t, err, ErrNoSocket)

	require.NoError(t, d.End())
	for i := range d.sockets {
		assert.Equal(t, ProtoNone, d.sockets[i].Protocol())
		cmds := chip.Sockets[i].Commands()
		assert.Equal(t, byte(chiptest.CmdClose), cmds[len(cmds)-1])
	}
	// End on a device with nothing open is a no-op.
	require.NoError(t, d.End())

	s, err := d.Socket(ProtoTCP, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, s.Num())
}

type fakeLeaser struct {
	fails    int
	calls    int
	hostname string
	mac      net.HardwareAddr
	port     uint16
	lease    Lease
}

func (l *fakeLeaser) Lease(sock *Socket, hostname string, mac net.HardwareAddr) (Lease, error) {
	l.calls++
	l.hostname, l.mac, l.port = hostname, mac, sock.LocalPort()
	if l.calls <= l.fails {
		return Lease{}, errors.New("no offer")
	}
	return l.lease, nil
}

func TestBeginLease(t *testing.T) {
	d, chip := newTestDevice(t, Config{Hostname: "sensor-7"})
	l := &fakeLeaser{fails: 2, lease: Lease{
		Addr:    netip.MustParseAddr("10.0.0.42"),
		Subnet:  netip.MustParseAddr("255.255.255.0"),
		Gateway: netip.MustParseAddr("10.0.0.254"),
		DNS:     netip.MustParseAddr("10.0.0.53"),
	}}
	require.NoError(t, d.BeginLease(l, 0))
	assert.Equal(t, 3, l.calls)
	assert.Equal(t, "sensor-7", l.hostname)
	assert.Equal(t, uint16(LeasePort), l.port)
	assert.Equal(t, DefaultMAC, l.mac)

	addr, _, err := d.Addr()
	require.NoError(t, err)
	assert.Equal(t, l.lease.Addr, addr)
	assert.Equal(t, []byte{10, 0, 0, 254}, chip.Common[chiptest.GAR:chiptest.GAR+4])
	assert.Equal(t, l.lease.DNS, d.DNS())
	assert.Equal(t, ProtoNone, d.sockets[0].Protocol(), "lease socket closed")
}

func TestBeginLeaseGivesUp(t *testing.T) {
	d, _ := newTestDevice(t, Config{LeaseRetries: 2})
	l := &fakeLeaser{fails: 5}
	err := d.BeginLease(l, 0)
	assert.EqualError(t, err, "no offer")
	assert.Equal(t, 2, l.calls)
	for i := range d.sockets {
		assert.Equal(t, ProtoNone, d.sockets[i].Protocol())
	}
}

func TestDeviceLogs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d, _ := newTestDevice(t, Config{Logger: log})
	_, err := d.Socket(ProtoUDP, 5000, 0)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "msg=begin")
	assert.Contains(t, out, "msg=open")
	assert.Contains(t, out, "port=5000")
}
