package dns

import (
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/w5500"
	"github.com/soypat/w5500/internal/chiptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

var server = [4]byte{192, 168, 1, 1}

func newDevice(t *testing.T, r *Resolver) (*w5500.Device, *chiptest.Chip) {
	t.Helper()
	chip := chiptest.New()
	dev := w5500.New(chip, chip.CS, w5500.Config{PollDelay: time.Nanosecond, PollLimit: 64, Resolver: r})
	err := dev.Begin(netip.MustParseAddr("192.168.1.50"), netip.MustParseAddr("255.255.255.0"), 0)
	require.NoError(t, err)
	return dev, chip
}

// zone answers queries with the A records in it. edit may alter the
// response header and the sender before the reply is queued.
type zone struct {
	t       *testing.T
	chip    *chiptest.Chip
	records map[string][4]byte
	queries []dnsmessage.Question
	edit    func(h *dnsmessage.Header, src *[4]byte)
}

func (z *zone) serve(sn int, data []byte) {
	var msg dnsmessage.Message
	require.NoError(z.t, msg.Unpack(data))
	require.Len(z.t, msg.Questions, 1)
	q := msg.Questions[0]
	z.queries = append(z.queries, q)
	assert.True(z.t, msg.Header.RecursionDesired)
	assert.Equal(z.t, server[:], z.chip.Sockets[sn].Reg[chiptest.SnDIPR:chiptest.SnDIPR+4])
	assert.Equal(z.t, uint16(Port), z.chip.Sockets[sn].Reg16(chiptest.SnDPORT))

	h := dnsmessage.Header{ID: msg.Header.ID, Response: true, RecursionAvailable: true}
	ip, ok := z.records[q.Name.String()]
	if !ok {
		h.RCode = dnsmessage.RCodeNameError
	}
	src := server
	if z.edit != nil {
		z.edit(&h, &src)
	}
	b := dnsmessage.NewBuilder(nil, h)
	require.NoError(z.t, b.StartQuestions())
	require.NoError(z.t, b.Question(q))
	require.NoError(z.t, b.StartAnswers())
	if ok {
		// A CNAME ahead of the address must be skipped.
		target := dnsmessage.MustNewName("edge." + q.Name.String())
		rh := dnsmessage.ResourceHeader{Name: q.Name, Class: dnsmessage.ClassINET, TTL: 60}
		require.NoError(z.t, b.CNAMEResource(rh, dnsmessage.CNAMEResource{CNAME: target}))
		rh.Name = target
		require.NoError(z.t, b.AResource(rh, dnsmessage.AResource{A: ip}))
	}
	resp, err := b.Finish()
	require.NoError(z.t, err)
	z.chip.Sockets[sn].InjectUDP(src, Port, resp)
}

func TestLookupHost(t *testing.T) {
	r := &Resolver{Polls: 4, PollDelay: time.Nanosecond}
	dev, chip := newDevice(t, r)
	z := &zone{t: t, chip: chip, records: map[string][4]byte{"example.com.": {93, 184, 216, 34}}}
	chip.OnSend = z.serve

	sock, err := dev.Socket(w5500.ProtoUDP, 0, 0)
	require.NoError(t, err)
	addr, err := r.LookupHost(sock, dev.DNS(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), addr)
	require.Len(t, z.queries, 1)
	assert.Equal(t, dnsmessage.TypeA, z.queries[0].Type)

	_, err = r.LookupHost(sock, dev.DNS(), "missing.example.com.")
	assert.ErrorIs(t, err, ErrRCode)
}

func TestLookupHostLiteral(t *testing.T) {
	r := &Resolver{}
	dev, chip := newDevice(t, r)
	chip.OnSend = func(int, []byte) { t.Error("query sent for address literal") }
	sock, err := dev.Socket(w5500.ProtoUDP, 0, 0)
	require.NoError(t, err)
	addr, err := r.LookupHost(sock, dev.DNS(), "10.20.30.40")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.20.30.40"), addr)
}

func TestLookupHostRetries(t *testing.T) {
	r := &Resolver{Retries: 2, Polls: 3, PollDelay: time.Nanosecond}
	dev, chip := newDevice(t, r)
	sends := 0
	chip.OnSend = func(int, []byte) { sends++ }
	sock, err := dev.Socket(w5500.ProtoUDP, 0, 0)
	require.NoError(t, err)
	_, err = r.LookupHost(sock, dev.DNS(), "example.com")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, sends)
}

func TestLookupHostIgnoresStrayResponses(t *testing.T) {
	for name, edit := range map[string]func(*dnsmessage.Header, *[4]byte){
		"other id":     func(h *dnsmessage.Header, _ *[4]byte) { h.ID++ },
		"other server": func(_ *dnsmessage.Header, src *[4]byte) { src[3] = 2 },
		"not response": func(h *dnsmessage.Header, _ *[4]byte) { h.Response = false },
	} {
		t.Run(name, func(t *testing.T) {
			r := &Resolver{Retries: 1, Polls: 3, PollDelay: time.Nanosecond}
			dev, chip := newDevice(t, r)
			z := &zone{t: t, chip: chip, records: map[string][4]byte{"example.com.": {1, 2, 3, 4}}, edit: edit}
			chip.OnSend = z.serve
			sock, err := dev.Socket(w5500.ProtoUDP, 0, 0)
			require.NoError(t, err)
			_, err = r.LookupHost(sock, dev.DNS(), "example.com")
			assert.ErrorIs(t, err, ErrTimeout)
		})
	}
}

func TestConnectHost(t *testing.T) {
	r := &Resolver{Polls: 4, PollDelay: time.Nanosecond}
	dev, chip := newDevice(t, r)
	z := &zone{t: t, chip: chip, records: map[string][4]byte{"broker.lan.": {192, 168, 1, 77}}}
	chip.OnSend = z.serve

	sock, err := dev.Socket(w5500.ProtoTCP, 0, 0)
	require.NoError(t, err)
	require.NoError(t, sock.ConnectHost("broker.lan", 1883))
	ok, err := sock.IsConnected()
	require.NoError(t, err)
	assert.True(t, ok)
	st := &chip.Sockets[sock.Num()]
	assert.Equal(t, []byte{192, 168, 1, 77}, st.Reg[chiptest.SnDIPR:chiptest.SnDIPR+4])
	assert.Equal(t, uint16(1883), st.Reg16(chiptest.SnDPORT))

	assert.ErrorIs(t, sock.ConnectHost("nowhere.lan", 1883), w5500.ErrInvalidArgument)
}
