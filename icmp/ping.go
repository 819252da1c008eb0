// Package icmp pings hosts through a W5500 raw IP socket.
package icmp

import (
	"errors"
	"net/netip"
	"time"

	"github.com/soypat/w5500"
	"github.com/soypat/w5500/grams"
)

// ProtocolICMP is the IP protocol number the ping socket filters on.
const ProtocolICMP = 1

const (
	DefaultPolls     = 100
	DefaultPollDelay = 10 * time.Millisecond
	headerLen        = len(grams.ICMP{})
)

// ErrTimeout is returned when no matching echo reply arrived.
var ErrTimeout = errors.New("icmp: no echo reply")

// Pinger sends echo requests and waits for their replies. It is not safe
// for concurrent use.
type Pinger struct {
	// ID identifies this pinger's requests in replies.
	ID uint16
	// Polls is the number of receive attempts per ping and PollDelay
	// the pause after each attempt that found nothing.
	Polls     int
	PollDelay time.Duration

	seq uint16
	buf [w5500.MsgMax]byte
}

// Ping sends one echo request carrying payload to addr over a raw IP
// socket opened on dev for the duration of the call and returns the
// round trip time.
func (p *Pinger) Ping(dev *w5500.Device, addr netip.Addr, payload []byte) (time.Duration, error) {
	if !addr.Is4() || len(payload) > len(p.buf)-headerLen {
		return 0, w5500.ErrInvalidArgument
	}
	sock, err := dev.Socket(w5500.ProtoIPRaw, ProtocolICMP, 0)
	if err != nil {
		return 0, err
	}
	defer sock.Close()

	p.seq++
	var req grams.ICMP
	set := req.Set()
	set.Type(grams.ICMPEchoRequest)
	set.ID(p.ID)
	set.Seq(p.seq)
	set.Checksum(req.ComputeChecksum(payload))

	if err = sock.SetDatagram(addr, 0); err != nil {
		return 0, err
	}
	start := time.Now()
	if _, err = sock.Write(req[:]); err != nil {
		return 0, err
	}
	if _, err = sock.Write(payload); err != nil {
		return 0, err
	}
	if err = sock.Flush(); err != nil {
		return 0, err
	}
	polls, delay := p.Polls, p.PollDelay
	if polls <= 0 {
		polls = DefaultPolls
	}
	if delay <= 0 {
		delay = DefaultPollDelay
	}
	for i := 0; i < polls; i++ {
		n, from, err := sock.RecvFrom(p.buf[:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			time.Sleep(delay)
			continue
		}
		if from.Addr() == addr && p.isReply(p.buf[:n]) {
			return time.Since(start), nil
		}
	}
	return 0, ErrTimeout
}

// isReply reports whether msg answers the last request sent.
func (p *Pinger) isReply(msg []byte) bool {
	if len(msg) < headerLen {
		return false
	}
	var hdr grams.ICMP
	copy(hdr[:], msg)
	return hdr.Type() == grams.ICMPEchoReply && hdr.Code() == 0 &&
		hdr.ID() == p.ID && hdr.Seq() == p.seq && hdr.Valid(msg[headerLen:])
}
