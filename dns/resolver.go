// Package dns resolves host names over a W5500 UDP socket. Resolver
// plugs into w5500.Config so sockets can ConnectHost.
package dns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/soypat/w5500"
	"golang.org/x/net/dns/dnsmessage"
)

// Port is the server port queries are sent to.
const Port = 53

const (
	DefaultRetries   = 3
	DefaultPolls     = 100
	DefaultPollDelay = 10 * time.Millisecond
	// maxMessage is the largest response accepted over UDP.
	maxMessage = 512
)

var (
	ErrTimeout  = errors.New("dns: no response")
	ErrNoAnswer = errors.New("dns: no A record in response")
	ErrRCode    = errors.New("dns: server error")
)

var _ w5500.Resolver = (*Resolver)(nil)

// Resolver looks up IPv4 addresses with recursive A queries. The zero
// value is ready to use. It is not safe for concurrent use.
type Resolver struct {
	// Retries is the number of queries sent before giving up.
	Retries int
	// Polls is the number of receive attempts per query and PollDelay
	// the pause after each attempt that found nothing.
	Polls     int
	PollDelay time.Duration

	id  uint16
	buf [maxMessage]byte
}

// LookupHost returns the first A record for hostname as answered by
// server. Address literals are returned without a query.
func (r *Resolver) LookupHost(sock *w5500.Socket, server netip.Addr, hostname string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(hostname); err == nil && addr.Is4() {
		return addr, nil
	}
	if !strings.HasSuffix(hostname, ".") {
		hostname += "."
	}
	name, err := dnsmessage.NewName(hostname)
	if err != nil {
		return netip.Addr{}, err
	}
	retries, polls, delay := r.Retries, r.Polls, r.PollDelay
	if retries <= 0 {
		retries = DefaultRetries
	}
	if polls <= 0 {
		polls = DefaultPolls
	}
	if delay <= 0 {
		delay = DefaultPollDelay
	}
	for attempt := 0; attempt < retries; attempt++ {
		r.id++
		query, err := r.query(name)
		if err != nil {
			return netip.Addr{}, err
		}
		if _, err = sock.SendTo(query, server, Port); err != nil {
			return netip.Addr{}, err
		}
		for i := 0; i < polls; i++ {
			n, from, err := sock.RecvFrom(r.buf[:])
			if err != nil {
				return netip.Addr{}, err
			}
			if n == 0 {
				time.Sleep(delay)
				continue
			}
			if from != netip.AddrPortFrom(server, Port) {
				continue
			}
			addr, ok, err := r.answer(r.buf[:n])
			if ok {
				return addr, err
			}
		}
	}
	return netip.Addr{}, ErrTimeout
}

func (r *Resolver) query(name dnsmessage.Name) ([]byte, error) {
	b := dnsmessage.NewBuilder(r.buf[:0], dnsmessage.Header{ID: r.id, RecursionDesired: true})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	err := b.Question(dnsmessage.Question{Name: name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET})
	if err != nil {
		return nil, err
	}
	return b.Finish()
}

// answer extracts the first A record of msg. ok is false when msg is not
// a response to the outstanding query.
func (r *Resolver) answer(msg []byte) (addr netip.Addr, ok bool, err error) {
	var p dnsmessage.Parser
	h, err := p.Start(msg)
	if err != nil || !h.Response || h.ID != r.id {
		return addr, false, nil
	}
	if h.RCode != dnsmessage.RCodeSuccess {
		return addr, true, fmt.Errorf("%w: %s", ErrRCode, h.RCode)
	}
	if err = p.SkipAllQuestions(); err != nil {
		return addr, true, err
	}
	for {
		ah, err := p.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			return addr, true, ErrNoAnswer
		}
		if err != nil {
			return addr, true, err
		}
		if ah.Type != dnsmessage.TypeA || ah.Class != dnsmessage.ClassINET {
			if err = p.SkipAnswer(); err != nil {
				return addr, true, err
			}
			continue
		}
		a, err := p.AResource()
		if err != nil {
			return addr, true, err
		}
		return netip.AddrFrom4(a.A), true, nil
	}
}
