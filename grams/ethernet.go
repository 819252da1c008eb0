// Package grams has fixed size accessors for the packet headers a
// W5500 hands to raw sockets: ethernet frames on MACRAW sockets and ICMP
// messages on IPRAW sockets.
package grams

import (
	"encoding/binary"
	"net"

	"github.com/soypat/w5500/hex"
	"github.com/soypat/w5500/lax"
)

var (
	// Broadcast is the hardware address every station on the segment accepts.
	Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	None      = net.HardwareAddr{0, 0, 0, 0, 0, 0}
)

// An EtherType identifies the protocol carried by an ethernet frame.
//
// A list of IANA-assigned EtherType values may be found here:
// http://www.iana.org/assignments/ieee-802-numbers/ieee-802-numbers.xhtml.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD

	// EtherTypeVLAN and EtherTypeServiceVLAN are 802.1Q tag protocol
	// identifiers.
	EtherTypeVLAN        EtherType = 0x8100
	EtherTypeServiceVLAN EtherType = 0x88a8
)

// Frame sizes without the frame check sequence, which the chip strips.
const (
	EthernetHeaderLen = 14
	EthernetMinFrame  = 60
	EthernetMaxFrame  = 1514
)

// Ethernet is the header of an ethernet II frame as read from a MACRAW
// socket. The last two bytes hold the 802.1Q tag control of tagged
// frames and the start of the payload otherwise.
type Ethernet [16]byte

func (f *Ethernet) String() string {
	var vlanstr string
	if f.IsVLAN() {
		vlanstr = " (VLAN)"
	}
	et := f.EtherType()
	return lax.Strcat("dst: ", f.Destination().String(), ", ",
		"src: ", f.Source().String(), ", ",
		"etype: ", string(hex.Append(nil, byte(et>>8), byte(et))), vlanstr)
}

func (f *Ethernet) Destination() net.HardwareAddr { return f[0:6] }
func (f *Ethernet) Source() net.HardwareAddr      { return f[6:12] }
func (f *Ethernet) EtherType() EtherType          { return EtherType(binary.BigEndian.Uint16(f[12:14])) }
func (f *Ethernet) IsVLAN() bool                  { return f.EtherType() == EtherTypeVLAN }

type VLANTag uint16

func (f *Ethernet) VLAN() VLANTag {
	if !f.IsVLAN() {
		return 0
	}
	return VLANTag(binary.BigEndian.Uint16(f[14:16]))
}

func (v VLANTag) Identifier() uint16 { return 0xfff & uint16(v) }
func (v VLANTag) CFI() bool          { return 0x1000&uint16(v) != 0 }
func (v VLANTag) Priority() uint8    { return uint8(v >> 13) }

func (f *Ethernet) Set() EthernetSet { return EthernetSet{eth: f} }

type EthernetSet struct {
	eth *Ethernet
}

func (e EthernetSet) Reset()                           { *(e.eth) = Ethernet{} }
func (e EthernetSet) Destination(MAC net.HardwareAddr) { copy(e.eth.Destination(), MAC) }
func (e EthernetSet) Source(MAC net.HardwareAddr)      { copy(e.eth.Source(), MAC) }
func (e EthernetSet) EtherType(et EtherType)           { binary.BigEndian.PutUint16(e.eth[12:14], uint16(et)) }
