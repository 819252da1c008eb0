package w5500

import "github.com/soypat/w5500/hex"

// Register map. Offsets are relative to the block selected by the
// control byte of each transaction.

// Common register block.
const (
	regMR       uint16 = 0x0000 // mode
	regGAR      uint16 = 0x0001 // gateway address [4]
	regSUBR     uint16 = 0x0005 // subnet mask [4]
	regSHAR     uint16 = 0x0009 // source hardware address [6]
	regSIPR     uint16 = 0x000F // source IP address [4]
	regRTR      uint16 = 0x0019 // retry time, 100us units [2]
	regVERSIONR uint16 = 0x0039 // chip version, reads 0x04
)

// Socket register block.
const (
	regSnMR    uint16 = 0x0000 // mode
	regSnCR    uint16 = 0x0001 // command
	regSnIR    uint16 = 0x0002 // interrupt
	regSnSR    uint16 = 0x0003 // status
	regSnPORT  uint16 = 0x0004 // source port [2]
	regSnDHAR  uint16 = 0x0006 // destination hardware address [6]
	regSnDIPR  uint16 = 0x000C // destination IP address [4]
	regSnDPORT uint16 = 0x0010 // destination port [2]
	regSnPROTO uint16 = 0x0014 // IP protocol number in raw-IP mode
	regSnTXFSR uint16 = 0x0020 // TX free size [2]
	regSnTXRD  uint16 = 0x0022 // TX read pointer [2]
	regSnTXWR  uint16 = 0x0024 // TX write pointer [2]
	regSnRXRSR uint16 = 0x0026 // RX received size [2]
	regSnRXRD  uint16 = 0x0028 // RX read pointer [2]
	regSnRXWR  uint16 = 0x002A // RX write pointer [2]
)

// Control byte layout: BSB[4:0] | RWB | OM[1:0].
const (
	ctlRead  uint8 = 0 << 2
	ctlWrite uint8 = 1 << 2
	ctlVDM   uint8 = 0b00 // variable data length mode, length set by chip select

	bsbCommon uint8 = 0b00 << 3
	bsbSocket uint8 = 0b01 << 3
	bsbTX     uint8 = 0b10 << 3
	bsbRX     uint8 = 0b11 << 3
)

const commonBlock = bsbCommon

// socketBlock returns the control byte selecting socket n's register block.
func socketBlock(n uint8) uint8 { return n<<5 | bsbSocket }
func txBlock(n uint8) uint8     { return n<<5 | bsbTX }
func rxBlock(n uint8) uint8     { return n<<5 | bsbRX }

// Common mode register bits.
const (
	mrRST uint8 = 0x80
)

// Socket mode register. Low nibble selects protocol, high nibble carries flags.
const (
	mrProtoMask uint8 = 0x0F
	mrFlagMask  uint8 = 0xF0
)

// Socket commands written to Sn_CR.
const (
	crOPEN    uint8 = 0x01
	crLISTEN  uint8 = 0x02
	crCONNECT uint8 = 0x04
	crDISCON  uint8 = 0x08
	crCLOSE   uint8 = 0x10
	crSEND    uint8 = 0x20
	crRECV    uint8 = 0x40
)

// Socket interrupt flags in Sn_IR. Writing a one clears the flag.
const (
	irCON     uint8 = 0x01
	irDISCON  uint8 = 0x02
	irRECV    uint8 = 0x04
	irTIMEOUT uint8 = 0x08
	irSENDOK  uint8 = 0x10
	irAll     uint8 = 0xFF
)

// Status is the value of a socket's Sn_SR register.
type Status uint8

// Socket status values in Sn_SR.
const (
	srCLOSED      Status = 0x00
	srINIT        Status = 0x13
	srLISTEN      Status = 0x14
	srSYNSENT     Status = 0x15
	srSYNRECV     Status = 0x16
	srESTABLISHED Status = 0x17
	srFINWAIT     Status = 0x18
	srCLOSING     Status = 0x1A
	srTIMEWAIT    Status = 0x1B
	srCLOSEWAIT   Status = 0x1C
	srLASTACK     Status = 0x1D
	srUDP         Status = 0x22
	srIPRAW       Status = 0x32
	srMACRAW      Status = 0x42
)

const (
	// NumSockets is the number of hardware sockets on the chip.
	NumSockets = 8
	// BufMax is the size of each socket's TX and RX buffer.
	BufMax = 2048
	// MsgMax is the largest burst queued before Write flushes.
	MsgMax = BufMax / 2
)

func (s Status) String() string {
	switch s {
	case srCLOSED:
		return "CLOSED"
	case srINIT:
		return "INIT"
	case srLISTEN:
		return "LISTEN"
	case srSYNSENT:
		return "SYNSENT"
	case srSYNRECV:
		return "SYNRECV"
	case srESTABLISHED:
		return "ESTABLISHED"
	case srFINWAIT:
		return "FIN_WAIT"
	case srCLOSING:
		return "CLOSING"
	case srTIMEWAIT:
		return "TIME_WAIT"
	case srCLOSEWAIT:
		return "CLOSE_WAIT"
	case srLASTACK:
		return "LAST_ACK"
	case srUDP:
		return "UDP"
	case srIPRAW:
		return "IPRAW"
	case srMACRAW:
		return "MACRAW"
	}
	return "0x" + string(hex.Byte(uint8(s)))
}
