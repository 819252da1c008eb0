package w5500

import "errors"

// Socket lifecycle misuse.
var (
	ErrInUse    = errors.New("w5500: socket already open")
	ErrNotOpen  = errors.New("w5500: socket not open")
	ErrNoSocket = errors.New("w5500: no free socket")
)

var (
	ErrProtocol        = errors.New("w5500: operation invalid for protocol or socket status")
	ErrInvalidArgument = errors.New("w5500: invalid address or port")
	ErrFault           = errors.New("w5500: hardware did not reach expected state")
	ErrTimeout         = errors.New("w5500: hardware timeout")
	ErrIO              = errors.New("w5500: short receive header")
	ErrNotConnected    = errors.New("w5500: socket not connected")
	ErrPermission      = errors.New("w5500: name resolution unavailable")
)
