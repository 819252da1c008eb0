package lax

import "github.com/soypat/w5500/hex"

// Serial Debug flag. Enables printing of bus transactions.
var (
	SDB bool
	// When SDB and SDBTrace are enabled only the message is printed,
	// register payloads are omitted.
	SDBTrace bool
)

// Log is a debug serial print. Datas are logged as hex strings. It
// compiles to a flag check when SDB is never set.
func Log(msg string, datas ...[]byte) {
	if !SDB {
		return
	}
	print("w5500:", msg)
	if !SDBTrace {
		for _, d := range datas {
			print(" 0x")
			hex.PrintBytes(d)
		}
	}
	println()
}
