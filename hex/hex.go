// Package hex formats register dumps and decodes wire fixtures without
// pulling in fmt.
package hex

const digits = "0123456789ABCDEF"

// Byte converts a single byte to its two character uppercase
// ASCII representation.
//
// Example:
//
//	string(hex.Byte(0xff))
//	Output: "FF"
func Byte(b byte) []byte {
	return []byte{digits[b>>4], digits[b&0x0f]}
}

// Append appends the hex representation of each byte in b to dst.
func Append(dst []byte, b ...byte) []byte {
	for _, c := range b {
		dst = append(dst, digits[c>>4], digits[c&0x0f])
	}
	return dst
}

// Bytes converts a binary slice to its hex representation.
func Bytes(b []byte) []byte {
	return Append(make([]byte, 0, 2*len(b)), b...)
}

// PrintBytes prints b as hexadecimal using the builtin print, one
// digit pair at a time so no buffer is allocated.
func PrintBytes(b []byte) {
	for _, c := range b {
		print(string(digits[c>>4]), string(digits[c&0x0f]))
	}
}

// Decode turns ASCII hexadecimal text into binary, ignoring every
// character that is not a hex digit. Useful for pasting register
// captures into tests:
//
//	hex.Decode([]byte(`00 13 22`))
func Decode(b []byte) []byte {
	out := make([]byte, 0, len(b)/2)
	var nibbles int
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'F':
			c -= 'A' - 10
		case c >= 'a' && c <= 'f':
			c -= 'a' - 10
		case c >= '0' && c <= '9':
			c -= '0'
		default:
			continue
		}
		if nibbles%2 == 1 {
			out[nibbles/2] |= c
		} else {
			out = append(out, c<<4)
		}
		nibbles++
	}
	return out
}
