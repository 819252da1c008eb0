//go:build !avr

package lax

import "fmt"

func U16toa(u uint16) string {
	return fmt.Sprintf("%d", u)
}

// Strcat concatenates strings. Kept as a primitive so the AVR build can
// swap implementations without touching callers.
func Strcat(s ...string) (out string) {
	for i := range s {
		out += s[i]
	}
	return out
}
