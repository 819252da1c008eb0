//go:build avr

package lax

import "strconv"

func U16toa(u uint16) string {
	return strconv.Itoa(int(u))
}

func Strcat(s ...string) (out string) {
	for i := range s {
		out += s[i]
	}
	return out
}
