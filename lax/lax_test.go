package lax

import "testing"

func TestU16toa(t *testing.T) {
	for _, tc := range []struct {
		u    uint16
		want string
	}{{0, "0"}, {7, "7"}, {49152, "49152"}, {0xffff, "65535"}} {
		if got := U16toa(tc.u); got != tc.want {
			t.Errorf("U16toa(%d) = %q, want %q", tc.u, got, tc.want)
		}
	}
}

func TestStrcat(t *testing.T) {
	if got := Strcat("socket ", "3", " UDP"); got != "socket 3 UDP" {
		t.Errorf("got %q", got)
	}
	if Strcat() != "" {
		t.Error("empty Strcat not empty")
	}
}
