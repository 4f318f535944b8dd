//go:build linux

package liveness

import (
	"net/netip"
	"testing"

	"github.com/josharian/native"
	"golang.org/x/sys/unix"
)

func words(a netip.Addr) [4]uint32 {
	var w [4]uint32
	b := a.AsSlice()
	for i := 0; i < len(b)/4; i++ {
		w[i] = native.Endian.Uint32(b[4*i:])
	}
	return w
}

func TestDiagAddr(t *testing.T) {
	tests := []struct {
		family uint8
		addr   string
	}{
		{unix.AF_INET, "10.0.0.1"},
		{unix.AF_INET6, "2001:db8::1"},
		{unix.AF_INET6, "::ffff:10.0.0.1"},
	}

	for _, tc := range tests {
		want := netip.MustParseAddr(tc.addr)
		if got := diagAddr(tc.family, words(want)); got != want {
			t.Errorf("got %s, want %s", got, want)
		}
	}
}
