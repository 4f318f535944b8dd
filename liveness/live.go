// Package liveness drops connections from the store once the kernel no
// longer knows about their sockets.
package liveness

import (
	"net/netip"
	"time"

	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/types"
)

// Socket is a TCP socket as reported by inet_diag.
type Socket struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

type key struct {
	src, dst netip.AddrPort
}

// IPv4-mapped addresses are unmapped, just like the probe collapses them.
func keyOf(src, dst netip.AddrPort) key {
	return key{
		src: netip.AddrPortFrom(src.Addr().Unmap(), src.Port()),
		dst: netip.AddrPortFrom(dst.Addr().Unmap(), dst.Port()),
	}
}

type liveSet map[key]struct{}

func newLiveSet(ss []Socket) liveSet {
	l := make(liveSet, len(ss))
	for _, s := range ss {
		l[keyOf(s.Src, s.Dst)] = struct{}{}
	}
	return l
}

// keeper decides what survives a prune. Only TCP connections in namespace
// netns can be checked against the dump, everything else is kept. So is
// anything observed after cutoff, as its socket may postdate the dump.
func (l liveSet) keeper(netns uint32, cutoff time.Time) func(types.ConnTuple, store.Stats) bool {
	return func(t types.ConnTuple, st store.Stats) bool {
		if !t.Metadata.IsTCP() || t.Netns != netns || st.LastSeen.After(cutoff) {
			return true
		}

		src, dst := t.SrcAddr(), t.DstAddr()
		if !src.IsValid() || !dst.IsValid() {
			return true
		}

		_, ok := l[keyOf(netip.AddrPortFrom(src, t.Sport), netip.AddrPortFrom(dst, t.Dport))]
		return ok
	}
}
