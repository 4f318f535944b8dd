package tuple

import (
	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/types"
)

// Merge completes existing with what observed knows, the way a partial fill
// of existing would. A field is only taken from observed when it's zero in
// existing and addresses are taken as a whole, never one word at a time.
// The connection type is only taken when existing has none.
//
// Addresses are compared in their IPv6 form: IPv4 tuples are widened to
// ::ffff:a.b.c.d first. The result is collapsed back to IPv4 when it can
// be, so a V4 tuple never carries a high word.
func Merge(existing, observed types.ConnTuple) types.ConnTuple {
	m := widen(existing)
	o := widen(observed)

	if m.Pid == 0 {
		m.Pid = o.Pid
	}
	if m.Netns == 0 {
		m.Netns = o.Netns
	}

	if !m.Metadata.HasType() {
		m.Metadata |= o.Metadata.Type()
	}

	if m.SaddrH == 0 && m.SaddrL == 0 {
		m.SaddrH, m.SaddrL = o.SaddrH, o.SaddrL
	}
	if m.DaddrH == 0 && m.DaddrL == 0 {
		m.DaddrH, m.DaddrL = o.DaddrH, o.DaddrL
	}

	if m.Sport == 0 {
		m.Sport = o.Sport
	}
	if m.Dport == 0 {
		m.Dport = o.Dport
	}

	return collapse(m, existing.Metadata|observed.Metadata)
}

// unsetOrMapped holds for addresses that don't stand in the way of a
// collapse to IPv4.
func unsetOrMapped(h, l uint64) bool {
	return (h == 0 && l == 0) || ipv6.IsMapped(h, l)
}

// widen turns the addresses of a V4 tuple into their mapped IPv6 form.
func widen(t types.ConnTuple) types.ConnTuple {
	if f, ok := t.Metadata.Family(); !ok || f != types.IPv4 {
		return t
	}
	if t.SaddrL != 0 {
		t.SaddrH, t.SaddrL = 0, 0xffff<<32|uint64(uint32(t.SaddrL))
	}
	if t.DaddrL != 0 {
		t.DaddrH, t.DaddrL = 0, 0xffff<<32|uint64(uint32(t.DaddrL))
	}
	return t
}

// collapse picks the family of a widened tuple given the family bits seen
// on both inputs. It goes back to V4 when one input was V4 and every
// address it holds is mapped, or when both addresses are mapped.
func collapse(t types.ConnTuple, seen types.Metadata) types.ConnTuple {
	both := ipv6.IsIPv4MappedIPv6(t.SaddrH, t.SaddrL, t.DaddrH, t.DaddrL)
	all := unsetOrMapped(t.SaddrH, t.SaddrL) && unsetOrMapped(t.DaddrH, t.DaddrL)

	switch {
	case both, all && seen&types.ConnV4 != 0:
		if t.SaddrL != 0 {
			t.SaddrL = uint64(uint32(t.SaddrL))
		}
		if t.DaddrL != 0 {
			t.DaddrL = uint64(uint32(t.DaddrL))
		}
		t.Metadata = t.Metadata.WithFamily(types.ConnV4)
	case seen.HasFamily() || t.SaddrH != 0 || t.SaddrL != 0 || t.DaddrH != 0 || t.DaddrL != 0:
		t.Metadata = t.Metadata.WithFamily(types.ConnV6)
	default:
		t.Metadata = t.Metadata.WithFamily(0)
	}

	return t
}
