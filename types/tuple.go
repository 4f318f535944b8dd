package types

import (
	"fmt"
	"net/netip"
	"strings"
)

// Metadata is the bitmask carried by every ConnTuple. Exactly one of
// ConnTypeTCP/ConnTypeUDP is always set; a successfully filled tuple
// additionally carries exactly one of ConnV4/ConnV6.
type Metadata uint32

const (
	ConnTypeUDP Metadata = 1 << iota
	ConnTypeTCP
	ConnV4
	ConnV6
)

const (
	connTypeMask   = ConnTypeUDP | ConnTypeTCP
	connFamilyMask = ConnV4 | ConnV6
)

func (m Metadata) IsTCP() bool { return m&ConnTypeTCP != 0 }

// HasType reports whether any connection type bit is present.
func (m Metadata) HasType() bool { return m&connTypeMask != 0 }

// Type keeps only the connection type bits of m.
func (m Metadata) Type() Metadata { return m & connTypeMask }

// Family returns the address family encoded in m. The second return value
// is false when no (or both) family bits are set.
func (m Metadata) Family() (Family, bool) {
	switch m & connFamilyMask {
	case ConnV4:
		return IPv4, true
	case ConnV6:
		return IPv6, true
	default:
		return 0, false
	}
}

// HasFamily reports whether any family bit is present.
func (m Metadata) HasFamily() bool { return m&connFamilyMask != 0 }

// WithFamily clears both family bits and sets f.
func (m Metadata) WithFamily(f Metadata) Metadata {
	return m&^connFamilyMask | f&connFamilyMask
}

func (m Metadata) String() string {
	parts := []string{}
	if m&ConnTypeTCP != 0 {
		parts = append(parts, "tcp")
	}
	if m&ConnTypeUDP != 0 {
		parts = append(parts, "udp")
	}
	if m&ConnV4 != 0 {
		parts = append(parts, "v4")
	}
	if m&ConnV6 != 0 {
		parts = append(parts, "v6")
	}
	if rest := m &^ (connTypeMask | connFamilyMask); rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ConnTuple identifies a single connection. It's a plain, comparable value
// so it can be used directly as a map key: two tuples are the same key iff
// their bit patterns match.
//
// Addresses are stored as 128-bit values split in two words. An IPv4
// address lives in the low 32 bits of the low word with everything else
// zeroed. Words hold the numeric value of the address, most significant
// byte first. Ports are in host byte order.
type ConnTuple struct {
	SaddrH uint64
	SaddrL uint64
	DaddrH uint64
	DaddrL uint64

	Sport uint16
	Dport uint16

	Netns    uint32
	Pid      uint32
	Metadata Metadata
}

// Proto classifies the tuple as TCP or UDP from its metadata.
func (t ConnTuple) Proto() Metadata {
	if t.Metadata.IsTCP() {
		return ConnTypeTCP
	}
	return ConnTypeUDP
}

// Protocol is Proto expressed as a Protocol.
func (t ConnTuple) Protocol() Protocol {
	if t.Proto() == ConnTypeTCP {
		return TCP
	}
	return UDP
}

// SrcAddr returns the source address. The zero netip.Addr is returned when
// the tuple carries no family bit.
func (t ConnTuple) SrcAddr() netip.Addr {
	return wordsToAddr(t.Metadata, t.SaddrH, t.SaddrL)
}

// DstAddr returns the destination address. See SrcAddr.
func (t ConnTuple) DstAddr() netip.Addr {
	return wordsToAddr(t.Metadata, t.DaddrH, t.DaddrL)
}

func (t ConnTuple) Src() netip.AddrPort { return netip.AddrPortFrom(t.SrcAddr(), t.Sport) }
func (t ConnTuple) Dst() netip.AddrPort { return netip.AddrPortFrom(t.DstAddr(), t.Dport) }

func (t ConnTuple) String() string {
	return fmt.Sprintf("[%s] %s -> %s netns=%d pid=%d", t.Metadata, t.Src(), t.Dst(), t.Netns, t.Pid)
}

func wordsToAddr(m Metadata, hi, lo uint64) netip.Addr {
	f, ok := m.Family()
	if !ok {
		return netip.Addr{}
	}

	if f == IPv4 {
		v := uint32(lo)
		return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}

	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(hi >> (8 * (7 - i)))
		b[i+8] = byte(lo >> (8 * (7 - i)))
	}
	return netip.AddrFrom16(b)
}

// AddrWords splits addr into the (high, low) words stored in a ConnTuple.
// IPv4 addresses (and only those) end up in the low 32 bits of the low word.
func AddrWords(addr netip.Addr) (uint64, uint64) {
	if addr.Is4() {
		b := addr.As4()
		return 0, uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
	}

	var hi, lo uint64
	b := addr.As16()
	for i := 0; i < 8; i++ {
		hi |= uint64(b[i]) << (8 * (7 - i))
		lo |= uint64(b[i+8]) << (8 * (7 - i))
	}
	return hi, lo
}
