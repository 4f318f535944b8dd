// Package ipv6 holds the helpers the normalizer needs to deal with IPv6
// sockets: splitting in6_addr into words, spotting IPv4-mapped addresses and
// finding out whether IPv6 is enabled at all.
package ipv6

// ReadIn6Addr splits the raw bytes of an in6_addr into its most and least
// significant halves.
func ReadIn6Addr(raw [16]byte) (h, l uint64) {
	for i := 0; i < 8; i++ {
		h |= uint64(raw[i]) << (8 * (8 - (1 + i)))
		l |= uint64(raw[i+8]) << (8 * (8 - (1 + i)))
	}
	return h, l
}

// mappedPrefix is what the upper 32 bits of an address' low half look like
// for ::ffff:a.b.c.d.
const mappedPrefix = 0xffff

// IsMapped reports whether the address split in h and l is ::ffff:a.b.c.d.
func IsMapped(h, l uint64) bool {
	return h == 0 && l>>32 == mappedPrefix
}

// IsIPv4MappedIPv6 reports whether both addresses are IPv4-mapped.
func IsIPv4MappedIPv6(saddrH, saddrL, daddrH, daddrL uint64) bool {
	return IsMapped(saddrH, saddrL) && IsMapped(daddrH, daddrL)
}
