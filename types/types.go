package types

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Protocol is the transport a connection runs over.
type Protocol int

// Family is an address family as found in skc_family.
type Family int

const (
	TCP Protocol = iota
	UDP

	IPv4 Family = unix.AF_INET
	IPv6 Family = unix.AF_INET6
)

var (
	protocolNames = map[Protocol]string{
		TCP: "tcp",
		UDP: "udp",
	}

	familyNames = map[Family]string{
		IPv4: "ipv4",
		IPv6: "ipv6",
	}

	protocolMap = reverse(protocolNames)
	familyMap   = reverse(familyNames)
)

func reverse[K comparable](m map[K]string) map[string]K {
	r := make(map[string]K, len(m))
	for k, v := range m {
		r[v] = k
	}
	return r
}

func (p Protocol) String() string {
	return protocolNames[p]
}

// ParseProtocol parses a case-insensitive protocol name.
func ParseProtocol(proto string) (Protocol, bool) {
	p, ok := protocolMap[strings.ToLower(proto)]
	return p, ok
}

// Metadata returns the connection type flag of p.
func (p Protocol) Metadata() Metadata {
	if p == TCP {
		return ConnTypeTCP
	}
	return ConnTypeUDP
}

func (f Family) String() string {
	return familyNames[f]
}

func ParseFamily(family string) (Family, bool) {
	f, ok := familyMap[strings.ToLower(family)]
	return f, ok
}

// Metadata returns the family flag of f, zero for unknown families.
func (f Family) Metadata() Metadata {
	switch f {
	case IPv4:
		return ConnV4
	case IPv6:
		return ConnV6
	}
	return 0
}
