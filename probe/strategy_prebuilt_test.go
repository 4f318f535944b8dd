//go:build prebuilt && !runtime

package probe

import "github.com/scitags/conntuple/kernel"

// Same offsets as the compiled-in layout, so that fixtures are shared.
func testResolved(obs kernel.Observer) *resolved {
	host := kernel.HostLayout()
	off := func(f kernel.Field) uint32 {
		o, _ := host.Offset(f)
		return o
	}

	return &resolved{
		offsets: kernel.Offsets{
			Saddr:     off(kernel.SkRcvSaddr),
			Daddr:     off(kernel.SkDaddr),
			Sport:     off(kernel.InetSport),
			Dport:     off(kernel.SkDport),
			Family:    off(kernel.SkFamily),
			DaddrIPv6: off(kernel.SkV6Daddr),
			Netns:     off(kernel.SkNet),
			Ino:       off(kernel.NetNsInum),
			SocketSk:  off(kernel.SocketSk),
		},
		fp:  kernel.Fingerprint{Release: "test", Machine: "x86_64"},
		obs: obs,
	}
}
