//go:build !runtime && !prebuilt

package probe

import "github.com/scitags/conntuple/kernel"

func testResolved(_ kernel.Observer) *resolved {
	return &resolved{layout: kernel.HostLayout(), source: "test"}
}
