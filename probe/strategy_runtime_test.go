//go:build runtime

package probe

import "github.com/scitags/conntuple/kernel"

func testResolved(_ kernel.Observer) *resolved {
	return &resolved{}
}
