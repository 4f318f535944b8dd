package kernel

import "fmt"

//go:generate go run ../internal/layoutgen -o layout_host.go

// Direct reads fields at the offsets baked into layout_host.go. Those are
// only correct for the kernel the file was generated on, so binaries built
// with this strategy must be rebuilt per host.
type Direct struct {
	mem    Memory
	offset func(Field) (uint32, bool)
}

func NewDirect(mem Memory) Direct {
	return Direct{mem: mem, offset: hostOffset}
}

func (d Direct) Read(ptr uint64, f Field, dst []byte) error {
	if err := checkDst(f, dst); err != nil {
		return err
	}
	off, ok := d.offset(f)
	if !ok {
		clear(dst)
		return fmt.Errorf("%w: %s is missing from the host layout", ErrFieldUnavailable, f)
	}
	return readAt(d.mem, ptr, off, f, dst)
}

func (Direct) Strategy() Strategy { return Runtime }

// HostLayout returns the compiled-in offsets as a Layout.
func HostLayout() *Layout {
	l := &Layout{}
	for f := Field(0); f < numFields; f++ {
		if off, ok := hostOffset(f); ok {
			l.Set(f, off)
		}
	}
	return l
}
