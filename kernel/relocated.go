package kernel

import "fmt"

// Relocated reads fields at offsets resolved at load time against the
// running kernel's type information, see LoadKernelLayout.
type Relocated struct {
	mem    Memory
	layout *Layout
}

// NewRelocated binds a resolved layout to mem. The layout is shared, not
// copied, so binding it to per-event memory is cheap.
func NewRelocated(mem Memory, layout *Layout) Relocated {
	return Relocated{mem: mem, layout: layout}
}

func (r Relocated) Read(ptr uint64, f Field, dst []byte) error {
	if err := checkDst(f, dst); err != nil {
		return err
	}
	off, ok := r.layout.Offset(f)
	if !ok {
		clear(dst)
		return fmt.Errorf("%w: %s was not relocated", ErrFieldUnavailable, f)
	}
	return readAt(r.mem, ptr, off, f, dst)
}

func (Relocated) Strategy() Strategy { return CORE }
