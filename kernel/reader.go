package kernel

import (
	"fmt"
	"strings"
)

// Strategy selects how fields are located inside kernel structures.
type Strategy int

const (
	// Runtime reads members at offsets fixed when the probe was compiled
	// against the running kernel's own headers.
	Runtime Strategy = iota

	// CORE reads members at offsets relocated at load time against the
	// running kernel's BTF.
	CORE

	// Prebuilt reads raw byte ranges at offsets discovered offline and
	// supplied through an offsets table.
	Prebuilt
)

var strategyNames = map[Strategy]string{
	Runtime:  "runtime",
	CORE:     "co-re",
	Prebuilt: "prebuilt",
}

func (s Strategy) String() string {
	n, ok := strategyNames[s]
	if !ok {
		return fmt.Sprintf("unknown (%d)", int(s))
	}
	return n
}

func ParseStrategy(s string) (Strategy, bool) {
	ss, ok := strategyMap[strings.ToLower(s)]
	return ss, ok
}

var strategyMap = func() map[string]Strategy {
	m := make(map[string]Strategy, len(strategyNames))
	for s, n := range strategyNames {
		m[n] = s
	}
	m["core"] = CORE
	return m
}()

// Reader is the contract every read strategy honours: copy field f of the
// object at ptr into dst. On failure dst is left zeroed and an error is
// returned, so callers not interested in the cause can use the zero value.
type Reader interface {
	Read(ptr uint64, f Field, dst []byte) error
	Strategy() Strategy
}

// Observer is told about failed memory accesses.
type Observer interface {
	ReadFailed(s Strategy, f Field, err error)
}

type nopObserver struct{}

func (nopObserver) ReadFailed(Strategy, Field, error) {}

// NopObserver discards every notification.
var NopObserver Observer = nopObserver{}

func checkDst(f Field, dst []byte) error {
	if !f.valid() {
		clear(dst)
		return fmt.Errorf("%w: %s", ErrFieldUnavailable, f)
	}
	if len(dst) != f.Size() {
		clear(dst)
		return fmt.Errorf("reading %s: buffer holds %d bytes, want %d", f, len(dst), f.Size())
	}
	return nil
}

func readAt(mem Memory, ptr uint64, off uint32, f Field, dst []byte) error {
	if ptr == 0 {
		clear(dst)
		return fmt.Errorf("reading %s: %w", f, ErrNilPointer)
	}

	addr := ptr + uint64(off)
	n, err := mem.ReadAt(dst, addr)
	if err == nil && n != len(dst) {
		err = fmt.Errorf("%w: short read of %d bytes", ErrFault, n)
	}
	if err != nil {
		clear(dst)
		return fmt.Errorf("reading %s at %#x: %w", f, addr, err)
	}

	return nil
}
