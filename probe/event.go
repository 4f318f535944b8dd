package probe

import (
	"errors"
	"fmt"

	"github.com/josharian/native"

	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/types"
)

// Samples pushed by the capture program are laid out as follows, in the
// host's byte order:
//
//	pid_tgid   u64
//	ptr        u64  struct sock, or struct socket if typeSocketFlag is set
//	conn_type  u32
//	nr_regions u32
//	nr_regions times:
//	    addr u64
//	    len  u32
//	    pad  u32
//	    data [len]byte, padded to 8 bytes
const (
	headerSize       = 24
	regionHeaderSize = 16

	typeSocketFlag = 1 << 31

	// Mirrors the capture program's loop bound.
	maxRegions = 32
)

var ErrMalformedEvent = errors.New("malformed event")

// Event is a snapshot of a socket as seen by the capture program.
type Event struct {
	PidTgid uint64

	// Exactly one of Sock and Socket is expected to be set. When only the
	// struct socket is known, the struct sock is reached through it.
	Sock   uint64
	Socket uint64

	// Connection type flag, either types.ConnTypeTCP or types.ConnTypeUDP.
	Type types.Metadata

	Memory kernel.Memory
}

// DecodeEvent parses a ring buffer sample. The sample is copied, so the
// caller may reuse raw.
func DecodeEvent(raw []byte) (Event, error) {
	if len(raw) < headerSize {
		return Event{}, fmt.Errorf("%w: %d bytes is too short for a header", ErrMalformedEvent, len(raw))
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)

	ev := Event{PidTgid: native.Endian.Uint64(buf[0:])}

	ptr := native.Endian.Uint64(buf[8:])
	typ := native.Endian.Uint32(buf[16:])
	if typ&typeSocketFlag != 0 {
		ev.Socket = ptr
	} else {
		ev.Sock = ptr
	}

	ev.Type = types.Metadata(typ &^ typeSocketFlag)
	if ev.Type != types.ConnTypeTCP && ev.Type != types.ConnTypeUDP {
		return Event{}, fmt.Errorf("%w: bad connection type %#x", ErrMalformedEvent, typ)
	}

	n := native.Endian.Uint32(buf[20:])
	if n > maxRegions {
		return Event{}, fmt.Errorf("%w: %d regions exceeds %d", ErrMalformedEvent, n, maxRegions)
	}

	img := &kernel.Image{}
	off := headerSize
	for i := range int(n) {
		if len(buf)-off < regionHeaderSize {
			return Event{}, fmt.Errorf("%w: region %d: truncated header", ErrMalformedEvent, i)
		}
		addr := native.Endian.Uint64(buf[off:])
		size := int(native.Endian.Uint32(buf[off+8:]))
		off += regionHeaderSize

		if len(buf)-off < size {
			return Event{}, fmt.Errorf("%w: region %d: %d bytes announced, %d left", ErrMalformedEvent, i, size, len(buf)-off)
		}
		if err := img.Map(addr, buf[off:off+size]); err != nil {
			return Event{}, fmt.Errorf("%w: region %d: %w", ErrMalformedEvent, i, err)
		}
		off += align8(size)
	}

	ev.Memory = img
	return ev, nil
}

// MarshalBinary encodes ev the way the capture program does. Only events
// backed by a *kernel.Image can be encoded.
func (ev Event) MarshalBinary() ([]byte, error) {
	img, ok := ev.Memory.(*kernel.Image)
	if !ok {
		return nil, fmt.Errorf("can't encode memory of type %T", ev.Memory)
	}

	ptr, typ := ev.Sock, uint32(ev.Type)
	if ev.Socket != 0 {
		ptr, typ = ev.Socket, typ|typeSocketFlag
	}

	regions := img.Regions()
	enc := make([]byte, 0, headerSize)
	enc = native.Endian.AppendUint64(enc, ev.PidTgid)
	enc = native.Endian.AppendUint64(enc, ptr)
	enc = native.Endian.AppendUint32(enc, typ)
	enc = native.Endian.AppendUint32(enc, uint32(len(regions)))

	for _, r := range regions {
		enc = native.Endian.AppendUint64(enc, r.Addr)
		enc = native.Endian.AppendUint32(enc, uint32(len(r.Data)))
		enc = native.Endian.AppendUint32(enc, 0)
		enc = append(enc, r.Data...)
		enc = append(enc, make([]byte, align8(len(r.Data))-len(r.Data))...)
	}

	return enc, nil
}

func align8(n int) int {
	return (n + 7) &^ 7
}
