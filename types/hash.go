package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/josharian/native"
)

// ConnTupleSize is the size of a marshalled ConnTuple.
const ConnTupleSize = 4*8 + 2*2 + 3*4

// MarshalBinary encodes the tuple's bit pattern in native byte order with
// the field layout of the in-kernel record.
func (t ConnTuple) MarshalBinary() ([]byte, error) {
	enc := make([]byte, 0, ConnTupleSize)
	enc = native.Endian.AppendUint64(enc, t.SaddrH)
	enc = native.Endian.AppendUint64(enc, t.SaddrL)
	enc = native.Endian.AppendUint64(enc, t.DaddrH)
	enc = native.Endian.AppendUint64(enc, t.DaddrL)
	enc = native.Endian.AppendUint16(enc, t.Sport)
	enc = native.Endian.AppendUint16(enc, t.Dport)
	enc = native.Endian.AppendUint32(enc, t.Netns)
	enc = native.Endian.AppendUint32(enc, t.Pid)
	enc = native.Endian.AppendUint32(enc, uint32(t.Metadata))
	return enc, nil
}

func (t *ConnTuple) UnmarshalBinary(data []byte) error {
	if len(data) != ConnTupleSize {
		return fmt.Errorf("available data (%d) != %d", len(data), ConnTupleSize)
	}

	var bo binary.ByteOrder = native.Endian
	t.SaddrH = bo.Uint64(data[0:])
	t.SaddrL = bo.Uint64(data[8:])
	t.DaddrH = bo.Uint64(data[16:])
	t.DaddrL = bo.Uint64(data[24:])
	t.Sport = bo.Uint16(data[32:])
	t.Dport = bo.Uint16(data[34:])
	t.Netns = bo.Uint32(data[36:])
	t.Pid = bo.Uint32(data[40:])
	t.Metadata = Metadata(bo.Uint32(data[44:]))
	return nil
}

// Hash returns a 64-bit FNV-1a digest of the tuple's bit pattern.
func (t ConnTuple) Hash() uint64 {
	// Encoding a tuple never fails!
	enc, _ := t.MarshalBinary()

	h := fnv.New64a()
	h.Write(enc)
	return h.Sum64()
}
