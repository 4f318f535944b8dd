package kernel

import "fmt"

// Offsets holds the guessed offsets the prebuilt strategy reads at. They
// are expressed in the vocabulary of the offline offset guesser: a single
// offset per guessed member, neighbouring members being derived from it.
type Offsets struct {
	Saddr     uint32 `yaml:"saddr" json:"saddr"`
	Daddr     uint32 `yaml:"daddr" json:"daddr"`
	Sport     uint32 `yaml:"sport" json:"sport"`
	Dport     uint32 `yaml:"dport" json:"dport"`
	Family    uint32 `yaml:"family" json:"family"`
	DaddrIPv6 uint32 `yaml:"daddrIPv6" json:"daddrIPv6"`
	Netns     uint32 `yaml:"netns" json:"netns"`
	Ino       uint32 `yaml:"ino" json:"ino"`
	SocketSk  uint32 `yaml:"socketSk" json:"socketSk"`
}

// offset maps f onto a raw offset. skc_num lives right after skc_dport and
// skc_v6_rcv_saddr right after skc_v6_daddr. There's no guessed offset for
// inet_sock's copies of the destination and source address nor for the TCP
// segment counters.
func (o Offsets) offset(f Field) (uint32, bool) {
	switch f {
	case SkFamily:
		return o.Family, true
	case SkNum:
		return o.Dport + 2, true
	case SkDport:
		return o.Dport, true
	case SkRcvSaddr:
		return o.Saddr, true
	case SkDaddr:
		return o.Daddr, true
	case SkV6Daddr:
		return o.DaddrIPv6, true
	case SkV6RcvSaddr:
		return o.DaddrIPv6 + 16, true
	case SkNet:
		return o.Netns, true
	case InetSport:
		return o.Sport, true
	case NetNsInum:
		return o.Ino, true
	case SocketSk:
		return o.SocketSk, true
	}
	return 0, false
}

// Layout expresses o as a Layout, leaving out what can't be derived.
func (o Offsets) Layout() *Layout {
	l := &Layout{}
	for f := Field(0); f < numFields; f++ {
		if off, ok := o.offset(f); ok {
			l.Set(f, off)
		}
	}
	return l
}

// Raw reads explicit byte ranges at base + offset. Faulting reads are
// reported to the observer and yield zero.
type Raw struct {
	mem     Memory
	offsets Offsets
	obs     Observer
}

func NewRaw(mem Memory, offsets Offsets, obs Observer) Raw {
	if obs == nil {
		obs = NopObserver
	}
	return Raw{mem: mem, offsets: offsets, obs: obs}
}

func (r Raw) Read(ptr uint64, f Field, dst []byte) error {
	if err := checkDst(f, dst); err != nil {
		return err
	}

	off, ok := r.offsets.offset(f)
	if !ok {
		clear(dst)
		return fmt.Errorf("%w: no offset for %s", ErrFieldUnavailable, f)
	}

	err := readAt(r.mem, ptr, off, f, dst)
	if err != nil {
		r.obs.ReadFailed(Prebuilt, f, err)
	}
	return err
}

func (Raw) Strategy() Strategy { return Prebuilt }
