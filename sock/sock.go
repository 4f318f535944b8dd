// Package sock reads the logical fields of a socket (family, ports,
// addresses, counters) out of kernel memory, hiding which members back each
// of them and how the active strategy reaches those members.
package sock

import (
	"context"
	"log/slog"

	"github.com/josharian/native"

	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/types"
)

// Accessors reads socket fields through a reader of type R following the
// reader's plan. Accessors never fail: anything unreadable comes back as
// zero.
type Accessors[R kernel.Reader] struct {
	r    R
	plan Plan
}

func New[R kernel.Reader](r R) Accessors[R] {
	return Accessors[R]{r: r, plan: PlanFor(r.Strategy())}
}

// WithPlan overrides the reader's default plan.
func WithPlan[R kernel.Reader](r R, p Plan) Accessors[R] {
	return Accessors[R]{r: r, plan: p}
}

func (a Accessors[R]) Reader() R  { return a.r }
func (a Accessors[R]) Plan() Plan { return a.plan }

func (a Accessors[R]) Family(sk uint64) uint16 {
	return read16(a.r, sk, a.plan.Family)
}

// Sport returns the source port in host order.
func (a Accessors[R]) Sport(sk uint64) uint16 {
	return read16(a.r, sk, a.plan.Sport)
}

// Dport returns the destination port in host order.
func (a Accessors[R]) Dport(sk uint64) uint16 {
	return read16(a.r, sk, a.plan.Dport)
}

// SaddrV4 returns the numeric value of the IPv4 source address.
func (a Accessors[R]) SaddrV4(sk uint64) uint32 {
	return read32(a.r, sk, a.plan.SaddrV4)
}

// DaddrV4 returns the numeric value of the IPv4 destination address.
func (a Accessors[R]) DaddrV4(sk uint64) uint32 {
	return read32(a.r, sk, a.plan.DaddrV4)
}

func (a Accessors[R]) SaddrV6(sk uint64) (h, l uint64) {
	return ipv6.ReadIn6Addr(read128(a.r, sk, a.plan.SaddrV6))
}

func (a Accessors[R]) DaddrV6(sk uint64) (h, l uint64) {
	return ipv6.ReadIn6Addr(read128(a.r, sk, a.plan.DaddrV6))
}

// TCPSegmentCounts returns the segments received and sent over a TCP
// socket. Both are zero when the strategy can't locate them.
func (a Accessors[R]) TCPSegmentCounts(sk uint64) (in, out uint32) {
	return read32(a.r, sk, a.plan.SegsIn), read32(a.r, sk, a.plan.SegsOut)
}

// SocketSk follows a struct socket to the struct sock backing it.
func (a Accessors[R]) SocketSk(socket uint64) uint64 {
	return read64(a.r, socket, a.plan.SocketSk)
}

func traceMiss(r kernel.Reader, c Candidate, err error) {
	slog.Log(context.Background(), types.LevelTrace, "candidate read failed",
		"strategy", r.Strategy(), "candidate", c, "err", err)
}

func read16[R kernel.Reader](r R, ptr uint64, c Chain) uint16 {
	var buf [2]byte
	for _, cand := range c {
		if err := r.Read(ptr, cand.Field, buf[:]); err != nil {
			traceMiss(r, cand, err)
			continue
		}
		v := native.Endian.Uint16(buf[:])
		if cand.NetOrder {
			v = Ntohs(v)
		}
		if v != 0 {
			return v
		}
	}
	return 0
}

func read32[R kernel.Reader](r R, ptr uint64, c Chain) uint32 {
	var buf [4]byte
	for _, cand := range c {
		if err := r.Read(ptr, cand.Field, buf[:]); err != nil {
			traceMiss(r, cand, err)
			continue
		}
		v := native.Endian.Uint32(buf[:])
		if cand.NetOrder {
			v = Ntohl(v)
		}
		if v != 0 {
			return v
		}
	}
	return 0
}

func read64[R kernel.Reader](r R, ptr uint64, c Chain) uint64 {
	var buf [8]byte
	for _, cand := range c {
		if err := r.Read(ptr, cand.Field, buf[:]); err != nil {
			traceMiss(r, cand, err)
			continue
		}
		if v := native.Endian.Uint64(buf[:]); v != 0 {
			return v
		}
	}
	return 0
}

func read128[R kernel.Reader](r R, ptr uint64, c Chain) [16]byte {
	var buf [16]byte
	for _, cand := range c {
		if err := r.Read(ptr, cand.Field, buf[:]); err != nil {
			traceMiss(r, cand, err)
			continue
		}
		if buf != [16]byte{} {
			return buf
		}
	}
	return [16]byte{}
}
