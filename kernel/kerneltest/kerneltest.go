// Package kerneltest lays out fake kernel objects in memory so readers can
// be exercised without a running probe.
package kerneltest

import (
	"encoding/binary"
	"net/netip"
	"slices"

	"github.com/josharian/native"

	"github.com/scitags/conntuple/kernel"
)

// Builder places field values at the offsets a layout dictates. Fields the
// layout doesn't know about are silently dropped, as are bytes overwritten
// by a later Put.
type Builder struct {
	layout *kernel.Layout
	mem    map[uint64]byte
}

func NewBuilder(l *kernel.Layout) *Builder {
	return &Builder{layout: l, mem: map[uint64]byte{}}
}

// Put writes v as the value of f in the object at ptr. The length of v is
// not checked against f.Size() so that tests can lay out truncated fields.
func (b *Builder) Put(ptr uint64, f kernel.Field, v []byte) *Builder {
	off, ok := b.layout.Offset(f)
	if !ok {
		return b
	}
	for i, c := range v {
		b.mem[ptr+uint64(off)+uint64(i)] = c
	}
	return b
}

func (b *Builder) PutU16(ptr uint64, f kernel.Field, v uint16) *Builder {
	buf := make([]byte, 2)
	native.Endian.PutUint16(buf, v)
	return b.Put(ptr, f, buf)
}

// PutBE16 writes v in network byte order.
func (b *Builder) PutBE16(ptr uint64, f kernel.Field, v uint16) *Builder {
	return b.Put(ptr, f, binary.BigEndian.AppendUint16(nil, v))
}

func (b *Builder) PutU32(ptr uint64, f kernel.Field, v uint32) *Builder {
	buf := make([]byte, 4)
	native.Endian.PutUint32(buf, v)
	return b.Put(ptr, f, buf)
}

func (b *Builder) PutU64(ptr uint64, f kernel.Field, v uint64) *Builder {
	buf := make([]byte, 8)
	native.Endian.PutUint64(buf, v)
	return b.Put(ptr, f, buf)
}

// Regions returns the written bytes as maximal contiguous regions.
func (b *Builder) Regions() []kernel.Region {
	addrs := make([]uint64, 0, len(b.mem))
	for a := range b.mem {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)

	rr := []kernel.Region{}
	for _, a := range addrs {
		if n := len(rr); n > 0 && rr[n-1].Addr+uint64(len(rr[n-1].Data)) == a {
			rr[n-1].Data = append(rr[n-1].Data, b.mem[a])
			continue
		}
		rr = append(rr, kernel.Region{Addr: a, Data: []byte{b.mem[a]}})
	}
	return rr
}

// Image snapshots everything written so far.
func (b *Builder) Image() *kernel.Image {
	img, err := kernel.NewImage(b.Regions()...)
	if err != nil {
		// Regions are disjoint by construction.
		panic(err)
	}
	return img
}

// Sock describes a struct sock and the inet_sock and tcp_sock it's embedded
// in. Ports are in host order and written the way the kernel stores them.
// Invalid addresses are written as zeroes.
type Sock struct {
	Family uint16

	Num       uint16
	InetSport uint16
	Dport     uint16

	RcvSaddr  netip.Addr
	Daddr     netip.Addr
	InetSaddr netip.Addr

	V6RcvSaddr netip.Addr
	V6Daddr    netip.Addr

	SegsIn  uint32
	SegsOut uint32

	// Address of the struct net the socket belongs to.
	Net uint64

	// Fields left unmapped, so reading them faults.
	Omit []kernel.Field
}

func (s Sock) Put(b *Builder, sk uint64) *Builder {
	put := func(f kernel.Field, fn func()) {
		if !slices.Contains(s.Omit, f) {
			fn()
		}
	}

	put(kernel.SkFamily, func() { b.PutU16(sk, kernel.SkFamily, s.Family) })
	put(kernel.SkNum, func() { b.PutU16(sk, kernel.SkNum, s.Num) })
	put(kernel.SkDport, func() { b.PutBE16(sk, kernel.SkDport, s.Dport) })
	put(kernel.InetSport, func() { b.PutBE16(sk, kernel.InetSport, s.InetSport) })
	put(kernel.InetDport, func() { b.PutBE16(sk, kernel.InetDport, s.Dport) })

	put(kernel.SkRcvSaddr, func() { b.Put(sk, kernel.SkRcvSaddr, addr4(s.RcvSaddr)) })
	put(kernel.SkDaddr, func() { b.Put(sk, kernel.SkDaddr, addr4(s.Daddr)) })
	put(kernel.InetSaddr, func() { b.Put(sk, kernel.InetSaddr, addr4(s.InetSaddr)) })
	put(kernel.InetDaddr, func() { b.Put(sk, kernel.InetDaddr, addr4(s.Daddr)) })

	put(kernel.SkV6RcvSaddr, func() { b.Put(sk, kernel.SkV6RcvSaddr, addr16(s.V6RcvSaddr)) })
	put(kernel.SkV6Daddr, func() { b.Put(sk, kernel.SkV6Daddr, addr16(s.V6Daddr)) })

	put(kernel.TCPSegsIn, func() { b.PutU32(sk, kernel.TCPSegsIn, s.SegsIn) })
	put(kernel.TCPSegsOut, func() { b.PutU32(sk, kernel.TCPSegsOut, s.SegsOut) })

	put(kernel.SkNet, func() { b.PutU64(sk, kernel.SkNet, s.Net) })

	return b
}

// Net lays out a struct net whose namespace has inode number inum.
func Net(b *Builder, ptr uint64, inum uint32) *Builder {
	return b.PutU32(ptr, kernel.NetNsInum, inum)
}

// Socket lays out a struct socket pointing at sk.
func Socket(b *Builder, ptr uint64, sk uint64) *Builder {
	return b.PutU64(ptr, kernel.SocketSk, sk)
}

func addr4(a netip.Addr) []byte {
	if !a.Is4() {
		return make([]byte, 4)
	}
	b := a.As4()
	return b[:]
}

func addr16(a netip.Addr) []byte {
	if !a.IsValid() {
		return make([]byte, 16)
	}
	b := a.As16()
	return b[:]
}
