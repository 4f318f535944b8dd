package kernel

import (
	"fmt"
	"strings"
)

// Field identifies a member of one of the kernel structures the probe reads.
type Field uint8

const (
	SkFamily Field = iota
	SkNum
	SkDport
	SkRcvSaddr
	SkDaddr
	SkV6RcvSaddr
	SkV6Daddr
	SkNet
	InetSport
	InetDport
	InetSaddr
	InetDaddr
	TCPSegsIn
	TCPSegsOut
	NetNsInum
	SocketSk

	numFields
)

type fieldSpec struct {
	name string

	// Kernel structure the member belongs to and the dotted path leading
	// to it. Anonymous structs and unions are transparent.
	structName string
	path       string

	size int
}

var fieldSpecs = [numFields]fieldSpec{
	SkFamily:     {"skc_family", "sock", "__sk_common.skc_family", 2},
	SkNum:        {"skc_num", "sock", "__sk_common.skc_num", 2},
	SkDport:      {"skc_dport", "sock", "__sk_common.skc_dport", 2},
	SkRcvSaddr:   {"skc_rcv_saddr", "sock", "__sk_common.skc_rcv_saddr", 4},
	SkDaddr:      {"skc_daddr", "sock", "__sk_common.skc_daddr", 4},
	SkV6RcvSaddr: {"skc_v6_rcv_saddr", "sock", "__sk_common.skc_v6_rcv_saddr", 16},
	SkV6Daddr:    {"skc_v6_daddr", "sock", "__sk_common.skc_v6_daddr", 16},
	SkNet:        {"skc_net", "sock", "__sk_common.skc_net", 8},
	InetSport:    {"inet_sport", "inet_sock", "inet_sport", 2},
	InetDport:    {"inet_dport", "inet_sock", "sk.__sk_common.skc_dport", 2},
	InetSaddr:    {"inet_saddr", "inet_sock", "inet_saddr", 4},
	InetDaddr:    {"inet_daddr", "inet_sock", "sk.__sk_common.skc_daddr", 4},
	TCPSegsIn:    {"segs_in", "tcp_sock", "segs_in", 4},
	TCPSegsOut:   {"segs_out", "tcp_sock", "segs_out", 4},
	NetNsInum:    {"ns_inum", "net", "ns.inum", 4},
	SocketSk:     {"socket_sk", "socket", "sk", 8},
}

func (f Field) valid() bool { return f < numFields }

func (f Field) String() string {
	if !f.valid() {
		return fmt.Sprintf("unknown (%d)", uint8(f))
	}
	return fieldSpecs[f].name
}

// Size is the number of bytes a read of f transfers.
func (f Field) Size() int {
	if !f.valid() {
		return 0
	}
	return fieldSpecs[f].size
}

// Struct is the name of the kernel structure f is a member of.
func (f Field) Struct() string {
	if !f.valid() {
		return ""
	}
	return fieldSpecs[f].structName
}

// Path is the dotted member path of f inside Struct().
func (f Field) Path() string {
	if !f.valid() {
		return ""
	}
	return fieldSpecs[f].path
}

// Fields returns every known field.
func Fields() []Field {
	ff := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		ff = append(ff, f)
	}
	return ff
}

var fieldMap = func() map[string]Field {
	m := make(map[string]Field, numFields)
	for f := Field(0); f < numFields; f++ {
		m[strings.ToLower(f.String())] = f
	}
	return m
}()

func ParseField(s string) (Field, bool) {
	f, ok := fieldMap[strings.ToLower(s)]
	return f, ok
}
