package sock

import (
	ne "github.com/josharian/native"
)

func Htons(in uint16) uint16 {
	if !ne.IsBigEndian {
		return uint16((in&0xFF)<<8) | uint16((in>>8)&0xFF)
	}
	return in
}

func Ntohs(in uint16) uint16 { return Htons(in) }

func Htonl(in uint32) uint32 {
	if !ne.IsBigEndian {
		return uint32(Htons(uint16(in)))<<16 | uint32(Htons(uint16(in>>16)))
	}
	return in
}

func Ntohl(in uint32) uint32 { return Htonl(in) }
