// Package tuple assembles connection tuples out of socket fields.
package tuple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scitags/conntuple/internal/ratelog"
	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/netns"
	"github.com/scitags/conntuple/sock"
	"github.com/scitags/conntuple/types"
)

// NetnsResolver finds the network namespace of a process. It's only asked
// when the socket itself doesn't lead to one.
type NetnsResolver interface {
	NetnsByPid(pid uint32) (uint32, error)
}

// Env gathers what normalizers share across events.
type Env struct {
	IPv6  ipv6.Support
	Netns NetnsResolver
	Log   *ratelog.Logger
}

// DefaultEnv assumes IPv6 works everywhere and logs nothing.
func DefaultEnv() *Env {
	return &Env{IPv6: ipv6.Full}
}

var discardLog = ratelog.New(nil, time.Second, 1)

// Normalizer fills tuples from the socket fields its accessors read.
type Normalizer[R kernel.Reader] struct {
	acc sock.Accessors[R]
	env *Env
	log *ratelog.Logger
}

func NewNormalizer[R kernel.Reader](acc sock.Accessors[R], env *Env) Normalizer[R] {
	if env == nil {
		env = DefaultEnv()
	}
	log := env.Log
	if log == nil {
		log = discardLog
	}
	return Normalizer[R]{acc: acc, env: env, log: log}
}

// Read zeroes t and fills it from the socket at sk.
func (n Normalizer[R]) Read(t *types.ConnTuple, sk, pidTgid uint64, typ types.Metadata) bool {
	*t = types.ConnTuple{}
	return n.ReadPartial(t, sk, pidTgid, typ)
}

// ReadPartial fills whatever is still zero in t from the socket at sk.
func (n Normalizer[R]) ReadPartial(t *types.ConnTuple, sk, pidTgid uint64, typ types.Metadata) bool {
	return n.Fill(t, sk, pidTgid, typ) == nil
}

// Fill is ReadPartial reporting why the tuple couldn't be completed. Fields
// already set in t are never overwritten, which makes filling the same
// tuple from the same socket twice a no-op.
func (n Normalizer[R]) Fill(t *types.ConnTuple, sk, pidTgid uint64, typ types.Metadata) error {
	if t.Pid == 0 {
		t.Pid = uint32(pidTgid >> 32)
	}
	if !t.Metadata.HasType() {
		t.Metadata |= typ.Type()
	}

	// The namespace is often known before the addresses are.
	if t.Netns == 0 {
		t.Netns = n.netns(sk, t.Pid)
	}

	errs := []error{}
	hadFamily := t.Metadata.HasFamily()

	family := n.acc.Family(sk)
	switch types.Family(family) {
	case types.IPv4:
		if !hadFamily {
			t.Metadata |= types.ConnV4
		}

		if t.SaddrL == 0 {
			t.SaddrL = uint64(n.acc.SaddrV4(sk))
		}
		if t.DaddrL == 0 {
			t.DaddrL = uint64(n.acc.DaddrV4(sk))
		}

		if t.SaddrL == 0 {
			errs = append(errs, ErrSaddrUnset)
		}
		if t.DaddrL == 0 {
			errs = append(errs, ErrDaddrUnset)
		}

	case types.IPv6:
		if !n.env.IPv6.Enabled() {
			n.log.Debug("ipv6_disabled", "dropping an ipv6 socket", "sk", sk)
			return ErrIPv6Disabled
		}

		if t.SaddrH == 0 && t.SaddrL == 0 {
			t.SaddrH, t.SaddrL = n.acc.SaddrV6(sk)
		}
		if t.DaddrH == 0 && t.DaddrL == 0 {
			t.DaddrH, t.DaddrL = n.acc.DaddrV6(sk)
		}

		if t.SaddrH == 0 && t.SaddrL == 0 {
			errs = append(errs, ErrSaddrUnset)
		}
		if t.DaddrH == 0 && t.DaddrL == 0 {
			errs = append(errs, ErrDaddrUnset)
		}

		// A V4 tuple has already been collapsed, only what was just read
		// may still be mapped. A V6 one is collapsed as soon as both of its
		// addresses turn out to be mapped.
		if t.Metadata&types.ConnV4 != 0 {
			if ipv6.IsMapped(t.SaddrH, t.SaddrL) {
				t.SaddrL = uint64(uint32(t.SaddrL))
			}
			if ipv6.IsMapped(t.DaddrH, t.DaddrL) {
				t.DaddrL = uint64(uint32(t.DaddrL))
			}
			break
		}

		if ipv6.IsIPv4MappedIPv6(t.SaddrH, t.SaddrL, t.DaddrH, t.DaddrL) {
			t.SaddrH, t.SaddrL = 0, uint64(uint32(t.SaddrL))
			t.DaddrH, t.DaddrL = 0, uint64(uint32(t.DaddrL))
			t.Metadata = t.Metadata.WithFamily(types.ConnV4)
		} else if !hadFamily {
			t.Metadata |= types.ConnV6
		}

	default:
		errs = append(errs, fmt.Errorf("%w %d", ErrUnknownFamily, family))
		return n.report(t, sk, errs)
	}

	if t.Sport == 0 {
		t.Sport = n.acc.Sport(sk)
	}
	if t.Dport == 0 {
		t.Dport = n.acc.Dport(sk)
	}
	if t.Sport == 0 || t.Dport == 0 {
		errs = append(errs, ErrPortUnset)
	}

	return n.report(t, sk, errs)
}

func (n Normalizer[R]) report(t *types.ConnTuple, sk uint64, errs []error) error {
	err := errors.Join(errs...)
	if err == nil || !n.log.Enabled(context.Background(), slog.LevelDebug) {
		return err
	}
	for _, c := range Categories(err) {
		n.log.Debug(c, "incomplete tuple", "sk", sk, "tuple", t.String(), "strategy", n.acc.Reader().Strategy())
	}
	return err
}

func (n Normalizer[R]) netns(sk uint64, pid uint32) uint32 {
	inum, err := netns.FromSock(n.acc.Reader(), sk)
	if err == nil && inum != 0 {
		return inum
	}
	if err != nil {
		n.log.Debug("netns", "couldn't reach the socket's namespace", "sk", sk, "err", err)
	}

	if n.env.Netns == nil || pid == 0 {
		return 0
	}

	inum, err = n.env.Netns.NetnsByPid(pid)
	if err != nil {
		n.log.Debug("netns", "couldn't resolve the namespace by pid", "pid", pid, "err", err)
		return 0
	}
	return inum
}

// GetProto classifies t as TCP or UDP.
func GetProto(t types.ConnTuple) types.Metadata {
	return t.Proto()
}
