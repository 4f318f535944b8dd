//go:build linux

package liveness

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/florianl/go-diag"
	"github.com/josharian/native"
	"golang.org/x/sys/unix"

	"github.com/scitags/conntuple/sock"
	"github.com/scitags/conntuple/store"
)

var logger *slog.Logger

// Every TCP state, listening sockets included.
const allStates = ^uint32(0)

type Liveness struct {
	Config

	conn  *diag.Diag
	store *store.Store

	// Namespace the netlink socket lives in.
	netns uint32
}

func New(c *Config, st *store.Store, netns uint32) (*Liveness, error) {
	if c.Log {
		logger = slog.Default().With("t", "liveness")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	// open a netlink socket in our namespace
	conn, err := diag.Open(&diag.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open netlink socket: %w", err)
	}

	return &Liveness{Config: *c, conn: conn, store: st, netns: netns}, nil
}

func (l *Liveness) String() string {
	return "liveness"
}

// Sockets dumps every TCP socket in our namespace.
func (l *Liveness) Sockets() ([]Socket, error) {
	ss := []Socket{}
	for _, family := range []uint8{unix.AF_INET, unix.AF_INET6} {
		res, err := l.conn.NetDump(&diag.NetOption{
			Family:   family,
			Protocol: unix.IPPROTO_TCP,
			State:    allStates,
		})
		if err != nil {
			return nil, fmt.Errorf("error dumping sockets of family %d: %w", family, err)
		}

		for _, r := range res {
			ss = append(ss, Socket{
				Src: netip.AddrPortFrom(diagAddr(r.Family, r.ID.Src), sock.Ntohs(r.ID.SPort)),
				Dst: netip.AddrPortFrom(diagAddr(r.Family, r.ID.Dst), sock.Ntohs(r.ID.DPort)),
			})
		}
	}
	return ss, nil
}

// Prune drops the connections whose sockets are gone.
func (l *Liveness) Prune(now time.Time) (int, error) {
	ss, err := l.Sockets()
	if err != nil {
		return 0, err
	}

	n := l.store.Prune(newLiveSet(ss).keeper(l.netns, now.Add(-l.Interval)))
	logger.Debug("pruned connections", "live", len(ss), "pruned", n)
	return n, nil
}

// Run prunes the store every interval until done is closed.
func (l *Liveness) Run(done <-chan struct{}) {
	logger.Debug("starting the liveness checker", "interval", l.Interval)

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("cleanly stopping the liveness checker")
			return
		case now := <-ticker.C:
			if _, err := l.Prune(now); err != nil {
				logger.Warn("error pruning connections", "err", err)
			}
		}
	}
}

func (l *Liveness) Cleanup() error {
	return l.conn.Close()
}

// inet_diag hands addresses out as the raw bytes of the in-kernel
// structures, decoded as host-order words.
func diagAddr(family uint8, words [4]uint32) netip.Addr {
	var b [16]byte
	for i, w := range words {
		native.Endian.PutUint32(b[4*i:], w)
	}
	if family == unix.AF_INET {
		return netip.AddrFrom4([4]byte(b[:4]))
	}
	return netip.AddrFrom16(b)
}
