// Package probe turns socket snapshots pushed by the in-kernel capture
// program into connection tuples.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/scitags/conntuple/internal/ratelog"
	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/netns"
	"github.com/scitags/conntuple/sock"
	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/tuple"
	"github.com/scitags/conntuple/types"
)

var logger *slog.Logger

// ErrSourceClosed is returned by sources once Close has been called.
var ErrSourceClosed = errors.New("source closed")

// Source hands out events one at a time. Next blocks until an event is
// available and must return ErrSourceClosed once Close is called, which
// may happen from another goroutine. Finite sources return io.EOF when
// they run out.
type Source interface {
	Next() (Event, error)
	Close() error
}

// Metrics is told about what goes through the probe.
type Metrics interface {
	kernel.Observer
	EventHandled()
	DecodeFailed()
	NormalizeFailed(err error)
	TupleNormalized(t types.ConnTuple)
	SetConnections(n int)
}

type nopMetrics struct{}

func (nopMetrics) ReadFailed(kernel.Strategy, kernel.Field, error) {}
func (nopMetrics) EventHandled()                                   {}
func (nopMetrics) DecodeFailed()                                   {}
func (nopMetrics) NormalizeFailed(error)                           {}
func (nopMetrics) TupleNormalized(types.ConnTuple)                 {}
func (nopMetrics) SetConnections(int)                              {}

// RequiredFields lists every field the compiled strategy may read.
func RequiredFields() []kernel.Field {
	return append(sock.PlanFor(Strategy).Fields(), kernel.SkNet, kernel.NetNsInum)
}

type Probe struct {
	Config

	res     *resolved
	env     *tuple.Env
	store   *store.Store
	metrics Metrics

	now func() time.Time
}

// New resolves where the compiled strategy finds the socket fields on this
// host. Both st and m may be nil.
func New(c *Config, st *store.Store, m Metrics) (*Probe, error) {
	if c.Log {
		logger = slog.Default().With("t", "probe")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	if m == nil {
		m = nopMetrics{}
	}

	logger.Debug("initialising probe", "strategy", Strategy)

	res, err := resolve(c, m)
	if err != nil {
		return nil, fmt.Errorf("error initialising the %s strategy: %w", Strategy, err)
	}

	return newProbe(c, res, newEnv(c), st, m), nil
}

func newProbe(c *Config, res *resolved, env *tuple.Env, st *store.Store, m Metrics) *Probe {
	if m == nil {
		m = nopMetrics{}
	}
	return &Probe{
		Config:  *c,
		res:     res,
		env:     env,
		store:   st,
		metrics: m,
		now:     time.Now,
	}
}

func newEnv(c *Config) *tuple.Env {
	support, err := ipv6.Detect(c.ProcRoot)
	if err != nil {
		logger.Warn("couldn't detect ipv6 support, assuming it's available", "err", err)
		support = ipv6.Full
	}
	support.TCP = support.TCP && c.CollectTCPv6
	support.UDP = support.UDP && c.CollectUDPv6
	logger.Info("ipv6 collection", "tcp", support.TCP, "udp", support.UDP)

	env := &tuple.Env{
		IPv6: support,
		Log:  ratelog.New(logger, c.DiagInterval, c.DiagBurst),
	}

	// Don't store a nil *Procfs in the interface!
	if pfs, err := netns.NewProcfs(c.ProcRoot); err != nil {
		logger.Warn("not resolving namespaces by pid", "err", err)
	} else {
		env.Netns = pfs
	}

	return env
}

func (p *Probe) String() string {
	return "probe"
}

// Layout returns the offsets the probe reads fields at.
func (p *Probe) Layout() *kernel.Layout {
	return p.res.Layout()
}

// Describe tells where the offsets came from.
func (p *Probe) Describe() string {
	return p.res.describe()
}

func (p *Probe) IPv6() ipv6.Support {
	return p.env.IPv6
}

// Handle extracts the tuple of ev. A tuple is returned even when it can't
// be completed, in which case the error tells what's missing and nothing
// is recorded in the store.
func (p *Probe) Handle(ev Event) (types.ConnTuple, error) {
	p.metrics.EventHandled()

	if ev.Memory == nil {
		return types.ConnTuple{}, fmt.Errorf("%w: no memory snapshot", ErrMalformedEvent)
	}

	acc := sock.New(p.res.reader(ev.Memory))

	sk := ev.Sock
	if sk == 0 && ev.Socket != 0 {
		sk = acc.SocketSk(ev.Socket)
	}

	var t types.ConnTuple
	if err := tuple.NewNormalizer(acc, p.env).Fill(&t, sk, ev.PidTgid, ev.Type); err != nil {
		p.metrics.NormalizeFailed(err)
		return t, err
	}
	p.metrics.TupleNormalized(t)

	var segsIn, segsOut uint32
	if tuple.GetProto(t) == types.ConnTypeTCP {
		segsIn, segsOut = acc.TCPSegmentCounts(sk)
	}

	if p.store != nil {
		p.store.Observe(t, segsIn, segsOut, p.now())
		p.metrics.SetConnections(p.store.Len())
	}

	logger.Log(context.Background(), types.LevelTrace, "handled event", "tuple", t, "segsIn", segsIn, "segsOut", segsOut)

	return t, nil
}

// Run handles events from src until it's exhausted or done is closed.
// Malformed events are skipped.
func (p *Probe) Run(done <-chan struct{}, src Source) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-done:
			logger.Debug("closing the event source")
			if err := src.Close(); err != nil {
				logger.Error("error closing the event source", "err", err)
			}
		case <-stop:
		}
	}()

	for {
		ev, err := src.Next()
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || errors.Is(err, io.EOF) {
				logger.Debug("event source exhausted", "err", err)
				return nil
			}
			if errors.Is(err, ErrMalformedEvent) {
				p.metrics.DecodeFailed()
				logger.Warn("skipping event", "err", err)
				continue
			}
			return fmt.Errorf("error reading events: %w", err)
		}

		if _, err := p.Handle(ev); err != nil {
			logger.Log(context.Background(), types.LevelTrace, "incomplete tuple", "pidTgid", ev.PidTgid, "err", err)
		}
	}
}
