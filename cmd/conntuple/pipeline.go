package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/scitags/conntuple/api"
	"github.com/scitags/conntuple/liveness"
	"github.com/scitags/conntuple/netns"
	"github.com/scitags/conntuple/probe"
	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/telemetry"
)

// pipeline wires the probe to the store and the outer surfaces.
type pipeline struct {
	telemetry *telemetry.Telemetry
	store     *store.Store
	probe     *probe.Probe
	api       *api.API
	liveness  *liveness.Liveness
}

func newPipeline(c *Config) (*pipeline, error) {
	p := &pipeline{}

	// Keep the interface nil when there's no telemetry!
	var metrics probe.Metrics
	if c.Telemetry != nil {
		t, err := telemetry.New(c.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("error initialising telemetry: %w", err)
		}
		p.telemetry, metrics = t, t
	}

	st, err := store.New(c.Store)
	if err != nil {
		return nil, err
	}
	p.store = st

	pr, err := probe.New(c.Probe, st, metrics)
	if err != nil {
		return nil, err
	}
	p.probe = pr

	if c.Api != nil {
		p.api = api.New(c.Api, st, strategyInfo(pr))
	}

	if c.Liveness != nil {
		pfs, err := netns.NewProcfs(c.Probe.ProcRoot)
		if err != nil {
			return nil, err
		}
		self, err := pfs.Self()
		if err != nil {
			return nil, fmt.Errorf("error finding our namespace: %w", err)
		}

		l, err := liveness.New(c.Liveness, st, self)
		if err != nil {
			return nil, fmt.Errorf("error initialising the liveness checker: %w", err)
		}
		p.liveness = l
	}

	return p, nil
}

func strategyInfo(p *probe.Probe) api.StrategyInfo {
	return api.StrategyInfo{
		Strategy:    probe.Strategy.String(),
		Fingerprint: p.Describe(),
		IPv6:        p.IPv6(),
		Layout:      p.Layout().Map(),
	}
}

// start launches the auxiliary components. They stop once done is closed
// or cleanup is called.
func (p *pipeline) start(done <-chan struct{}) {
	if p.telemetry != nil {
		p.telemetry.Run()
	}
	if p.api != nil {
		p.api.Run()
	}
	if p.liveness != nil {
		go p.liveness.Run(done)
	}
}

func (p *pipeline) cleanup() {
	errs := []error{}
	if p.api != nil {
		errs = append(errs, p.api.Cleanup())
	}
	if p.telemetry != nil {
		errs = append(errs, p.telemetry.Cleanup())
	}
	if p.liveness != nil {
		errs = append(errs, p.liveness.Cleanup())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("error cleaning up", "err", err)
	}
}
