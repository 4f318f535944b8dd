//go:build prebuilt && !runtime

package probe

import (
	"fmt"

	"github.com/scitags/conntuple/kernel"
)

// Strategy is the read strategy this binary was built with.
const Strategy = kernel.Prebuilt

// Reader is the kernel reader backing Strategy.
type Reader = kernel.Raw

type resolved struct {
	offsets kernel.Offsets
	fp      kernel.Fingerprint
	obs     kernel.Observer
}

func resolve(c *Config, obs kernel.Observer) (*resolved, error) {
	table, err := kernel.LoadOffsetTable(c.OffsetsPath)
	if err != nil {
		return nil, err
	}

	fp, err := kernel.HostFingerprint(c.HostRoot)
	if err != nil {
		return nil, fmt.Errorf("error fingerprinting the kernel: %w", err)
	}

	offsets, err := table.Resolve(fp)
	if err != nil {
		return nil, err
	}
	logger.Info("resolved offsets", "fingerprint", fp, "table", c.OffsetsPath)

	return &resolved{offsets: offsets, fp: fp, obs: obs}, nil
}

func (r *resolved) reader(mem kernel.Memory) Reader {
	return kernel.NewRaw(mem, r.offsets, r.obs)
}

func (r *resolved) Layout() *kernel.Layout { return r.offsets.Layout() }

func (r *resolved) describe() string { return r.fp.String() }
