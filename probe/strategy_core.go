//go:build !runtime && !prebuilt

package probe

import (
	"fmt"

	"github.com/scitags/conntuple/kernel"
)

// Strategy is the read strategy this binary was built with.
const Strategy = kernel.CORE

// Reader is the kernel reader backing Strategy.
type Reader = kernel.Relocated

type resolved struct {
	layout *kernel.Layout
	source string
}

func resolve(c *Config, _ kernel.Observer) (*resolved, error) {
	l, err := kernel.LoadKernelLayout(c.BTFPath, RequiredFields()...)
	if err != nil {
		return nil, fmt.Errorf("error relocating against BTF: %w", err)
	}

	source := c.BTFPath
	if source == "" {
		source = "vmlinux"
	}
	logger.Info("relocated kernel fields", "btf", source, "fields", len(l.Entries()))

	return &resolved{layout: l, source: source}, nil
}

func (r *resolved) reader(mem kernel.Memory) Reader {
	return kernel.NewRelocated(mem, r.layout)
}

func (r *resolved) Layout() *kernel.Layout { return r.layout }

func (r *resolved) describe() string { return "btf:" + r.source }
