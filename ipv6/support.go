package ipv6

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/prometheus/procfs"
)

// Support tells which transports can carry IPv6 on this system.
type Support struct {
	TCP bool `json:"tcp"`
	UDP bool `json:"udp"`
}

// Enabled reports whether any transport carries IPv6.
func (s Support) Enabled() bool { return s.TCP || s.UDP }

// Full assumes IPv6 is usable over every transport.
var Full = Support{TCP: true, UDP: true}

// Detect inspects the procfs mounted at procRoot. IPv6 is considered
// disabled when net.ipv6.conf.all.disable_ipv6 is set or when the kernel
// doesn't expose the per-transport socket tables at all.
func Detect(procRoot string) (Support, error) {
	pfs, err := procfs.NewFS(procRoot)
	if err != nil {
		return Support{}, fmt.Errorf("error opening procfs at %s: %w", procRoot, err)
	}

	disabled, err := pfs.SysctlInts("net.ipv6.conf.all.disable_ipv6")
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no ipv6 sysctls, ipv6 is not available", "procRoot", procRoot)
		return Support{}, nil
	case err != nil:
		return Support{}, fmt.Errorf("error reading disable_ipv6: %w", err)
	case len(disabled) == 1 && disabled[0] == 1:
		slog.Debug("ipv6 is disabled system-wide")
		return Support{}, nil
	}

	s := Support{}
	if _, err := pfs.NetTCP6(); err == nil {
		s.TCP = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Support{}, fmt.Errorf("error reading the tcp6 table: %w", err)
	}

	if _, err := pfs.NetUDP6(); err == nil {
		s.UDP = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Support{}, fmt.Errorf("error reading the udp6 table: %w", err)
	}

	slog.Debug("detected ipv6 support", "tcp", s.TCP, "udp", s.UDP)
	return s, nil
}
