package kernel

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
)

// layoutConfigs lists the kconfig options known to shift members of
// struct sock and friends around.
var layoutConfigs = []string{
	"CONFIG_64BIT",
	"CONFIG_SMP",
	"CONFIG_NET_NS",
	"CONFIG_IPV6",
	"CONFIG_LOCKDEP",
	"CONFIG_DEBUG_LOCK_ALLOC",
	"CONFIG_CGROUP_NET_CLASSID",
	"CONFIG_XFRM",
	"CONFIG_SECURITY",
}

// Fingerprint identifies a kernel build as far as structure layouts go.
type Fingerprint struct {
	Release      string `yaml:"release" json:"release"`
	Machine      string `yaml:"machine" json:"machine"`
	ConfigDigest string `yaml:"configDigest,omitempty" json:"configDigest,omitempty"`
}

func (fp Fingerprint) String() string {
	if fp.ConfigDigest == "" {
		return fp.Release + "/" + fp.Machine
	}
	return fp.Release + "/" + fp.Machine + "/" + fp.ConfigDigest
}

// ConfigDigest condenses the layout-relevant options in config into a
// stable hex string. Options that are unset don't contribute.
func ConfigDigest(config map[string]string) string {
	kv := []string{}
	for _, k := range layoutConfigs {
		if v, ok := config[k]; ok {
			kv = append(kv, k+"="+v)
		}
	}
	sort.Strings(kv)

	h := fnv.New64a()
	h.Write([]byte(strings.Join(kv, "\n")))
	return fmt.Sprintf("%016x", h.Sum64())
}

// HostFingerprint fingerprints the running kernel. The kconfig is looked up
// below root; failing to find one leaves ConfigDigest empty.
func HostFingerprint(root string) (Fingerprint, error) {
	release, machine, err := Uname()
	if err != nil {
		return Fingerprint{}, err
	}

	fp := Fingerprint{Release: release, Machine: machine}

	f, err := FindKConfig(root, release)
	if err != nil {
		slog.Warn("couldn't find the kernel's kconfig, fingerprinting without it", "err", err)
		return fp, nil
	}
	defer f.Close()

	filter := make(map[string]struct{}, len(layoutConfigs))
	for _, k := range layoutConfigs {
		filter[k] = struct{}{}
	}

	config, err := ParseKConfig(f, filter)
	if err != nil {
		slog.Warn("couldn't parse the kernel's kconfig, fingerprinting without it", "err", err)
		return fp, nil
	}

	fp.ConfigDigest = ConfigDigest(config)
	return fp, nil
}
