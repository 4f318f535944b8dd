package probe

import (
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Log bool `yaml:"log"`

	// Pinned BPF ring buffer the capture program pushes socket snapshots to.
	RingbufPath string `yaml:"ringbufPath"`

	// Wait for the ring buffer to be pinned instead of bailing out when
	// the capture program hasn't been loaded yet.
	WaitForRingbuf bool `yaml:"waitForRingbuf"`

	// BTF blob to relocate against instead of the running kernel's. Only
	// used by co-re builds.
	BTFPath string `yaml:"btfPath"`

	// Offsets table produced by the offset guesser. Only used by prebuilt
	// builds.
	OffsetsPath string `yaml:"offsetsPath"`

	// Where the host's /boot and /proc live, which differs from / when
	// running in a container.
	HostRoot string `yaml:"hostRoot"`
	ProcRoot string `yaml:"procRoot"`

	CollectTCPv6 bool `yaml:"collectTCPv6"`
	CollectUDPv6 bool `yaml:"collectUDPv6"`

	// Diagnostics for incomplete tuples are throttled per failure category.
	DiagInterval time.Duration `yaml:"diagInterval"`
	DiagBurst    int           `yaml:"diagBurst"`
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		Log:          true,
		RingbufPath:  "/sys/fs/bpf/conntuple/events",
		BTFPath:      "",
		OffsetsPath:  "/etc/conntuple/offsets.yaml",
		HostRoot:     "/",
		ProcRoot:     "/proc",
		CollectTCPv6: true,
		CollectUDPv6: true,
		DiagInterval: 10 * time.Second,
		DiagBurst:    5,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}
