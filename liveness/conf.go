package liveness

import (
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Log bool `yaml:"log"`

	// How often the kernel's socket tables are dumped. Connections observed
	// within the last interval are never pruned.
	Interval time.Duration `yaml:"interval"`
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		Log:      false,
		Interval: 30 * time.Second,
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}
