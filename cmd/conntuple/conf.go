package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/scitags/conntuple/api"
	"github.com/scitags/conntuple/liveness"
	"github.com/scitags/conntuple/probe"
	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/telemetry"
)

// Config gathers the configuration of every component. The probe and the
// store are always there, the rest only runs when configured.
type Config struct {
	Probe *probe.Config `yaml:"probe"`
	Store *store.Config `yaml:"store"`

	Telemetry *telemetry.Config `yaml:"telemetry"`
	Api       *api.Config       `yaml:"api"`
	Liveness  *liveness.Config  `yaml:"liveness"`
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	if def.Probe == nil {
		def.Probe = defaults[probe.Config]()
	}
	if def.Store == nil {
		def.Store = defaults[store.Config]()
	}

	*c = Config(*def)

	return nil
}

// defaults returns a T carrying the defaults its UnmarshalYAML injects.
func defaults[T any]() *T {
	var t T
	if err := yaml.Unmarshal([]byte("{}"), &t); err != nil {
		panic(fmt.Sprintf("error defaulting %T: %v", t, err))
	}
	return &t
}

// ReadConf parses the configuration at path. An empty path yields the
// defaults.
func ReadConf(path string) (*Config, error) {
	r := []byte("{}")
	if path != "" {
		var err error
		r, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading the configuration file: %w", err)
		}
	}

	conf := Config{}
	if err := yaml.Unmarshal(r, &conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return &conf, nil
}
