package kernel

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrNoOffsets is returned when an offsets table has no entry for a kernel.
var ErrNoOffsets = errors.New("no offsets for kernel")

const offsetsTableSchemaURL = "offsets-table.schema.json"

//go:embed schema/offsets-table.schema.json
var offsetsTableSchema []byte

var compileOffsetsTableSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(offsetsTableSchema))
	if err != nil {
		return nil, fmt.Errorf("error parsing the embedded schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(offsetsTableSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("error adding the embedded schema: %w", err)
	}

	return c.Compile(offsetsTableSchemaURL)
})

// OffsetTable is the output of the offline offset guesser: per kernel
// build, the offsets the prebuilt strategy should read at.
type OffsetTable struct {
	Kernels []OffsetEntry `yaml:"kernels"`
}

// OffsetEntry applies to kernels whose release matches the Release glob
// (see path.Match) and, when set, whose machine and config digest match.
type OffsetEntry struct {
	Release      string  `yaml:"release"`
	Machine      string  `yaml:"machine,omitempty"`
	ConfigDigest string  `yaml:"configDigest,omitempty"`
	Offsets      Offsets `yaml:"offsets"`
}

func (e OffsetEntry) matches(fp Fingerprint) (bool, error) {
	ok, err := path.Match(e.Release, fp.Release)
	if err != nil {
		return false, fmt.Errorf("bad release pattern %q: %w", e.Release, err)
	}
	if !ok {
		return false, nil
	}

	if e.Machine != "" && e.Machine != fp.Machine {
		return false, nil
	}

	if e.ConfigDigest != "" && fp.ConfigDigest != "" && e.ConfigDigest != fp.ConfigDigest {
		return false, nil
	}

	return true, nil
}

// ValidateOffsetTable checks raw YAML (or JSON) against the table schema.
func ValidateOffsetTable(raw []byte) error {
	sch, err := compileOffsetsTableSchema()
	if err != nil {
		return err
	}

	j, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return fmt.Errorf("error converting the table to JSON: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(j))
	if err != nil {
		return fmt.Errorf("error parsing the table: %w", err)
	}

	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid offsets table: %w", err)
	}

	return nil
}

func ParseOffsetTable(raw []byte) (*OffsetTable, error) {
	if err := ValidateOffsetTable(raw); err != nil {
		return nil, err
	}

	t := OffsetTable{}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("error unmarshaling the offsets table: %w", err)
	}

	return &t, nil
}

func LoadOffsetTable(path string) (*OffsetTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the offsets table: %w", err)
	}
	return ParseOffsetTable(raw)
}

// Resolve returns the offsets of the first entry matching fp.
func (t *OffsetTable) Resolve(fp Fingerprint) (Offsets, error) {
	for i, e := range t.Kernels {
		ok, err := e.matches(fp)
		if err != nil {
			return Offsets{}, fmt.Errorf("entry %d: %w", i, err)
		}
		if !ok {
			continue
		}

		if e.ConfigDigest != "" && fp.ConfigDigest == "" {
			slog.Warn("matching offsets without a config digest to compare against", "entry", i, "release", e.Release)
		}
		slog.Debug("resolved offsets", "entry", i, "fingerprint", fp, "offsets", e.Offsets)
		return e.Offsets, nil
	}

	return Offsets{}, fmt.Errorf("%w %s", ErrNoOffsets, fp)
}
