package probe

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/goccy/go-yaml"

	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/types"
)

// Capture is the on-disk form of a list of events, e.g.:
//
//	events:
//	  - pidTgid: "0x2a0000002a"
//	    sock: "0xffff888001000000"
//	    type: tcp
//	    regions:
//	      - addr: "0xffff888001000000"
//	        data: 0a00000201000...
type Capture struct {
	Events []CapturedEvent `yaml:"events"`
}

type CapturedEvent struct {
	PidTgid Hex64            `yaml:"pidTgid"`
	Sock    Hex64            `yaml:"sock,omitempty"`
	Socket  Hex64            `yaml:"socket,omitempty"`
	Type    string           `yaml:"type"`
	Regions []CapturedRegion `yaml:"regions"`
}

type CapturedRegion struct {
	Addr Hex64 `yaml:"addr"`

	// Hex dump of the region's bytes as found in memory.
	Data string `yaml:"data"`
}

// Hex64 is a 64-bit value written as a quoted hex string. Kernel addresses
// don't fit in the signed integers YAML decoders reach for.
type Hex64 uint64

func (h *Hex64) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("bad 64-bit value %q: %w", s, err)
	}
	*h = Hex64(v)
	return nil
}

func (h Hex64) MarshalYAML() (any, error) {
	return fmt.Sprintf("%#x", uint64(h)), nil
}

func (c CapturedEvent) event() (Event, error) {
	proto, ok := types.ParseProtocol(c.Type)
	if !ok {
		return Event{}, fmt.Errorf("unknown connection type %q", c.Type)
	}

	img := &kernel.Image{}
	for i, r := range c.Regions {
		data, err := hex.DecodeString(r.Data)
		if err != nil {
			return Event{}, fmt.Errorf("region %d: %w", i, err)
		}
		if err := img.Map(uint64(r.Addr), data); err != nil {
			return Event{}, fmt.Errorf("region %d: %w", i, err)
		}
	}

	return Event{
		PidTgid: uint64(c.PidTgid),
		Sock:    uint64(c.Sock),
		Socket:  uint64(c.Socket),
		Type:    proto.Metadata(),
		Memory:  img,
	}, nil
}

// CaptureEvents turns events into their on-disk form. Only events backed
// by a *kernel.Image can be captured.
func CaptureEvents(events ...Event) (*Capture, error) {
	c := &Capture{Events: make([]CapturedEvent, 0, len(events))}
	for i, ev := range events {
		img, ok := ev.Memory.(*kernel.Image)
		if !ok {
			return nil, fmt.Errorf("event %d: can't capture memory of type %T", i, ev.Memory)
		}

		typ := types.UDP
		if ev.Type.IsTCP() {
			typ = types.TCP
		}

		ce := CapturedEvent{
			PidTgid: Hex64(ev.PidTgid),
			Sock:    Hex64(ev.Sock),
			Socket:  Hex64(ev.Socket),
			Type:    typ.String(),
		}
		for _, r := range img.Regions() {
			ce.Regions = append(ce.Regions, CapturedRegion{Addr: Hex64(r.Addr), Data: hex.EncodeToString(r.Data)})
		}
		c.Events = append(c.Events, ce)
	}
	return c, nil
}

func (c *Capture) Write(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(c)
}

// ReplaySource hands out the events of a capture in order.
type ReplaySource struct {
	events []Event
	next   int
	closed atomic.Bool
}

func ParseReplay(raw []byte) (*ReplaySource, error) {
	var c Capture
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("error parsing the capture: %w", err)
	}

	events := make([]Event, 0, len(c.Events))
	for i, ce := range c.Events {
		ev, err := ce.event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}

	return &ReplaySource{events: events}, nil
}

func LoadReplay(path string) (*ReplaySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the capture: %w", err)
	}
	return ParseReplay(raw)
}

func (s *ReplaySource) Len() int {
	return len(s.events)
}

func (s *ReplaySource) Next() (Event, error) {
	if s.closed.Load() {
		return Event{}, ErrSourceClosed
	}
	if s.next == len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *ReplaySource) Close() error {
	s.closed.Store(true)
	return nil
}
