package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/structs"

	"github.com/scitags/conntuple/types"
)

// validTags encodes valid struct tags allowing for the control of
// marshalling of Connections.
var validTags = map[string]struct{}{
	// Only the bits identifying a connection plus the event count.
	"lean": {},
}

// Connection pairs a tuple with its stats.
type Connection struct {
	Tuple types.ConnTuple
	Stats Stats

	// Verbosity picks the struct tag used when marshalling.
	Verbosity string
}

// ID names a connection by the hash of its tuple.
func ID(t types.ConnTuple) string {
	return fmt.Sprintf("%016x", t.Hash())
}

type connectionView struct {
	ID        string    `structs:"id" lean:"id"`
	Proto     string    `structs:"proto" lean:"proto"`
	Family    string    `structs:"family" lean:"-"`
	Src       string    `structs:"src" lean:"src"`
	Dst       string    `structs:"dst" lean:"dst"`
	Netns     uint32    `structs:"netns" lean:"-"`
	Pid       uint32    `structs:"pid" lean:"-"`
	Events    uint64    `structs:"events" lean:"events"`
	SegsIn    uint32    `structs:"segsIn,omitempty" lean:"-"`
	SegsOut   uint32    `structs:"segsOut,omitempty" lean:"-"`
	FirstSeen time.Time `structs:"firstSeen,omitnested" lean:"-"`
	LastSeen  time.Time `structs:"lastSeen,omitnested" lean:"-"`
}

func (c Connection) view() *connectionView {
	f, _ := c.Tuple.Metadata.Family()
	return &connectionView{
		ID:        ID(c.Tuple),
		Proto:     c.Tuple.Protocol().String(),
		Family:    f.String(),
		Src:       c.Tuple.Src().String(),
		Dst:       c.Tuple.Dst().String(),
		Netns:     c.Tuple.Netns,
		Pid:       c.Tuple.Pid,
		Events:    c.Stats.Events,
		SegsIn:    c.Stats.SegsIn,
		SegsOut:   c.Stats.SegsOut,
		FirstSeen: c.Stats.FirstSeen,
		LastSeen:  c.Stats.LastSeen,
	}
}

// MarshalJSON implements the json.Marshaler interface leveraging structs to
// pick the fields that make it into the output based on Verbosity.
func (c Connection) MarshalJSON() ([]byte, error) {
	s := structs.New(c.view())

	if _, ok := validTags[c.Verbosity]; ok {
		s.TagName = c.Verbosity
	}

	return json.Marshal(s.Map())
}
