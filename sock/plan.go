package sock

import (
	"fmt"

	"github.com/scitags/conntuple/kernel"
)

// Candidate is one place a logical field can be read from.
type Candidate struct {
	Field kernel.Field

	// NetOrder marks members the kernel keeps in network byte order. Their
	// values are converted to host order before being handed out.
	NetOrder bool
}

func (c Candidate) String() string {
	if c.NetOrder {
		return c.Field.String() + "(net)"
	}
	return c.Field.String()
}

// Chain is an ordered list of candidates. Candidates are tried in order and
// the first one yielding a non-zero value wins; a failed read counts as a
// zero. A chain where every candidate yields zero resolves to zero.
type Chain []Candidate

// Plan holds the chain of every logical field for one strategy.
type Plan struct {
	Family Chain

	Sport Chain
	Dport Chain

	SaddrV4 Chain
	DaddrV4 Chain

	SaddrV6 Chain
	DaddrV6 Chain

	// Best effort, empty chains always resolve to zero.
	SegsIn  Chain
	SegsOut Chain

	SocketSk Chain
}

var typedPlan = Plan{
	Family: Chain{{Field: kernel.SkFamily}},

	// skc_num is only set once the socket is bound.
	Sport: Chain{{Field: kernel.SkNum}, {Field: kernel.InetSport, NetOrder: true}},
	Dport: Chain{{Field: kernel.SkDport, NetOrder: true}, {Field: kernel.InetDport, NetOrder: true}},

	SaddrV4: Chain{{Field: kernel.SkRcvSaddr, NetOrder: true}, {Field: kernel.InetSaddr, NetOrder: true}},
	DaddrV4: Chain{{Field: kernel.SkDaddr, NetOrder: true}, {Field: kernel.InetDaddr, NetOrder: true}},

	SaddrV6: Chain{{Field: kernel.SkV6RcvSaddr}},
	DaddrV6: Chain{{Field: kernel.SkV6Daddr}},

	SegsIn:  Chain{{Field: kernel.TCPSegsIn}},
	SegsOut: Chain{{Field: kernel.TCPSegsOut}},

	SocketSk: Chain{{Field: kernel.SocketSk}},
}

// The offset guesser has no clue about inet_sock's copies of the addresses
// nor about tcp_sock.
var rawPlan = Plan{
	Family: Chain{{Field: kernel.SkFamily}},

	Sport: Chain{{Field: kernel.SkNum}, {Field: kernel.InetSport, NetOrder: true}},
	Dport: Chain{{Field: kernel.SkDport, NetOrder: true}},

	SaddrV4: Chain{{Field: kernel.SkRcvSaddr, NetOrder: true}},
	DaddrV4: Chain{{Field: kernel.SkDaddr, NetOrder: true}},

	SaddrV6: Chain{{Field: kernel.SkV6RcvSaddr}},
	DaddrV6: Chain{{Field: kernel.SkV6Daddr}},

	SocketSk: Chain{{Field: kernel.SocketSk}},
}

var plans = map[kernel.Strategy]Plan{
	kernel.Runtime:  typedPlan,
	kernel.CORE:     typedPlan,
	kernel.Prebuilt: rawPlan,
}

// PlanFor returns the read plan of strategy s.
func PlanFor(s kernel.Strategy) Plan {
	p, ok := plans[s]
	if !ok {
		panic(fmt.Sprintf("no read plan for strategy %s", s))
	}
	return p
}

// Fields returns every field the plan may read.
func (p Plan) Fields() []kernel.Field {
	seen := map[kernel.Field]bool{}
	ff := []kernel.Field{}
	for _, c := range []Chain{p.Family, p.Sport, p.Dport, p.SaddrV4, p.DaddrV4, p.SaddrV6, p.DaddrV6, p.SegsIn, p.SegsOut, p.SocketSk} {
		for _, cand := range c {
			if !seen[cand.Field] {
				seen[cand.Field] = true
				ff = append(ff, cand.Field)
			}
		}
	}
	return ff
}
