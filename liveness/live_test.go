package liveness

import (
	"net/netip"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/types"
)

const testNetns = 4026531840

func tcpTuple(src, dst string) types.ConnTuple {
	s, d := netip.MustParseAddrPort(src), netip.MustParseAddrPort(dst)
	t := types.ConnTuple{Sport: s.Port(), Dport: d.Port(), Netns: testNetns, Metadata: types.ConnTypeTCP}
	t.SaddrH, t.SaddrL = types.AddrWords(s.Addr())
	t.DaddrH, t.DaddrL = types.AddrWords(d.Addr())
	family := types.IPv6
	if s.Addr().Is4() {
		family = types.IPv4
	}
	t.Metadata |= family.Metadata()
	return t
}

func TestKeeper(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Minute)
	old := store.Stats{LastSeen: cutoff.Add(-time.Second)}

	live := newLiveSet([]Socket{
		{Src: netip.MustParseAddrPort("10.0.0.1:40000"), Dst: netip.MustParseAddrPort("10.0.0.2:443")},
		{Src: netip.MustParseAddrPort("[::ffff:10.0.0.1]:40001"), Dst: netip.MustParseAddrPort("[::ffff:10.0.0.3]:443")},
		{Src: netip.MustParseAddrPort("[2001:db8::1]:5000"), Dst: netip.MustParseAddrPort("[2001:db8::2]:22")},
	})
	keep := live.keeper(testNetns, cutoff)

	udp := tcpTuple("10.0.0.1:5353", "10.0.0.2:53")
	udp.Metadata = types.ConnTypeUDP | types.ConnV4

	foreign := tcpTuple("10.0.0.1:1", "10.0.0.2:2")
	foreign.Netns = 1

	tests := []struct {
		name  string
		tuple types.ConnTuple
		stats store.Stats
		want  bool
	}{
		{"live v4", tcpTuple("10.0.0.1:40000", "10.0.0.2:443"), old, true},
		{"live mapped", tcpTuple("10.0.0.1:40001", "10.0.0.3:443"), old, true},
		{"live v6", tcpTuple("[2001:db8::1]:5000", "[2001:db8::2]:22"), old, true},
		{"gone", tcpTuple("10.0.0.1:40002", "10.0.0.2:443"), old, false},
		{"gone but recent", tcpTuple("10.0.0.1:40002", "10.0.0.2:443"), store.Stats{LastSeen: now}, true},
		{"udp", udp, old, true},
		{"other namespace", foreign, old, true},
		{"no family", types.ConnTuple{Netns: testNetns, Metadata: types.ConnTypeTCP}, old, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := keep(tc.tuple, tc.stats); got != tc.want {
				t.Errorf("got %t, want %t", got, tc.want)
			}
		})
	}
}

func TestPruneStore(t *testing.T) {
	st, err := store.New(&store.Config{Capacity: 8})
	if err != nil {
		t.Fatalf("error creating the store: %v", err)
	}

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alive := tcpTuple("10.0.0.1:40000", "10.0.0.2:443")
	dead := tcpTuple("10.0.0.1:40001", "10.0.0.2:443")
	st.Observe(alive, 0, 0, t0)
	st.Observe(dead, 0, 0, t0)

	live := newLiveSet([]Socket{{Src: netip.MustParseAddrPort("10.0.0.1:40000"), Dst: netip.MustParseAddrPort("10.0.0.2:443")}})
	if n := st.Prune(live.keeper(testNetns, t0.Add(time.Minute))); n != 1 {
		t.Errorf("pruned %d connections, want 1", n)
	}

	got := []types.ConnTuple{}
	for _, c := range st.Connections() {
		got = append(got, c.Tuple)
	}
	if diff := cmp.Diff([]types.ConnTuple{alive}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	if err := yaml.Unmarshal([]byte("log: true\n"), &c); err != nil {
		t.Fatalf("error parsing the config: %v", err)
	}

	if diff := cmp.Diff(Config{Log: true, Interval: 30 * time.Second}, c); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
