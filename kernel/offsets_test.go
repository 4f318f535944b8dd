package kernel

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOffsetTableResolve(t *testing.T) {
	table, err := LoadOffsetTable("testdata/offsets.yaml")
	if err != nil {
		t.Fatalf("error loading the offsets table: %v", err)
	}

	if len(table.Kernels) != 3 {
		t.Fatalf("got %d entries, want 3", len(table.Kernels))
	}

	tests := []struct {
		fp        Fingerprint
		wantSport uint32
		err       error
	}{
		{Fingerprint{"5.14.0-427.13.1.el9_4.x86_64", "x86_64", "0123456789abcdef"}, 782, nil},
		{Fingerprint{"5.14.0-427.13.1.el9_4.x86_64", "x86_64", ""}, 782, nil},
		{Fingerprint{"5.14.0-427.13.1.el9_4.x86_64", "x86_64", "fedcba9876543210"}, 798, nil},
		{Fingerprint{"5.14.0-70.el9.x86_64", "x86_64", ""}, 798, nil},
		{Fingerprint{"6.1.55", "aarch64", ""}, 814, nil},
		{Fingerprint{"6.1.55", "x86_64", ""}, 0, ErrNoOffsets},
		{Fingerprint{"4.18.0", "x86_64", ""}, 0, ErrNoOffsets},
	}

	for _, test := range tests {
		o, err := table.Resolve(test.fp)
		if !errors.Is(err, test.err) {
			t.Errorf("%s: got error %v, want %v", test.fp, err, test.err)
			continue
		}
		if o.Sport != test.wantSport {
			t.Errorf("%s: got sport offset %d, want %d", test.fp, o.Sport, test.wantSport)
		}
	}
}

func TestOffsetTableParse(t *testing.T) {
	raw := []byte(`
kernels:
  - release: "6.8.*"
    offsets: {saddr: 4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136, socketSk: 24}
`)
	table, err := ParseOffsetTable(raw)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}

	want := Offsets{Saddr: 4, Sport: 782, Dport: 12, Family: 16, DaddrIPv6: 56, Netns: 48, Ino: 136, SocketSk: 24}
	if diff := cmp.Diff(want, table.Kernels[0].Offsets); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestOffsetTableValidation(t *testing.T) {
	bad := map[string]string{
		"no kernels":  `{}`,
		"no release":  `kernels: [{offsets: {saddr: 4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136, socketSk: 24}}]`,
		"missing key": `kernels: [{release: "6.*", offsets: {saddr: 4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136}}]`,
		"extra key":   `kernels: [{release: "6.*", offsets: {saddr: 4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136, socketSk: 24, segs: 1}}]`,
		"negative":    `kernels: [{release: "6.*", offsets: {saddr: -4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136, socketSk: 24}}]`,
		"bad digest":  `kernels: [{release: "6.*", configDigest: "xyz", offsets: {saddr: 4, daddr: 0, sport: 782, dport: 12, family: 16, daddrIPv6: 56, netns: 48, ino: 136, socketSk: 24}}]`,
		"not yaml":    `kernels: [`,
	}

	for name, raw := range bad {
		if _, err := ParseOffsetTable([]byte(raw)); err == nil {
			t.Errorf("%s: table should've been rejected", name)
		}
	}
}

func TestOffsetTableBadPattern(t *testing.T) {
	table := OffsetTable{Kernels: []OffsetEntry{{Release: "[", Offsets: Offsets{}}}}
	if _, err := table.Resolve(Fingerprint{Release: "6.1"}); err == nil || errors.Is(err, ErrNoOffsets) {
		t.Errorf("expected a pattern error, got %v", err)
	}
}
