package probe

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/josharian/native"

	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/kernel/kerneltest"
	"github.com/scitags/conntuple/store"
	"github.com/scitags/conntuple/tuple"
	"github.com/scitags/conntuple/types"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logger = slog.Default()
}

const (
	testSk      = 0xffff_8880_0100_0000
	testSk6     = 0xffff_8880_0110_0000
	testSocket  = 0xffff_8880_0300_0000
	testNet     = 0xffff_8880_0200_0000
	testNetns   = 4026531840
	testPidTgid = uint64(42)<<32 | 43

	afUnix  = 1
	afInet  = 2
	afInet6 = 10
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	events, decodeFailures, tuples int
	readFailures                   []kernel.Field
	categories                     []string
	connections                    int
}

func (m *fakeMetrics) ReadFailed(_ kernel.Strategy, f kernel.Field, _ error) {
	m.readFailures = append(m.readFailures, f)
}
func (m *fakeMetrics) EventHandled() { m.events++ }
func (m *fakeMetrics) DecodeFailed() { m.decodeFailures++ }
func (m *fakeMetrics) NormalizeFailed(err error) {
	m.categories = append(m.categories, tuple.Categories(err)...)
}
func (m *fakeMetrics) TupleNormalized(types.ConnTuple) { m.tuples++ }
func (m *fakeMetrics) SetConnections(n int)            { m.connections = n }

func newTestProbe(t *testing.T) (*Probe, *store.Store, *fakeMetrics) {
	t.Helper()

	st, err := store.New(&store.Config{Capacity: 16})
	if err != nil {
		t.Fatalf("error creating the store: %v", err)
	}

	m := &fakeMetrics{}
	env := &tuple.Env{IPv6: ipv6.Full}
	p := newProbe(&Config{}, testResolved(m), env, st, m)
	p.now = func() time.Time { return testTime }

	return p, st, m
}

func v4Sock() kerneltest.Sock {
	return kerneltest.Sock{
		Family:    afInet,
		Num:       40000,
		InetSport: 40000,
		Dport:     443,
		RcvSaddr:  netip.MustParseAddr("10.0.0.1"),
		Daddr:     netip.MustParseAddr("10.0.0.2"),
		InetSaddr: netip.MustParseAddr("10.0.0.1"),
		SegsIn:    10,
		SegsOut:   12,
		Net:       testNet,
	}
}

func v6Sock() kerneltest.Sock {
	return kerneltest.Sock{
		Family:     afInet6,
		Num:        5353,
		InetSport:  5353,
		Dport:      53,
		V6RcvSaddr: netip.MustParseAddr("2001:db8::1"),
		V6Daddr:    netip.MustParseAddr("2001:db8::2"),
		Net:        testNet,
	}
}

func layout() *kernel.Layout {
	return testResolved(nil).Layout()
}

func sockEvent(s kerneltest.Sock, typ types.Metadata) Event {
	b := kerneltest.NewBuilder(layout())
	s.Put(b, testSk)
	kerneltest.Net(b, testNet, testNetns)
	return Event{PidTgid: testPidTgid, Sock: testSk, Type: typ, Memory: b.Image()}
}

func socketEvent(s kerneltest.Sock, typ types.Metadata) Event {
	b := kerneltest.NewBuilder(layout())
	s.Put(b, testSk6)
	kerneltest.Net(b, testNet, testNetns)
	kerneltest.Socket(b, testSocket, testSk6)
	return Event{PidTgid: testPidTgid, Socket: testSocket, Type: typ, Memory: b.Image()}
}

func wantTuple(src, dst string, sport, dport uint16, md types.Metadata) types.ConnTuple {
	t := types.ConnTuple{Sport: sport, Dport: dport, Netns: testNetns, Pid: 42, Metadata: md}
	t.SaddrH, t.SaddrL = types.AddrWords(netip.MustParseAddr(src))
	t.DaddrH, t.DaddrL = types.AddrWords(netip.MustParseAddr(dst))
	return t
}

// Only the typed strategies know where tcp_sock keeps its counters.
func wantSegs(in, out uint32) (uint32, uint32) {
	if Strategy == kernel.Prebuilt {
		return 0, 0
	}
	return in, out
}

func TestHandle(t *testing.T) {
	p, st, m := newTestProbe(t)

	got, err := p.Handle(sockEvent(v4Sock(), types.ConnTypeTCP))
	if err != nil {
		t.Fatalf("error handling the event: %v", err)
	}

	want := wantTuple("10.0.0.1", "10.0.0.2", 40000, 443, types.ConnTypeTCP|types.ConnV4)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tuple mismatch (-want +got):\n%s", diff)
	}

	in, out := wantSegs(10, 12)
	wantStats := store.Stats{Events: 1, SegsIn: in, SegsOut: out, FirstSeen: testTime, LastSeen: testTime}
	stats, ok := st.Get(want)
	if !ok {
		t.Fatalf("tuple %s wasn't stored", want)
	}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	if m.events != 1 || m.tuples != 1 || m.connections != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestHandleThroughSocket(t *testing.T) {
	p, st, _ := newTestProbe(t)

	got, err := p.Handle(socketEvent(v6Sock(), types.ConnTypeUDP))
	if err != nil {
		t.Fatalf("error handling the event: %v", err)
	}

	want := wantTuple("2001:db8::1", "2001:db8::2", 5353, 53, types.ConnTypeUDP|types.ConnV6)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tuple mismatch (-want +got):\n%s", diff)
	}

	// UDP sockets have no segment counters.
	stats, ok := st.Get(want)
	if !ok {
		t.Fatalf("tuple %s wasn't stored", want)
	}
	if stats.SegsIn != 0 || stats.SegsOut != 0 {
		t.Errorf("got segments %d/%d for a UDP socket", stats.SegsIn, stats.SegsOut)
	}
}

func TestHandleAggregates(t *testing.T) {
	p, st, m := newTestProbe(t)

	ev := sockEvent(v4Sock(), types.ConnTypeTCP)
	for range 3 {
		if _, err := p.Handle(ev); err != nil {
			t.Fatalf("error handling the event: %v", err)
		}
	}

	if st.Len() != 1 {
		t.Errorf("got %d connections, want 1", st.Len())
	}
	stats, _ := st.Get(wantTuple("10.0.0.1", "10.0.0.2", 40000, 443, types.ConnTypeTCP|types.ConnV4))
	if stats.Events != 3 {
		t.Errorf("got %d events, want 3", stats.Events)
	}
	if m.events != 3 {
		t.Errorf("got %d handled events, want 3", m.events)
	}
}

func TestHandleIncomplete(t *testing.T) {
	tests := []struct {
		name     string
		sock     kerneltest.Sock
		wantErr  error
		wantCats []string
	}{
		{
			name:     "unknown family",
			sock:     kerneltest.Sock{Family: afUnix, Net: testNet},
			wantErr:  tuple.ErrUnknownFamily,
			wantCats: []string{"family"},
		},
		{
			name: "no ports",
			sock: func() kerneltest.Sock {
				s := v4Sock()
				s.Num, s.InetSport, s.Dport = 0, 0, 0
				return s
			}(),
			wantErr:  tuple.ErrPortUnset,
			wantCats: []string{"port"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, st, m := newTestProbe(t)

			_, err := p.Handle(sockEvent(tc.sock, types.ConnTypeTCP))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
			if st.Len() != 0 {
				t.Errorf("incomplete tuple was stored")
			}
			if diff := cmp.Diff(tc.wantCats, m.categories); diff != "" {
				t.Errorf("categories mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"sock", sockEvent(v4Sock(), types.ConnTypeTCP)},
		{"socket", socketEvent(v6Sock(), types.ConnTypeUDP)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.ev.MarshalBinary()
			if err != nil {
				t.Fatalf("error encoding the event: %v", err)
			}

			got, err := DecodeEvent(raw)
			if err != nil {
				t.Fatalf("error decoding the event: %v", err)
			}

			// The decoded event must not alias the sample.
			clear(raw)

			want := tc.ev.Memory.(*kernel.Image).Regions()
			if diff := cmp.Diff(want, got.Memory.(*kernel.Image).Regions()); diff != "" {
				t.Errorf("regions mismatch (-want +got):\n%s", diff)
			}

			got.Memory, tc.ev.Memory = nil, nil
			if diff := cmp.Diff(tc.ev, got); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	header := func(typ, n uint32) []byte {
		b := native.Endian.AppendUint64(nil, testPidTgid)
		b = native.Endian.AppendUint64(b, testSk)
		b = native.Endian.AppendUint32(b, typ)
		return native.Endian.AppendUint32(b, n)
	}
	region := func(b []byte, addr uint64, size uint32, data []byte) []byte {
		b = native.Endian.AppendUint64(b, addr)
		b = native.Endian.AppendUint32(b, size)
		b = native.Endian.AppendUint32(b, 0)
		return append(b, data...)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short header", header(uint32(types.ConnTypeTCP), 0)[:20]},
		{"bad type", header(0x42, 0)},
		{"both types", header(uint32(types.ConnTypeTCP|types.ConnTypeUDP), 0)},
		{"too many regions", header(uint32(types.ConnTypeTCP), maxRegions+1)},
		{"missing region", header(uint32(types.ConnTypeTCP), 1)},
		{"truncated region", region(header(uint32(types.ConnTypeTCP), 1), testSk, 16, make([]byte, 8))},
		{"empty region", region(header(uint32(types.ConnTypeTCP), 1), testSk, 0, nil)},
		{
			"overlapping regions",
			region(region(header(uint32(types.ConnTypeTCP), 2), testSk, 8, make([]byte, 8)), testSk+4, 8, make([]byte, 8)),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeEvent(tc.raw); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("got error %v, want %v", err, ErrMalformedEvent)
			}
		})
	}
}

// chanSource hands out whatever is sent on items until closed. Raw samples
// are decoded and errors are returned as is.
type chanSource struct {
	items  chan any
	closed chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{items: make(chan any), closed: make(chan struct{})}
}

func (s *chanSource) Next() (Event, error) {
	select {
	case <-s.closed:
		return Event{}, ErrSourceClosed
	case item := <-s.items:
		switch v := item.(type) {
		case Event:
			return v, nil
		case []byte:
			return DecodeEvent(v)
		default:
			return Event{}, v.(error)
		}
	}
}

func (s *chanSource) Close() error {
	close(s.closed)
	return nil
}

func TestRun(t *testing.T) {
	p, st, m := newTestProbe(t)

	raw, err := socketEvent(v6Sock(), types.ConnTypeUDP).MarshalBinary()
	if err != nil {
		t.Fatalf("error encoding the event: %v", err)
	}

	src := newChanSource()
	done := make(chan struct{})
	errC := make(chan error)
	go func() { errC <- p.Run(done, src) }()

	for _, item := range []any{
		sockEvent(v4Sock(), types.ConnTypeTCP),
		[]byte{0xde, 0xad},
		raw,
		sockEvent(kerneltest.Sock{Family: afUnix}, types.ConnTypeTCP),
	} {
		src.items <- item
	}
	close(done)

	select {
	case err := <-errC:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run didn't return after closing done")
	}

	if st.Len() != 2 {
		t.Errorf("got %d connections, want 2", st.Len())
	}
	if m.events != 3 || m.decodeFailures != 1 {
		t.Errorf("got %d events and %d decode failures, want 3 and 1", m.events, m.decodeFailures)
	}
}

func TestRunSourceError(t *testing.T) {
	p, _, _ := newTestProbe(t)

	src := newChanSource()
	boom := errors.New("boom")
	go func() { src.items <- boom }()

	if err := p.Run(make(chan struct{}), src); !errors.Is(err, boom) {
		t.Errorf("got error %v, want %v", err, boom)
	}
}

func TestReplay(t *testing.T) {
	events := []Event{
		sockEvent(v4Sock(), types.ConnTypeTCP),
		socketEvent(v6Sock(), types.ConnTypeUDP),
	}

	c, err := CaptureEvents(events...)
	if err != nil {
		t.Fatalf("error capturing events: %v", err)
	}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("error writing the capture: %v", err)
	}

	src, err := ParseReplay(buf.Bytes())
	if err != nil {
		t.Fatalf("error parsing the capture: %v\n%s", err, buf.String())
	}
	if src.Len() != len(events) {
		t.Fatalf("got %d events, want %d", src.Len(), len(events))
	}

	p, st, _ := newTestProbe(t)
	if err := p.Run(make(chan struct{}), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("got %d connections, want 2", st.Len())
	}

	if _, err := src.Next(); err != io.EOF {
		t.Errorf("got error %v after the last event, want io.EOF", err)
	}
	src.Close()
	if _, err := src.Next(); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("got error %v after closing, want %v", err, ErrSourceClosed)
	}
}

func TestReplayFile(t *testing.T) {
	if native.IsBigEndian {
		t.Skip("the capture was taken on a little-endian host")
	}

	src, err := LoadReplay("testdata/capture.yaml")
	if err != nil {
		t.Fatalf("error loading the capture: %v", err)
	}

	p, st, m := newTestProbe(t)
	if err := p.Run(make(chan struct{}), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []types.ConnTuple{
		wantTuple("10.0.0.1", "10.0.0.2", 40000, 443, types.ConnTypeTCP|types.ConnV4),
		wantTuple("2001:db8::1", "2001:db8::2", 5353, 53, types.ConnTypeUDP|types.ConnV6),
	}
	want[1].Pid = 77

	for _, w := range want {
		if _, ok := st.Get(w); !ok {
			t.Errorf("tuple %s wasn't stored", w)
		}
	}

	in, out := wantSegs(10, 12)
	if stats, _ := st.Get(want[0]); stats.SegsIn != in || stats.SegsOut != out {
		t.Errorf("got segments %d/%d, want %d/%d", stats.SegsIn, stats.SegsOut, in, out)
	}

	if diff := cmp.Diff([]string{"family"}, m.categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestBadReplay(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad type", "events: [{pidTgid: '0x1', sock: '0x10', type: sctp}]"},
		{"bad address", "events: [{pidTgid: '0x1', sock: 'nope', type: tcp}]"},
		{"bad data", "events: [{pidTgid: '0x1', sock: '0x10', type: tcp, regions: [{addr: '0x10', data: zz}]}]"},
		{"overlap", "events: [{pidTgid: '0x1', sock: '0x10', type: tcp, regions: [{addr: '0x10', data: '0000'}, {addr: '0x11', data: '00'}]}]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseReplay([]byte(tc.raw)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	if err := yaml.Unmarshal([]byte("collectUDPv6: false\ndiagInterval: 1m\n"), &c); err != nil {
		t.Fatalf("error parsing the config: %v", err)
	}

	want := Config{
		Log:          true,
		RingbufPath:  "/sys/fs/bpf/conntuple/events",
		OffsetsPath:  "/etc/conntuple/offsets.yaml",
		HostRoot:     "/",
		ProcRoot:     "/proc",
		CollectTCPv6: true,
		CollectUDPv6: false,
		DiagInterval: time.Minute,
		DiagBurst:    5,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestRequiredFields(t *testing.T) {
	ff := RequiredFields()
	for _, f := range []kernel.Field{kernel.SkFamily, kernel.SkNet, kernel.NetNsInum, kernel.SocketSk} {
		found := false
		for _, g := range ff {
			found = found || f == g
		}
		if !found {
			t.Errorf("%s isn't required", f)
		}
	}
}
