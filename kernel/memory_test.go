package kernel

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestImageReadAt(t *testing.T) {
	img, err := NewImage(
		Region{Addr: 0x2000, Data: []byte{5, 6, 7, 8}},
		Region{Addr: 0x1000, Data: []byte{1, 2, 3, 4}},
	)
	if err != nil {
		t.Fatalf("error building image: %v", err)
	}

	if got := img.Regions(); got[0].Addr != 0x1000 || got[1].Addr != 0x2000 {
		t.Errorf("regions aren't sorted: %v", got)
	}

	tests := []struct {
		addr  uint64
		size  int
		want  []byte
		fault bool
	}{
		{0x1000, 4, []byte{1, 2, 3, 4}, false},
		{0x1001, 2, []byte{2, 3}, false},
		{0x2003, 1, []byte{8}, false},
		{0x1003, 2, nil, true},
		{0x0fff, 1, nil, true},
		{0x1004, 1, nil, true},
		{0x3000, 8, nil, true},
		{^uint64(0), 2, nil, true},
	}

	for _, test := range tests {
		buf := make([]byte, test.size)
		n, err := img.ReadAt(buf, test.addr)
		if test.fault {
			if !errors.Is(err, ErrFault) {
				t.Errorf("%#x+%d: expected a fault, got %v", test.addr, test.size, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%#x+%d: unexpected error: %v", test.addr, test.size, err)
			continue
		}
		if n != test.size {
			t.Errorf("%#x+%d: read %d bytes", test.addr, test.size, n)
		}
		if diff := cmp.Diff(test.want, buf); diff != "" {
			t.Errorf("%#x+%d: mismatch (-want +got):\n%s", test.addr, test.size, diff)
		}
	}
}

func TestImageMapRejects(t *testing.T) {
	img, err := NewImage(Region{Addr: 0x1000, Data: make([]byte, 16)})
	if err != nil {
		t.Fatalf("error building image: %v", err)
	}

	bad := []Region{
		{Addr: 0x1008, Data: make([]byte, 4)},
		{Addr: 0x0ffc, Data: make([]byte, 8)},
		{Addr: 0x0f00, Data: make([]byte, 0x200)},
		{Addr: 0x4000, Data: nil},
		{Addr: ^uint64(0) - 1, Data: make([]byte, 4)},
	}
	for _, r := range bad {
		if err := img.Map(r.Addr, r.Data); err == nil {
			t.Errorf("mapping %d bytes at %#x should've failed", len(r.Data), r.Addr)
		}
	}

	if err := img.Map(0x1010, []byte{1}); err != nil {
		t.Errorf("mapping an adjacent region failed: %v", err)
	}
	if n := len(img.Regions()); n != 2 {
		t.Errorf("got %d regions, want 2", n)
	}
}
