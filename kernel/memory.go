package kernel

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNilPointer is returned when reading through a NULL object pointer.
	ErrNilPointer = errors.New("nil kernel pointer")

	// ErrFault is returned when the requested byte range isn't accessible.
	ErrFault = errors.New("kernel memory fault")

	// ErrFieldUnavailable is returned when the active strategy has no way
	// of locating a field.
	ErrFieldUnavailable = errors.New("field unavailable")
)

// Memory is a window onto kernel memory. Implementations must either fill
// all of p or return an error.
type Memory interface {
	ReadAt(p []byte, addr uint64) (int, error)
}

// Region is a contiguous range of kernel memory.
type Region struct {
	Addr uint64
	Data []byte
}

func (r Region) end() uint64 { return r.Addr + uint64(len(r.Data)) }

// Image is a sparse snapshot of kernel memory made up of non-overlapping
// regions. Reads must fall entirely within a single region. An Image is
// not safe for concurrent mutation, but concurrent reads are fine once
// it's been populated.
type Image struct {
	regions []Region
}

func NewImage(regions ...Region) (*Image, error) {
	img := &Image{regions: make([]Region, 0, len(regions))}
	for _, r := range regions {
		if err := img.Map(r.Addr, r.Data); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// Map adds a region to the image. The data slice is retained.
func (m *Image) Map(addr uint64, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("refusing to map an empty region at %#x", addr)
	}

	r := Region{Addr: addr, Data: data}
	if r.end() < r.Addr {
		return fmt.Errorf("region at %#x with length %d wraps around", addr, len(data))
	}

	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].Addr >= addr })
	if i > 0 && m.regions[i-1].end() > addr {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, m.regions[i-1].Addr)
	}
	if i < len(m.regions) && m.regions[i].Addr < r.end() {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, m.regions[i].Addr)
	}

	m.regions = append(m.regions, Region{})
	copy(m.regions[i+1:], m.regions[i:])
	m.regions[i] = r

	return nil
}

// Regions returns the mapped regions sorted by address.
func (m *Image) Regions() []Region {
	return m.regions
}

func (m *Image) ReadAt(p []byte, addr uint64) (int, error) {
	end := addr + uint64(len(p))
	if end < addr {
		return 0, fmt.Errorf("%w: range at %#x wraps around", ErrFault, addr)
	}

	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].end() > addr })
	if i == len(m.regions) || m.regions[i].Addr > addr || m.regions[i].end() < end {
		return 0, fmt.Errorf("%w: [%#x, %#x) is not mapped", ErrFault, addr, end)
	}

	r := m.regions[i]
	return copy(p, r.Data[addr-r.Addr:]), nil
}
