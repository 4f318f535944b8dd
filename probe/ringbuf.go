//go:build linux

package probe

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
)

// RingbufSource reads events off the ring buffer the capture program
// pinned to the BPF filesystem.
type RingbufSource struct {
	m      *ebpf.Map
	reader *ringbuf.Reader
	rec    ringbuf.Record
}

func OpenRingbuf(path string) (*RingbufSource, error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("error loading the pinned ring buffer %s: %w", path, err)
	}

	if m.Type() != ebpf.RingBuf {
		m.Close()
		return nil, fmt.Errorf("%s is a %s, not a ring buffer", path, m.Type())
	}

	reader, err := ringbuf.NewReader(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("error opening the ring buffer reader: %w", err)
	}

	logger.Debug("opened ring buffer", "path", path, "size", m.MaxEntries())

	return &RingbufSource{m: m, reader: reader}, nil
}

func (s *RingbufSource) Next() (Event, error) {
	if err := s.reader.ReadInto(&s.rec); err != nil {
		if errors.Is(err, ringbuf.ErrClosed) {
			return Event{}, ErrSourceClosed
		}
		return Event{}, fmt.Errorf("error reading from the ring buffer: %w", err)
	}

	// The record's buffer is reused by the next read.
	return DecodeEvent(s.rec.RawSample)
}

func (s *RingbufSource) Close() error {
	err := s.reader.Close()
	return errors.Join(err, s.m.Close())
}
