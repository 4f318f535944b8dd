//go:build !linux

package probe

import "errors"

type RingbufSource struct{}

func OpenRingbuf(path string) (*RingbufSource, error) {
	return nil, errors.New("ring buffers are only available on linux")
}

func (s *RingbufSource) Next() (Event, error) {
	return Event{}, ErrSourceClosed
}

func (s *RingbufSource) Close() error {
	return nil
}
