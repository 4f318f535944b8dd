//go:build !linux

package liveness

import (
	"errors"
	"time"

	"github.com/scitags/conntuple/store"
)

type Liveness struct {
	Config
}

func New(c *Config, st *store.Store, netns uint32) (*Liveness, error) {
	return nil, errors.New("socket dumps are only available on linux")
}

func (l *Liveness) Sockets() ([]Socket, error)       { return nil, nil }
func (l *Liveness) Prune(now time.Time) (int, error) { return 0, nil }
func (l *Liveness) Run(done <-chan struct{})         { <-done }
func (l *Liveness) Cleanup() error                   { return nil }
