// Package store aggregates per-connection statistics keyed by tuple.
package store

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/scitags/conntuple/types"
)

var logger *slog.Logger

// Stats is what's known about a connection.
type Stats struct {
	Events uint64

	// Latest segment counters read off the socket. They're cumulative in
	// the kernel, so we only keep the last reading.
	SegsIn  uint32
	SegsOut uint32

	FirstSeen time.Time
	LastSeen  time.Time
}

// Store is a bounded LRU of Stats. Two tuples designate the same connection
// iff their bit patterns match.
type Store struct {
	Config

	// We could consider using the thread-safe lru.Cache, but updates are
	// read-modify-write anyway...
	sync.Mutex
	cache     *simplelru.LRU[types.ConnTuple, Stats]
	evictions uint64

	// Removals through Prune aren't evictions.
	pruning bool
}

func New(c *Config) (*Store, error) {
	if c.Log {
		logger = slog.Default().With("t", "store")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{Config: *c}

	cache, err := simplelru.NewLRU(c.Capacity, func(t types.ConnTuple, _ Stats) {
		if s.pruning {
			return
		}
		s.evictions++
		logger.Debug("evicted connection", "tuple", t)
	})
	if err != nil {
		return nil, fmt.Errorf("error creating the store: %w", err)
	}
	s.cache = cache

	return s, nil
}

// Observe records an event for t at ts.
func (s *Store) Observe(t types.ConnTuple, segsIn, segsOut uint32, ts time.Time) Stats {
	s.Lock()
	defer s.Unlock()

	st, ok := s.cache.Get(t)
	if !ok {
		st.FirstSeen = ts
		logger.Debug("new connection", "tuple", t)
	}

	st.Events++
	st.LastSeen = ts
	if segsIn != 0 || segsOut != 0 {
		st.SegsIn, st.SegsOut = segsIn, segsOut
	}

	s.cache.Add(t, st)
	return st
}

func (s *Store) Get(t types.ConnTuple) (Stats, bool) {
	s.Lock()
	defer s.Unlock()
	return s.cache.Peek(t)
}

func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()
	return s.cache.Len()
}

func (s *Store) Evictions() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.evictions
}

// Connections returns every connection, most recently observed first.
func (s *Store) Connections() []Connection {
	s.Lock()
	keys := s.cache.Keys()
	cc := make([]Connection, 0, len(keys))
	for _, k := range keys {
		st, _ := s.cache.Peek(k)
		cc = append(cc, Connection{Tuple: k, Stats: st})
	}
	s.Unlock()

	slices.Reverse(cc)
	return cc
}

// Prune drops every connection keep returns false for and returns how many
// were dropped.
func (s *Store) Prune(keep func(types.ConnTuple, Stats) bool) int {
	s.Lock()
	defer s.Unlock()

	s.pruning = true
	defer func() { s.pruning = false }()

	n := 0
	for _, k := range s.cache.Keys() {
		st, _ := s.cache.Peek(k)
		if keep(k, st) {
			continue
		}
		s.cache.Remove(k)
		n++
	}

	if n > 0 {
		logger.Debug("pruned connections", "n", n, "left", s.cache.Len())
	}
	return n
}
