package server

import (
	"sync"
	"sync/atomic"
)

// connectionSet is the server's live-connection set. It is a typed wrapper
// around sync.Map keyed by connection id, so every add, remove and
// iteration is synchronized by the set itself and callers never lock.
type connectionSet struct {
	m     sync.Map
	count atomic.Int64
}

// Add stores c under its id. It reports false if the id is already present.
func (s *connectionSet) Add(c *Connection) bool {
	if _, loaded := s.m.LoadOrStore(c.ID(), c); loaded {
		return false
	}

	s.count.Add(1)
	return true
}

// Remove deletes the connection with the given id. It reports whether the
// id was present; removing an absent id is a no-op.
func (s *connectionSet) Remove(id uint32) bool {
	if _, loaded := s.m.LoadAndDelete(id); !loaded {
		return false
	}

	s.count.Add(-1)
	return true
}

// Get returns the connection with the given id.
func (s *connectionSet) Get(id uint32) (*Connection, bool) {
	v, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}

	return v.(*Connection), true
}

// Len returns the number of live connections.
func (s *connectionSet) Len() int {
	return int(s.count.Load())
}

// Range calls f for each connection until f returns false. Connections may
// be added or removed while Range runs, including by f.
func (s *connectionSet) Range(f func(c *Connection) bool) {
	s.m.Range(func(_, v any) bool {
		return f(v.(*Connection))
	})
}
