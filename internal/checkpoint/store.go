package checkpoint

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCheckpoint = errors.New("checkpoint: duplicate closing timestamp")
	ErrOutOfOrder          = errors.New("checkpoint: closing timestamp not after latest")
)

// Store maps closing timestamps to checkpoints. Entries are only ever
// appended; iteration order is closing order.
type Store struct {
	order  []uint64
	byTime map[uint64]*Checkpoint
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byTime: make(map[uint64]*Checkpoint),
	}
}

// Insert adds a closed checkpoint. Keys must be unique and strictly
// increasing so that key order always matches closing order.
func (s *Store) Insert(cp *Checkpoint) error {
	if _, exists := s.byTime[cp.Timestamp]; exists {
		return fmt.Errorf("insert %d: %w", cp.Timestamp, ErrDuplicateCheckpoint)
	}
	if n := len(s.order); n > 0 && cp.Timestamp < s.order[n-1] {
		return fmt.Errorf("insert %d after %d: %w", cp.Timestamp, s.order[n-1], ErrOutOfOrder)
	}

	s.order = append(s.order, cp.Timestamp)
	s.byTime[cp.Timestamp] = cp
	return nil
}

// Get returns the checkpoint closed at ts.
func (s *Store) Get(ts uint64) (*Checkpoint, bool) {
	cp, ok := s.byTime[ts]
	return cp, ok
}

// Len returns the number of stored checkpoints.
func (s *Store) Len() int {
	return len(s.order)
}

// All returns every checkpoint in closing order.
func (s *Store) All() []*Checkpoint {
	out := make([]*Checkpoint, 0, len(s.order))
	for _, ts := range s.order {
		out = append(out, s.byTime[ts])
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		order:  append([]uint64(nil), s.order...),
		byTime: make(map[uint64]*Checkpoint, len(s.byTime)),
	}
	for ts, cp := range s.byTime {
		c.byTime[ts] = cp.clone()
	}
	return c
}
