package checkpoint

import (
	"fmt"
)

// DefaultGap is the closure threshold in seconds.
const DefaultGap = 5

// Accumulator owns the open buffer and decides when it closes.
//
// It is not safe for concurrent use; the engine loop is its only caller.
type Accumulator struct {
	open  []ChatMessage
	last  uint64
	gap   uint64
	store *Store

	hash func([]ChatMessage) ([32]byte, error)
}

// NewAccumulator creates an accumulator whose last closure time is start.
// A gap of zero selects DefaultGap.
func NewAccumulator(store *Store, start, gap uint64) *Accumulator {
	if gap == 0 {
		gap = DefaultGap
	}
	return &Accumulator{
		last:  start,
		gap:   gap,
		store: store,
		hash:  HashMessages,
	}
}

// Append adds msg to the open buffer and closes the buffer when
// msg.Timestamp is strictly more than gap seconds after the last closure.
// The returned checkpoint is nil when nothing closed.
//
// On a hashing or insert failure the message stays in the open buffer,
// the store is unchanged and the last closure time is not advanced.
func (a *Accumulator) Append(msg ChatMessage) (*Checkpoint, error) {
	a.open = append(a.open, msg)

	// Guarded form of ts - last > gap; timestamps behind the last
	// closure never close a checkpoint.
	if msg.Timestamp <= a.last || msg.Timestamp-a.last <= a.gap {
		return nil, nil
	}

	hash, err := a.hash(a.open)
	if err != nil {
		return nil, fmt.Errorf("hash checkpoint %d: %w", msg.Timestamp, err)
	}

	cp := &Checkpoint{
		Timestamp: msg.Timestamp,
		Hash:      hash,
		Messages:  a.open,
	}
	if err := a.store.Insert(cp); err != nil {
		return nil, err
	}

	a.last = msg.Timestamp
	a.open = nil
	return cp, nil
}

// Pending returns a copy of the open buffer.
func (a *Accumulator) Pending() []ChatMessage {
	return append([]ChatMessage(nil), a.open...)
}

// LastCheckpoint returns the time of the most recent closure, or the
// start time if nothing has closed yet.
func (a *Accumulator) LastCheckpoint() uint64 {
	return a.last
}

// Gap returns the closure threshold in seconds.
func (a *Accumulator) Gap() uint64 {
	return a.gap
}
