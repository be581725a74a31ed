package checkpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertAndGet(t *testing.T) {
	s := NewStore()
	require.Empty(t, s.All())

	cp := &Checkpoint{Timestamp: 10, Messages: []ChatMessage{{Text: "a", Timestamp: 10}}}
	require.NoError(t, s.Insert(cp))

	got, ok := s.Get(10)
	require.True(t, ok)
	assert.Same(t, cp, got)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get(11)
	assert.False(t, ok)
}

func TestStoreRejectsDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(&Checkpoint{Timestamp: 10}))

	err := s.Insert(&Checkpoint{Timestamp: 10})
	assert.True(t, errors.Is(err, ErrDuplicateCheckpoint))
	assert.Equal(t, 1, s.Len())
}

func TestStoreRejectsOutOfOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(&Checkpoint{Timestamp: 20}))

	err := s.Insert(&Checkpoint{Timestamp: 15})
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, 1, s.Len())
}

func TestStoreAllInClosingOrder(t *testing.T) {
	s := NewStore()
	for _, ts := range []uint64{3, 9, 27} {
		require.NoError(t, s.Insert(&Checkpoint{Timestamp: ts}))
	}

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Timestamp)
	assert.Equal(t, uint64(9), all[1].Timestamp)
	assert.Equal(t, uint64(27), all[2].Timestamp)
}

func TestStoreCloneIsDeep(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(&Checkpoint{
		Timestamp: 10,
		Messages:  []ChatMessage{{Sender: "a", Text: "x", Timestamp: 10}},
	}))

	c := s.Clone()
	assert.Equal(t, s.All(), c.All())

	orig, _ := s.Get(10)
	orig.Messages[0].Text = "changed"

	copied, _ := c.Get(10)
	assert.Equal(t, "x", copied.Messages[0].Text)
}
