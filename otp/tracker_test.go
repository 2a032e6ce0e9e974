package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerSelectsLastSlot(t *testing.T) {
	tr := NewTracker(1, MaxSlots, 1)
	for slot := SlotIndex(0); slot < 6; slot++ {
		require.NoError(t, tr.Load(0, slot, false, 0))
	}

	assert.Equal(t, SlotIndex(6), tr.SelectNextWritableOption(0))
	assert.True(t, tr.IsWritable(0))
	assert.Equal(t, 1, tr.RemainingWrites(0))

	require.NoError(t, tr.RecordAttempt(0, 6))

	assert.False(t, tr.IsWritable(0))
	assert.Equal(t, NoSlot, tr.SelectNextWritableOption(0))
	assert.Equal(t, 0, tr.RemainingWrites(0))
	assert.Error(t, tr.RecordAttempt(0, 6))
}

func TestTrackerPriorityOrder(t *testing.T) {
	tr := NewTracker(2, MaxSlots, 2)

	assert.Equal(t, SlotIndex(0), tr.SelectNextWritableOption(1))
	require.NoError(t, tr.RecordAttempt(1, 0))
	assert.Equal(t, SlotIndex(0), tr.SelectNextWritableOption(1), "slot 0 still has one attempt")
	require.NoError(t, tr.RecordAttempt(1, 0))
	assert.Equal(t, SlotIndex(1), tr.SelectNextWritableOption(1))

	assert.Equal(t, 12, tr.RemainingWrites(1))
	assert.Equal(t, 14, tr.RemainingWrites(0), "other cells are untouched")
}

func TestTrackerValueParity(t *testing.T) {
	tr := NewTracker(1, MaxSlots, 1)
	assert.False(t, tr.Value(0))

	require.NoError(t, tr.RecordAttempt(0, 0))
	require.NoError(t, tr.MarkCommitted(0, 0))
	assert.True(t, tr.Value(0))
	assert.Equal(t, SlotIndex(1), tr.SelectNextWritableOption(0))

	require.NoError(t, tr.RecordAttempt(0, 1))
	require.NoError(t, tr.MarkCommitted(0, 1))
	assert.False(t, tr.Value(0))

	slots := tr.Slots(0)
	require.Len(t, slots, MaxSlots)
	assert.True(t, slots[0].Committed)
	assert.False(t, slots[0].Writable)
	assert.True(t, slots[2].Writable)
}

func TestTrackerLoadCommitted(t *testing.T) {
	tr := NewTracker(1, MaxSlots, 0)
	require.NoError(t, tr.Load(0, 0, true, 3))
	require.NoError(t, tr.Load(0, 1, false, 2))

	assert.True(t, tr.Value(0))
	assert.Equal(t, SlotIndex(1), tr.SelectNextWritableOption(0), "committed slots are never reused")
	assert.Equal(t, 2, tr.RemainingWrites(0))
}

func TestTrackerBounds(t *testing.T) {
	tr := NewTracker(1, MaxSlots, 1)

	assert.Error(t, tr.RecordAttempt(1, 0))
	assert.Error(t, tr.RecordAttempt(0, MaxSlots))
	assert.Error(t, tr.Load(0, NoSlot, false, 1))
	assert.Equal(t, NoSlot, tr.SelectNextWritableOption(5))
	assert.Nil(t, tr.Slots(5))
}
