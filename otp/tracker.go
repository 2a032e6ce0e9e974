package otp

import "fmt"

// MaxSlots is the number of redundant write slots backing one strap cell.
const MaxSlots = 7

// WriteSlot is one redundant programming location of an attempt-limited
// cell.
type WriteSlot struct {
	Committed bool
	Remaining int
	Writable  bool
}

// SlotIndex selects a slot within a cell. NoSlot means none is available.
type SlotIndex int

const NoSlot SlotIndex = -1

// Tracker keeps the remaining programming attempts of every slot of every
// attempt-limited cell. It is loaded from hardware at session start and
// only changes when a pulse is issued. A cell whose last pulse ended
// without a clean verify is stale until reloaded from hardware.
type Tracker struct {
	slots [][]WriteSlot
	stale []bool
}

// NewTracker returns a tracker for cells cells of slots slots each, with
// every slot uncommitted and budget attempts left.
func NewTracker(cells, slots, budget int) *Tracker {
	if slots > MaxSlots {
		slots = MaxSlots
	}
	t := &Tracker{slots: make([][]WriteSlot, cells), stale: make([]bool, cells)}
	for c := range t.slots {
		t.slots[c] = make([]WriteSlot, slots)
		for s := range t.slots[c] {
			t.slots[c][s] = WriteSlot{Remaining: budget, Writable: budget > 0}
		}
	}
	return t
}

// Cells returns the number of tracked cells.
func (t *Tracker) Cells() int {
	return len(t.slots)
}

// Load sets the state of one slot, typically from a hardware slot read, and
// clears the stale mark of its cell.
func (t *Tracker) Load(cell uint32, slot SlotIndex, committed bool, remaining int) error {
	s, err := t.slot(cell, slot)
	if err != nil {
		return err
	}
	t.stale[cell] = false
	*s = WriteSlot{
		Committed: committed,
		Remaining: max(remaining, 0),
		Writable:  !committed && remaining > 0,
	}
	return nil
}

// SelectNextWritableOption returns the lowest-index slot that can still be
// pulsed, or NoSlot.
func (t *Tracker) SelectNextWritableOption(cell uint32) SlotIndex {
	if int(cell) >= len(t.slots) {
		return NoSlot
	}
	for i, s := range t.slots[cell] {
		if s.Writable && s.Remaining > 0 {
			return SlotIndex(i)
		}
	}
	return NoSlot
}

// RecordAttempt accounts for one physical pulse issued against a slot.
func (t *Tracker) RecordAttempt(cell uint32, slot SlotIndex) error {
	s, err := t.slot(cell, slot)
	if err != nil {
		return err
	}
	if s.Remaining == 0 {
		return fmt.Errorf("cell %d slot %d has no attempts left", cell, slot)
	}
	s.Remaining--
	if s.Remaining == 0 {
		s.Writable = false
	}
	return nil
}

// MarkCommitted records that a slot verified as programmed.
func (t *Tracker) MarkCommitted(cell uint32, slot SlotIndex) error {
	s, err := t.slot(cell, slot)
	if err != nil {
		return err
	}
	s.Committed = true
	s.Writable = false
	return nil
}

// MarkStale records that the committed state of cell is unknown, for
// instance after a pulse whose completion could not be confirmed.
func (t *Tracker) MarkStale(cell uint32) {
	if int(cell) < len(t.stale) {
		t.stale[cell] = true
	}
}

// Stale reports whether cell must be reloaded before its state is trusted.
func (t *Tracker) Stale(cell uint32) bool {
	return int(cell) < len(t.stale) && t.stale[cell]
}

// IsWritable reports whether at least one slot of cell can still be pulsed.
func (t *Tracker) IsWritable(cell uint32) bool {
	return t.SelectNextWritableOption(cell) != NoSlot
}

// RemainingWrites returns the number of pulses the cell can still take.
func (t *Tracker) RemainingWrites(cell uint32) int {
	if int(cell) >= len(t.slots) {
		return 0
	}
	n := 0
	for _, s := range t.slots[cell] {
		if s.Writable {
			n += s.Remaining
		}
	}
	return n
}

// Slots returns a copy of the slot states of cell.
func (t *Tracker) Slots(cell uint32) []WriteSlot {
	if int(cell) >= len(t.slots) {
		return nil
	}
	return append([]WriteSlot(nil), t.slots[cell]...)
}

// Value returns the logical value of cell: set when an odd number of its
// slots are committed.
func (t *Tracker) Value(cell uint32) bool {
	if int(cell) >= len(t.slots) {
		return false
	}
	n := 0
	for _, s := range t.slots[cell] {
		if s.Committed {
			n++
		}
	}
	return n%2 == 1
}

func (t *Tracker) slot(cell uint32, slot SlotIndex) (*WriteSlot, error) {
	if int(cell) >= len(t.slots) {
		return nil, fmt.Errorf("cell %d out of range", cell)
	}
	if slot < 0 || int(slot) >= len(t.slots[cell]) {
		return nil, fmt.Errorf("cell %d has no slot %d", cell, slot)
	}
	return &t.slots[cell][slot], nil
}
