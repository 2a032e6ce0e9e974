package otp

import (
	"context"
	"testing"
	"time"

	"github.com/moffa90/go-otp/otpsim"
	"github.com/moffa90/go-otp/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingBus lets the device execute cmd and then reports not-ready for
// it once, after skip matching commands have gone through normally.
type stallingBus struct {
	*otpsim.Device
	cmd     uint32
	skip    int
	pending bool
}

func (b *stallingBus) WriteWord(offset, value uint32) error {
	if err := b.Device.WriteWord(offset, value); err != nil {
		return err
	}
	if offset == register.RegCommand && value == b.cmd {
		if b.skip == 0 {
			b.pending = true
		}
		b.skip--
	}
	return nil
}

func (b *stallingBus) WaitUntilReady(timeout time.Duration) (bool, error) {
	if b.pending {
		b.pending = false
		return false, nil
	}
	return b.Device.WaitUntilReady(timeout)
}

func newStallingController(t *testing.T, cmd uint32, skip int) (*Controller[uint32], *otpsim.Device) {
	t.Helper()
	dev := otpsim.New(otpsim.DefaultConfig(register.ChipRevA1))
	bus := &stallingBus{Device: dev, cmd: cmd, skip: -1}
	ctrl := New[uint32](bus, WithSoakConfig(fastSoak()))
	beginSession(t, ctrl)
	bus.skip = skip
	return ctrl, dev
}

func TestTimeoutAfterWordPulseCountsPulse(t *testing.T) {
	tests := []struct {
		name   string
		weak   uint64
		skip   int
		normal int
		soak   int
	}{
		{name: "normal pulse", normal: 1},
		{name: "soak pulse", weak: 0x2, skip: 1, normal: 1, soak: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, dev := newStallingController(t, register.CmdProgram, tt.skip)
			if tt.weak != 0 {
				dev.SetWeakBits(5, tt.weak, 1)
			}
			dev.ResetStats()

			out, err := ctrl.Write(context.Background(), BulkData, 5, 0xF)
			assert.ErrorIs(t, err, ErrTimeout)
			w := out.Words[0]
			assert.Equal(t, HardwareFailed, w.Result)
			assert.Equal(t, tt.normal, w.NormalPulses)
			assert.Equal(t, tt.soak, w.SoakPulses)
			assert.Equal(t, dev.Stats().Pulses(), out.Pulses(), "every issued pulse is accounted")
			assert.Equal(t, uint64(0xF), dev.Peek(5))
		})
	}
}

func TestTimeoutAfterSlotPulseChargesAttempt(t *testing.T) {
	tests := []struct {
		name   string
		status bool
	}{
		{name: "status reloads the cell", status: true},
		{name: "next write reloads the cell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, dev := newStallingController(t, register.CmdProgramSlot, 0)
			ctx := context.Background()

			before, err := ctrl.RemainingWrites(4)
			require.NoError(t, err)

			out, err := ctrl.Write(ctx, Strap, 4, 1)
			assert.ErrorIs(t, err, ErrTimeout)
			w := out.Words[0]
			assert.Equal(t, HardwareFailed, w.Result)
			assert.Equal(t, 1, w.NormalPulses)
			assert.Equal(t, 0, w.Slot)

			committed, remaining := dev.Slot(4, 0)
			assert.True(t, committed)
			assert.Zero(t, remaining)

			if tt.status {
				st, err := ctrl.StrapStatus(4)
				require.NoError(t, err)
				assert.True(t, st.Value)
				assert.True(t, st.Slots[0].Committed)
				assert.Equal(t, before-1, st.RemainingWrites)
				assert.Equal(t, SlotIndex(1), st.NextOption)
			}

			pulses := dev.Stats().SlotPulses
			out, err = ctrl.Write(ctx, Strap, 4, 1)
			require.NoError(t, err)
			assert.Equal(t, AlreadySet, out.Words[0].Result)
			assert.Equal(t, pulses, dev.Stats().SlotPulses)

			remainingWrites, err := ctrl.RemainingWrites(4)
			require.NoError(t, err)
			assert.Equal(t, before-1, remainingWrites)
		})
	}
}

func TestTimingClampsLongPulses(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want uint32
	}{
		{"normal timing", 0, 0},
		{"sub-microsecond", time.Nanosecond, 1},
		{"microseconds", 250 * time.Microsecond, 250},
		{"at cap", MaxPulseDuration, uint32(MaxPulseDuration / time.Microsecond)},
		{"two hours", 2 * time.Hour, uint32(MaxPulseDuration / time.Microsecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timing(tt.d))
		})
	}
}
