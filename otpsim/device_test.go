package otpsim

import (
	"testing"

	"github.com/moffa90/go-otp/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, d *Device, cmd uint32) uint32 {
	t.Helper()
	require.NoError(t, d.WriteWord(register.RegCommand, cmd))
	ready, err := d.WaitUntilReady(0)
	require.NoError(t, err)
	require.True(t, ready)
	st, err := d.ReadWord(register.RegStatus)
	require.NoError(t, err)
	return st
}

func program(t *testing.T, d *Device, addr, bits, timing uint32) uint32 {
	t.Helper()
	require.NoError(t, d.WriteWord(register.RegTiming, timing))
	require.NoError(t, d.WriteWord(register.RegAddress, addr))
	require.NoError(t, d.WriteWord(register.RegDataLo, bits))
	return run(t, d, register.CmdProgram)
}

func read(t *testing.T, d *Device, addr, margin uint32) uint32 {
	t.Helper()
	require.NoError(t, d.WriteWord(register.RegMargin, margin))
	require.NoError(t, d.WriteWord(register.RegAddress, addr))
	run(t, d, register.CmdRead)
	v, err := d.ReadWord(register.RegDataLo)
	require.NoError(t, err)
	return v
}

func unlock(t *testing.T, d *Device) {
	t.Helper()
	require.NoError(t, d.WriteWord(register.RegProtectKey, register.Password))
	require.True(t, d.Unlocked())
}

func TestProgramRequiresUnlock(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA0))

	st := program(t, d, 1, 0xFF, 0)
	assert.NotZero(t, st&register.StatusFault)
	assert.Zero(t, d.Peek(1))

	unlock(t, d)
	st = program(t, d, 1, 0xFF, 0)
	assert.Zero(t, st&register.StatusFault)
	assert.Equal(t, uint64(0xFF), d.Peek(1))

	require.NoError(t, d.WriteWord(register.RegProtectKey, 0))
	assert.False(t, d.Unlocked())
}

func TestProgramIsMonotonic(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA0))
	unlock(t, d)

	program(t, d, 2, 0xF0, 0)
	program(t, d, 2, 0x0F, 0)
	program(t, d, 2, 0x00, 0)
	assert.Equal(t, uint32(0xFF), read(t, d, 2, 0))
}

func TestWeakAndMarginalBits(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA0))
	unlock(t, d)
	d.SetWeakBits(3, 0x1, 2)
	d.SetMarginalBits(4, 0x2)

	program(t, d, 3, 0x1, 0)
	assert.Zero(t, d.Peek(3), "normal pulses never set weak bits")
	program(t, d, 3, 0x1, 100)
	assert.Zero(t, d.Peek(3))
	program(t, d, 3, 0x1, 100)
	assert.Equal(t, uint64(0x1), d.Peek(3))

	program(t, d, 4, 0x3, 0)
	assert.Equal(t, uint32(0x3), read(t, d, 4, 0))
	assert.Equal(t, uint32(0x1), read(t, d, 4, 1))
	program(t, d, 4, 0x2, 100)
	assert.Equal(t, uint32(0x3), read(t, d, 4, 1))

	stats := d.Stats()
	assert.Equal(t, 2, stats.NormalPulses)
	assert.Equal(t, 3, stats.SoakPulses)
}

func TestStuckBits(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA0))
	unlock(t, d)
	d.SetStuckBits(5, 0x80)

	program(t, d, 5, 0x81, 0)
	program(t, d, 5, 0x80, 500)
	assert.Equal(t, uint64(0x01), d.Peek(5))
}

func TestSlotBudget(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA2))
	unlock(t, d)
	d.SetSlot(2, 0, false, 2)
	d.SetSlotResistance(2, 0, 2)

	pulse := func(timing uint32) uint32 {
		require.NoError(t, d.WriteWord(register.RegTiming, timing))
		require.NoError(t, d.WriteWord(register.RegSlot, register.SlotSelect(2, 0)))
		return run(t, d, register.CmdProgramSlot)
	}

	assert.Zero(t, pulse(100)&register.StatusFault)
	committed, remaining := d.Slot(2, 0)
	assert.False(t, committed)
	assert.Equal(t, 1, remaining)

	assert.Zero(t, pulse(100)&register.StatusFault)
	committed, remaining = d.Slot(2, 0)
	assert.True(t, committed)
	assert.Equal(t, 0, remaining)

	assert.NotZero(t, pulse(100)&register.StatusFault, "an empty slot rejects pulses")

	run(t, d, register.CmdReadSlot)
	v, err := d.ReadWord(register.RegDataLo)
	require.NoError(t, err)
	assert.Equal(t, uint32(register.SlotCommitted), v)
}

func TestProtectionAndGlobalLock(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA1))
	unlock(t, d)

	require.NoError(t, d.WriteWord(register.RegAddress, 1))
	assert.Zero(t, run(t, d, register.CmdProtectRegion)&register.StatusFault)
	assert.Equal(t, uint32(1<<1), d.Protection())

	assert.Zero(t, run(t, d, register.CmdGlobalLock)&register.StatusFault)
	st := program(t, d, 0, 1, 0)
	assert.NotZero(t, st&register.StatusFault, "the global lock rejects every pulse")

	v, err := d.ReadWord(register.RegProtection)
	require.NoError(t, err)
	assert.Equal(t, uint32(register.ProtectionGlobalLock|1<<1), v)
}

func TestFaultAndHangInjection(t *testing.T) {
	d := New(DefaultConfig(register.ChipRevA0))
	unlock(t, d)

	d.FaultNext(1)
	assert.NotZero(t, run(t, d, register.CmdRead)&register.StatusFault)
	assert.Zero(t, run(t, d, register.CmdRead)&register.StatusFault)

	d.HangNext(1)
	require.NoError(t, d.WriteWord(register.RegCommand, register.CmdRead))
	ready, err := d.WaitUntilReady(0)
	require.NoError(t, err)
	assert.False(t, ready)
	ready, err = d.WaitUntilReady(0)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestRegisterWindow(t *testing.T) {
	d := New(DefaultConfig(register.ChipLite))

	id, err := d.ReadWord(register.RegChipID)
	require.NoError(t, err)
	assert.Equal(t, register.ChipLite, id)

	key, err := d.ReadWord(register.RegProtectKey)
	require.NoError(t, err)
	assert.Zero(t, key, "the key register never reads back")

	_, err = d.ReadWord(register.WindowSize)
	assert.Error(t, err)
	assert.Error(t, d.WriteWord(0x02, 1))

	d.ResetStats()
	_, _ = d.ReadWord(register.RegStatus)
	assert.Equal(t, 1, d.Stats().Calls())
}
