package otp

import (
	"fmt"
	"time"

	"github.com/moffa90/go-otp/register"
)

// hardware is the exclusive handle on the register interface. The active
// Session owns it; sessionless reads build a short-lived one.
type hardware struct {
	bus      register.Bus
	timeout  time.Duration
	wordBits int
}

func newHardware(bus register.Bus, timeout time.Duration, wordBits int) *hardware {
	return &hardware{bus: bus, timeout: timeout, wordBits: wordBits}
}

func (h *hardware) write(op string, offset, value uint32) error {
	if err := h.bus.WriteWord(offset, value); err != nil {
		return newError(HardwareFault, op, fmt.Errorf("write 0x%02X: %w", offset, err))
	}
	return nil
}

func (h *hardware) read(op string, offset uint32) (uint32, error) {
	v, err := h.bus.ReadWord(offset)
	if err != nil {
		return 0, newError(HardwareFault, op, fmt.Errorf("read 0x%02X: %w", offset, err))
	}
	return v, nil
}

// command starts cmd and waits for it to finish.
func (h *hardware) command(op string, cmd uint32) error {
	if err := h.write(op, register.RegCommand, cmd); err != nil {
		return err
	}
	return h.wait(op, cmd)
}

// wait blocks until the running cmd finishes and checks the fault bit.
func (h *hardware) wait(op string, cmd uint32) error {
	ready, err := h.bus.WaitUntilReady(h.timeout)
	if err != nil {
		return newError(HardwareFault, op, err)
	}
	if !ready {
		return newError(Timeout, op, fmt.Errorf("%s not ready after %s", register.CommandName(cmd), h.timeout))
	}
	status, err := h.read(op, register.RegStatus)
	if err != nil {
		return err
	}
	if status&register.StatusFault != 0 {
		return newError(HardwareFault, op, &register.HardwareError{
			Operation: register.CommandName(cmd),
			Status:    status,
		})
	}
	return nil
}

// unlock issues the password sequence and checks the controller accepted it.
func (h *hardware) unlock() error {
	if err := h.write("unlock", register.RegProtectKey, register.Password); err != nil {
		return err
	}
	status, err := h.read("unlock", register.RegStatus)
	if err != nil {
		return err
	}
	if status&register.StatusUnlocked == 0 {
		return newError(HardwareFault, "unlock", &register.HardwareError{Operation: "unlock", Status: status})
	}
	return nil
}

func (h *hardware) lock() error {
	return h.write("lock", register.RegProtectKey, 0)
}

func (h *hardware) chipID() (uint32, error) {
	return h.read("chip id", register.RegChipID)
}

func (h *hardware) protectionStatus() (uint32, error) {
	return h.read("protection status", register.RegProtection)
}

// readWord reads the word at a physical address. A nonzero margin reads
// against the stricter verify threshold.
func (h *hardware) readWord(addr, margin uint32) (uint64, error) {
	const op = "read"
	if err := h.write(op, register.RegMargin, margin); err != nil {
		return 0, err
	}
	if err := h.write(op, register.RegAddress, addr); err != nil {
		return 0, err
	}
	if err := h.command(op, register.CmdRead); err != nil {
		return 0, err
	}
	lo, err := h.read(op, register.RegDataLo)
	if err != nil {
		return 0, err
	}
	v := uint64(lo)
	if h.wordBits > 32 {
		hi, err := h.read(op, register.RegDataHi)
		if err != nil {
			return 0, err
		}
		v |= uint64(hi) << 32
	}
	return v & wordMask(h.wordBits), nil
}

// pulse programs the set bits of value at addr. A zero duration selects
// normal timing. fired reports whether the program command reached the
// device; once it has, the pulse may have landed even if err is set.
func (h *hardware) pulse(addr uint32, value uint64, duration time.Duration) (fired bool, err error) {
	const op = "program"
	if err := h.write(op, register.RegTiming, timing(duration)); err != nil {
		return false, err
	}
	if err := h.write(op, register.RegAddress, addr); err != nil {
		return false, err
	}
	if err := h.write(op, register.RegDataLo, uint32(value)); err != nil {
		return false, err
	}
	if h.wordBits > 32 {
		if err := h.write(op, register.RegDataHi, uint32(value>>32)); err != nil {
			return false, err
		}
	}
	if err := h.write(op, register.RegCommand, register.CmdProgram); err != nil {
		return false, err
	}
	return true, h.wait(op, register.CmdProgram)
}

func (h *hardware) readSlot(cell uint32, slot SlotIndex) (committed bool, remaining int, err error) {
	const op = "read slot"
	if err := h.write(op, register.RegSlot, register.SlotSelect(cell, int(slot))); err != nil {
		return false, 0, err
	}
	if err := h.command(op, register.CmdReadSlot); err != nil {
		return false, 0, err
	}
	v, err := h.read(op, register.RegDataLo)
	if err != nil {
		return false, 0, err
	}
	return v&register.SlotCommitted != 0, int(v>>register.SlotRemainingShift) & register.SlotRemainingMask, nil
}

// pulseSlot fires one programming pulse at a strap slot. fired has the same
// meaning as for pulse.
func (h *hardware) pulseSlot(cell uint32, slot SlotIndex, duration time.Duration) (fired bool, err error) {
	const op = "program slot"
	if err := h.write(op, register.RegTiming, timing(duration)); err != nil {
		return false, err
	}
	if err := h.write(op, register.RegSlot, register.SlotSelect(cell, int(slot))); err != nil {
		return false, err
	}
	if err := h.write(op, register.RegCommand, register.CmdProgramSlot); err != nil {
		return false, err
	}
	return true, h.wait(op, register.CmdProgramSlot)
}

func (h *hardware) protect(r Region) error {
	const op = "protect region"
	if err := h.write(op, register.RegAddress, uint32(r)); err != nil {
		return err
	}
	return h.command(op, register.CmdProtectRegion)
}

func (h *hardware) globalLock() error {
	return h.command("global lock", register.CmdGlobalLock)
}

// timing converts a pulse duration to the timing register encoding,
// clamped to MaxPulseDuration.
func timing(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(max(min(d, MaxPulseDuration)/time.Microsecond, 1))
}
