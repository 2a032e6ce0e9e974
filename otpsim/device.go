// Package otpsim simulates an OTP controller behind a register.Bus.
//
// The simulated array is monotonic: programming only ever sets bits. Cells
// can be made hard to program so that tests and examples can exercise the
// soak path: weak bits only set after a number of soak pulses, marginal
// bits set on a normal pulse but read back unset under a non-zero margin
// until soaked, and stuck bits never set. Strap slots carry their own
// attempt budget that is decremented by every slot pulse.
//
// Every bus access is counted, which lets tests assert that rejected
// requests never reach the hardware.
package otpsim

import (
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-otp/register"
)

// Config describes the simulated silicon.
type Config struct {
	// ChipID is reported by RegChipID
	ChipID uint32

	// WordBits is the storage word width (8, 16, 32 or 64)
	WordBits int

	// Words is the number of physical storage words
	Words int

	// StrapCells is the number of attempt-limited strap cells
	StrapCells int

	// StrapSlots is the number of redundant slots per strap cell
	StrapSlots int

	// SlotBudget is the initial number of pulses each slot accepts
	SlotBudget int
}

// DefaultConfig returns a 32-bit device with 16 KiB of storage and 64
// strap cells of 7 single-attempt slots.
func DefaultConfig(chipID uint32) Config {
	return Config{
		ChipID:     chipID,
		WordBits:   32,
		Words:      16 * 1024 / 4,
		StrapCells: 64,
		StrapSlots: 7,
		SlotBudget: 1,
	}
}

// Stats counts bus traffic and programming pulses.
type Stats struct {
	Reads        int
	Writes       int
	Waits        int
	Commands     int
	NormalPulses int
	SoakPulses   int
	SlotPulses   int
}

// Calls returns the total number of bus calls.
func (s Stats) Calls() int {
	return s.Reads + s.Writes + s.Waits
}

// Pulses returns the total number of programming pulses on the array.
func (s Stats) Pulses() int {
	return s.NormalPulses + s.SoakPulses
}

type weakBits struct {
	mask   uint64
	needed int
	soaks  int
}

type slotState struct {
	committed bool
	remaining int

	// resist is the number of soak pulses needed before the slot
	// commits; zero commits on any pulse, negative never commits.
	resist int
	soaks  int
}

// Device is a simulated OTP controller. It is safe for concurrent use.
type Device struct {
	mu  sync.Mutex
	cfg Config

	regs     [register.WindowSize / 4]uint32
	mem      []uint64
	marginal []uint64
	stuck    map[uint32]uint64
	weak     map[uint32]*weakBits
	slots    [][]slotState

	unlocked   bool
	protection uint32
	fault      bool
	busy       bool

	hangNext  int
	faultNext int
	latency   time.Duration

	stats Stats
}

// New returns a blank device.
func New(cfg Config) *Device {
	if cfg.WordBits == 0 {
		cfg.WordBits = 32
	}
	switch cfg.WordBits {
	case 8, 16, 32, 64:
	default:
		panic(fmt.Sprintf("otpsim: unsupported word width %d", cfg.WordBits))
	}
	d := &Device{
		cfg:      cfg,
		mem:      make([]uint64, cfg.Words),
		marginal: make([]uint64, cfg.Words),
		stuck:    make(map[uint32]uint64),
		weak:     make(map[uint32]*weakBits),
		slots:    make([][]slotState, cfg.StrapCells),
	}
	for i := range d.slots {
		d.slots[i] = make([]slotState, cfg.StrapSlots)
		for j := range d.slots[i] {
			d.slots[i][j].remaining = cfg.SlotBudget
		}
	}
	return d
}

// SetLatency makes every command take the given time.
func (d *Device) SetLatency(latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = latency
}

// Burn sets bits directly, as if programmed in an earlier life.
func (d *Device) Burn(addr uint32, bits uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mem[addr] |= bits & d.widthMask()
}

// Peek returns the raw content of a physical word.
func (d *Device) Peek(addr uint32) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem[addr]
}

// SetWeakBits makes the bits in mask ignore normal pulses; they set after
// soakPulses soak pulses covering them.
func (d *Device) SetWeakBits(addr uint32, mask uint64, soakPulses int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.weak[addr] = &weakBits{mask: mask, needed: soakPulses}
}

// SetStuckBits makes the bits in mask impossible to program.
func (d *Device) SetStuckBits(addr uint32, mask uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stuck[addr] |= mask
}

// SetMarginalBits makes the bits in mask program weakly on a normal pulse:
// they read set at margin zero and unset under any margin until soaked.
func (d *Device) SetMarginalBits(addr uint32, mask uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marginal[addr] |= mask
}

// SetSlot overrides the state of a strap slot.
func (d *Device) SetSlot(cell uint32, slot int, committed bool, remaining int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.slots[cell][slot]
	s.committed = committed
	s.remaining = remaining
}

// SetSlotResistance makes a slot commit only after soakPulses soak
// pulses. A negative value means the slot never commits.
func (d *Device) SetSlotResistance(cell uint32, slot int, soakPulses int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[cell][slot].resist = soakPulses
}

// Slot reports the state of a strap slot.
func (d *Device) Slot(cell uint32, slot int) (committed bool, remaining int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.slots[cell][slot]
	return s.committed, s.remaining
}

// SetProtection presets the burned protection bits.
func (d *Device) SetProtection(bits uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protection |= bits
}

// Protection returns the burned protection bits.
func (d *Device) Protection() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protection
}

// Unlocked reports whether the protection key is currently accepted.
func (d *Device) Unlocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unlocked
}

// HangNext makes the next n commands never report ready.
func (d *Device) HangNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangNext = n
}

// FaultNext makes the next n commands finish with the fault bit set.
func (d *Device) FaultNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faultNext = n
}

// Stats returns a copy of the traffic counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats clears the traffic counters.
func (d *Device) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{}
}

func (d *Device) ReadWord(offset uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Reads++
	if err := checkOffset(offset); err != nil {
		return 0, err
	}
	switch offset {
	case register.RegProtectKey:
		return 0, nil
	case register.RegStatus:
		return d.status(), nil
	case register.RegChipID:
		return d.cfg.ChipID, nil
	case register.RegProtection:
		return d.protection, nil
	}
	return d.regs[offset/4], nil
}

func (d *Device) WriteWord(offset uint32, value uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Writes++
	if err := checkOffset(offset); err != nil {
		return err
	}
	switch offset {
	case register.RegProtectKey:
		d.unlocked = value == register.Password
	case register.RegStatus, register.RegChipID, register.RegProtection:
		// read-only
	case register.RegCommand:
		d.execute(value)
	default:
		d.regs[offset/4] = value
	}
	return nil
}

func (d *Device) WaitUntilReady(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Waits++
	if d.busy {
		// A hung command is abandoned once the caller gives up on it.
		d.busy = false
		return false, nil
	}
	return true, nil
}

func (d *Device) status() uint32 {
	var st uint32
	if !d.busy {
		st |= register.StatusReady
	}
	if d.fault {
		st |= register.StatusFault
	}
	if d.unlocked {
		st |= register.StatusUnlocked
	}
	return st
}

func (d *Device) execute(cmd uint32) {
	d.stats.Commands++
	d.fault = false
	if d.latency > 0 {
		time.Sleep(d.latency)
	}
	if d.hangNext > 0 {
		d.hangNext--
		d.busy = true
		return
	}
	if d.faultNext > 0 {
		d.faultNext--
		d.fault = true
		return
	}
	switch cmd {
	case register.CmdRead:
		d.read()
	case register.CmdProgram:
		if !d.writable() {
			d.fault = true
			return
		}
		d.program()
	case register.CmdReadSlot:
		d.readSlot()
	case register.CmdProgramSlot:
		if !d.writable() {
			d.fault = true
			return
		}
		d.programSlot()
	case register.CmdProtectRegion:
		if !d.writable() {
			d.fault = true
			return
		}
		idx := d.regs[register.RegAddress/4]
		if idx >= 31 {
			d.fault = true
			return
		}
		d.protection |= 1 << idx
	case register.CmdGlobalLock:
		if !d.writable() {
			d.fault = true
			return
		}
		d.protection |= register.ProtectionGlobalLock
	default:
		d.fault = true
	}
}

func (d *Device) writable() bool {
	return d.unlocked && d.protection&register.ProtectionGlobalLock == 0
}

func (d *Device) address() (uint32, bool) {
	addr := d.regs[register.RegAddress/4]
	return addr, int(addr) < len(d.mem)
}

func (d *Device) read() {
	addr, ok := d.address()
	if !ok {
		d.fault = true
		return
	}
	v := d.mem[addr]
	if d.regs[register.RegMargin/4] > 0 {
		v &^= d.marginal[addr]
	}
	d.regs[register.RegDataLo/4] = uint32(v)
	d.regs[register.RegDataHi/4] = uint32(v >> 32)
}

func (d *Device) program() {
	addr, ok := d.address()
	if !ok {
		d.fault = true
		return
	}
	bits := uint64(d.regs[register.RegDataLo/4]) | uint64(d.regs[register.RegDataHi/4])<<32
	bits &= d.widthMask()
	bits &^= d.stuck[addr]
	soak := d.regs[register.RegTiming/4] > 0
	if soak {
		d.stats.SoakPulses++
	} else {
		d.stats.NormalPulses++
	}
	if w := d.weak[addr]; w != nil && bits&w.mask != 0 {
		if soak {
			w.soaks++
		}
		if !soak || w.soaks < w.needed {
			bits &^= w.mask
		}
	}
	d.mem[addr] |= bits
	if soak {
		d.marginal[addr] &^= bits
	}
}

func (d *Device) slot() (*slotState, bool) {
	cell, slot := register.DecodeSlot(d.regs[register.RegSlot/4])
	if int(cell) >= len(d.slots) || slot >= d.cfg.StrapSlots {
		return nil, false
	}
	return &d.slots[cell][slot], true
}

func (d *Device) readSlot() {
	s, ok := d.slot()
	if !ok {
		d.fault = true
		return
	}
	v := uint32(s.remaining&register.SlotRemainingMask) << register.SlotRemainingShift
	if s.committed {
		v |= register.SlotCommitted
	}
	d.regs[register.RegDataLo/4] = v
}

func (d *Device) programSlot() {
	s, ok := d.slot()
	if !ok || s.remaining <= 0 {
		d.fault = true
		return
	}
	d.stats.SlotPulses++
	soak := d.regs[register.RegTiming/4] > 0
	if soak {
		d.stats.SoakPulses++
		s.soaks++
	} else {
		d.stats.NormalPulses++
	}
	s.remaining--
	switch {
	case s.resist == 0:
		s.committed = true
	case s.resist > 0 && soak && s.soaks >= s.resist:
		s.committed = true
	}
}

func (d *Device) widthMask() uint64 {
	if d.cfg.WordBits == 64 {
		return ^uint64(0)
	}
	return 1<<uint(d.cfg.WordBits) - 1
}

func checkOffset(offset uint32) error {
	if offset%4 != 0 || offset >= register.WindowSize {
		return fmt.Errorf("otpsim: invalid register offset 0x%02X", offset)
	}
	return nil
}

var _ register.Bus = (*Device)(nil)
