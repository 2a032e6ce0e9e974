package otp

import (
	"context"
	"fmt"
)

// SessionManager acquires and releases exclusive access to the hardware.
type SessionManager interface {
	BeginSession(ctx context.Context) (SessionInfo, error)
	EndSession() error
	ActiveSession() (SessionInfo, bool)
}

// Memory is whole-device word access.
type Memory[W Word] interface {
	Read(region Region, offset uint32) (W, error)
	Write(ctx context.Context, region Region, offset uint32, value W, opts ...CallOption) (*Outcome, error)
	Lock() error
	IsLocked() (bool, error)
}

// RegionAccess is bounded multi-word access to one region.
type RegionAccess[W Word] interface {
	ReadRegion(region Region, offset uint32, n int) ([]W, error)
	WriteRegion(ctx context.Context, region Region, offset uint32, data []W, opts ...CallOption) (*Outcome, error)
	Verify(region Region, offset uint32, expected []W) error
}

// Protector queries and burns protection bits.
type Protector interface {
	IsRegionProtected(region Region) (bool, error)
	EnableRegionProtection(region Region) error
	IsGloballyLocked() (bool, error)
	EnableGlobalLock() error
}

// SoakProgrammer exposes extended-timing programming.
type SoakProgrammer[W Word] interface {
	IsSoakAvailable(region Region, offset uint32) (bool, error)
	SoakProgram(ctx context.Context, region Region, offset uint32, data []W, cfg SoakConfig, opts ...CallOption) (*Outcome, error)
	ProgramWithSoakFallback(ctx context.Context, region Region, offset uint32, data []W, cfg SoakConfig, opts ...CallOption) (*Outcome, error)
	DefaultSoakConfig() SoakConfig
}

// WriteTracker exposes the attempt bookkeeping of strap cells.
type WriteTracker interface {
	StrapStatus(cell uint32) (StrapStatus, error)
	RemainingWrites(cell uint32) (int, error)
	IsWritable(cell uint32) (bool, error)
	MaxWriteAttempts() (int, error)
}

// LayoutInfo describes the region layout.
type LayoutInfo interface {
	Regions() ([]RegionInfo, error)
	RegionInfo(region Region) (RegionInfo, error)
}

var (
	_ SessionManager         = (*Controller[uint32])(nil)
	_ Memory[uint32]         = (*Controller[uint32])(nil)
	_ RegionAccess[uint32]   = (*Controller[uint32])(nil)
	_ Protector              = (*Controller[uint32])(nil)
	_ SoakProgrammer[uint32] = (*Controller[uint32])(nil)
	_ WriteTracker           = (*Controller[uint32])(nil)
	_ LayoutInfo             = (*Controller[uint32])(nil)
)

type capabilities struct {
	soak       bool
	protection bool
	tracking   bool
}

// Protector returns the controller as a Protector when protection is wired.
func (c *Controller[W]) Protector() (Protector, bool) {
	if !c.caps.protection {
		return nil, false
	}
	return c, true
}

// SoakProgrammer returns the controller as a SoakProgrammer when soak
// programming is wired.
func (c *Controller[W]) SoakProgrammer() (SoakProgrammer[W], bool) {
	if !c.caps.soak {
		return nil, false
	}
	return c, true
}

// WriteTracker returns the controller as a WriteTracker when write
// tracking is wired.
func (c *Controller[W]) WriteTracker() (WriteTracker, bool) {
	if !c.caps.tracking {
		return nil, false
	}
	return c, true
}

// IsSoakAvailable reports whether the word at offset can be soak
// programmed.
func (c *Controller[W]) IsSoakAvailable(region Region, offset uint32) (bool, error) {
	const op = "is soak available"
	if !c.caps.soak {
		return false, unsupported(op, "soak")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.layout(nil)
	if err != nil {
		return false, err
	}
	if _, err := m.resolve(op, region, offset, 1); err != nil {
		return false, err
	}
	info, _ := m.Lookup(region)
	return info.SoakCapable, nil
}

// SoakProgram programs data with soak pulses only, skipping the normal
// pulse. Against a cell that never verifies it issues exactly
// cfg.MaxRetries pulses.
func (c *Controller[W]) SoakProgram(ctx context.Context, region Region, offset uint32, data []W, cfg SoakConfig, opts ...CallOption) (*Outcome, error) {
	const op = "soak program"
	if !c.caps.soak {
		return nil, unsupported(op, "soak")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.program(ctx, op, region, offset, data, modeSoakOnly, cfg, opts)
}

// ProgramWithSoakFallback issues a normal pulse per word and falls back to
// soak pulses only for words that do not verify.
func (c *Controller[W]) ProgramWithSoakFallback(ctx context.Context, region Region, offset uint32, data []W, cfg SoakConfig, opts ...CallOption) (*Outcome, error) {
	const op = "program with soak fallback"
	if !c.caps.soak {
		return nil, unsupported(op, "soak")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.program(ctx, op, region, offset, data, modeNormal, cfg, opts)
}

// DefaultSoakConfig returns the soak parameters Write uses.
func (c *Controller[W]) DefaultSoakConfig() SoakConfig {
	return c.config.Soak
}

// StrapStatus is the bookkeeping of one strap cell.
type StrapStatus struct {
	Cell            uint32
	Value           bool
	Slots           []WriteSlot
	RemainingWrites int
	NextOption      SlotIndex
	Protected       bool
}

func (s StrapStatus) String() string {
	return fmt.Sprintf("cell %d: value=%t remaining=%d next=%d protected=%t",
		s.Cell, s.Value, s.RemainingWrites, s.NextOption, s.Protected)
}

// StrapStatus returns the slot state of cell as loaded at session start and
// updated by every pulse since. A cell left uncertain by a failed pulse is
// re-read from hardware first.
func (c *Controller[W]) StrapStatus(cell uint32) (StrapStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.strapSession("strap status", cell)
	if err != nil {
		return StrapStatus{}, err
	}
	if err := s.refreshCell(cell); err != nil {
		return StrapStatus{}, err
	}
	return StrapStatus{
		Cell:            cell,
		Value:           s.tracker.Value(cell),
		Slots:           s.tracker.Slots(cell),
		RemainingWrites: s.tracker.RemainingWrites(cell),
		NextOption:      s.tracker.SelectNextWritableOption(cell),
		Protected:       s.protection.Region(Strap) || s.protection.GloballyLocked(),
	}, nil
}

// RemainingWrites returns the number of pulses cell can still take.
func (c *Controller[W]) RemainingWrites(cell uint32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.strapSession("remaining writes", cell)
	if err != nil {
		return 0, err
	}
	if err := s.refreshCell(cell); err != nil {
		return 0, err
	}
	return s.tracker.RemainingWrites(cell), nil
}

// IsWritable reports whether cell has a slot left to pulse.
func (c *Controller[W]) IsWritable(cell uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.strapSession("is writable", cell)
	if err != nil {
		return false, err
	}
	if err := s.refreshCell(cell); err != nil {
		return false, err
	}
	return s.tracker.IsWritable(cell), nil
}

// MaxWriteAttempts returns the attempt budget of a factory-fresh strap cell.
func (c *Controller[W]) MaxWriteAttempts() (int, error) {
	const op = "max write attempts"
	if !c.caps.tracking {
		return 0, unsupported(op, "write tracking")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.layout(nil)
	if err != nil {
		return 0, err
	}
	info, ok := m.Lookup(Strap)
	if !ok {
		return 0, addrError(InvalidAddress, op, Strap, 0, fmt.Errorf("variant %s has no strap cells", m.Variant()))
	}
	return info.Slots * info.SlotBudget, nil
}

// strapSession validates cell against the active session. Callers hold c.mu.
func (c *Controller[W]) strapSession(op string, cell uint32) (*Session, error) {
	if !c.caps.tracking {
		return nil, unsupported(op, "write tracking")
	}
	s, err := c.activeSession(op)
	if err != nil {
		return nil, err
	}
	if _, err := s.regions.resolve(op, Strap, cell, 1); err != nil {
		return nil, err
	}
	return s, nil
}
