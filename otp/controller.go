package otp

import (
	"context"
	"fmt"
	"sync"

	"github.com/moffa90/go-otp/register"
)

// Controller drives one OTP array through a register.Bus. Only one session
// may be active at a time; every method is serialized on an internal mutex.
//
// Controller is safe for concurrent use, but a write holds the mutex for
// its whole duration. Callers that need non-blocking behavior run the
// session on a worker goroutine (see package provision).
type Controller[W Word] struct {
	mu      sync.Mutex
	bus     register.Bus
	config  Config
	caps    capabilities
	session *Session
}

// New creates a controller with every capability wired.
// The bus must not be nil.
//
// Example:
//
//	ctrl := otp.New[uint32](bus, otp.WithLogger(slog.Default()))
//	if _, err := ctrl.BeginSession(ctx); err != nil {
//	    return err
//	}
//	defer ctrl.EndSession()
func New[W Word](bus register.Bus, opts ...Option) *Controller[W] {
	return NewBuilder[W](bus).
		WithSoak().
		WithProtection().
		WithWriteTracking().
		WithOptions(opts...).
		Build()
}

// Config returns the controller configuration.
func (c *Controller[W]) Config() Config {
	return c.config
}

// Read reads one word. Strap cells read as 0 or 1.
func (c *Controller[W]) Read(region Region, offset uint32) (W, error) {
	words, err := c.read("read", region, offset, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// ReadRegion reads n consecutive words starting at offset.
func (c *Controller[W]) ReadRegion(region Region, offset uint32, n int) ([]W, error) {
	return c.read("read region", region, offset, n)
}

func (c *Controller[W]) read(op string, region Region, offset uint32, n int) ([]W, error) {
	length, err := transferLength(op, region, offset, n)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hw, regions, prot, err := c.readAccess(op, region, offset)
	if err != nil {
		return nil, err
	}
	rng, err := regions.resolve(op, region, offset, length)
	if err != nil {
		return nil, err
	}
	info, _ := regions.Lookup(region)
	if info.Secret && prot.Region(region) {
		return nil, addrError(RegionProtected, op, region, offset, fmt.Errorf("secret region is read-protected"))
	}
	out := make([]W, n)
	for i := range out {
		var v uint64
		if info.AttemptLimited {
			v, err = readCell(hw, info, rng.Address(i))
		} else {
			v, err = hw.readWord(rng.Address(i), 0)
		}
		if err != nil {
			return nil, err
		}
		out[i] = W(v)
	}
	return out, nil
}

// readAccess returns the hardware handle, layout and protection state a
// read may use. Without a session it falls back to a read-only handle when
// sessionless reads are enabled. Callers hold c.mu.
func (c *Controller[W]) readAccess(op string, region Region, offset uint32) (*hardware, *RegionMap, ProtectionState, error) {
	if s := c.session; s != nil {
		return s.hw, s.regions, s.protection, nil
	}
	if !c.config.SessionlessReads {
		return nil, nil, ProtectionState{}, newError(NoSession, op, nil)
	}
	hw := newHardware(c.bus, c.config.ReadyTimeout, wordBits[W]())
	regions, err := c.layout(hw)
	if err != nil {
		return nil, nil, ProtectionState{}, err
	}
	if info, ok := regions.Lookup(region); ok && info.Secret {
		return nil, nil, ProtectionState{}, addrError(NoSession, op, region, offset,
			fmt.Errorf("secret regions need a session"))
	}
	return hw, regions, ProtectionState{}, nil
}

// layout returns the layout of the pinned variant, or of the chip
// behind hw. Callers hold c.mu.
func (c *Controller[W]) layout(hw *hardware) (*RegionMap, error) {
	if c.session != nil {
		return c.session.regions, nil
	}
	v := c.config.Variant
	if v == VariantUnknown {
		if hw == nil {
			return nil, newError(NoSession, "layout", fmt.Errorf("variant not pinned"))
		}
		id, err := hw.chipID()
		if err != nil {
			return nil, err
		}
		if v = VariantFromChipID(id); v == VariantUnknown {
			return nil, newError(UnknownChip, "layout", fmt.Errorf("chip ID 0x%08X", id))
		}
	}
	return NewRegionMap(v, wordBits[W]())
}

// readCell returns the logical value of an attempt-limited cell from its
// hardware slots.
func readCell(hw *hardware, info RegionInfo, cell uint32) (uint64, error) {
	n := 0
	for slot := SlotIndex(0); int(slot) < info.Slots; slot++ {
		committed, _, err := hw.readSlot(cell, slot)
		if err != nil {
			return 0, err
		}
		if committed {
			n++
		}
	}
	return uint64(n % 2), nil
}

// Write programs one word through the program engine. Bits already set
// stay set; a word whose target bits already read set costs no pulse. On
// soak-capable regions a failed normal pulse falls back to the configured
// soak retries.
//
// For Strap, offset is the cell index and the value is read as 0 or 1 (any
// nonzero value is 1). A cell's value is the parity of its committed slots,
// so writing a value different from the current one always burns the next
// free slot: clearing a set cell costs a slot just like setting a clear one.
// Writing the current value costs nothing.
func (c *Controller[W]) Write(ctx context.Context, region Region, offset uint32, value W, opts ...CallOption) (*Outcome, error) {
	return c.program(ctx, "write", region, offset, []W{value}, modeNormal, c.config.Soak, opts)
}

// WriteRegion programs consecutive words starting at offset. Each word is
// processed independently; the failure policy decides whether a failed
// word stops the remaining ones.
func (c *Controller[W]) WriteRegion(ctx context.Context, region Region, offset uint32, data []W, opts ...CallOption) (*Outcome, error) {
	return c.program(ctx, "write region", region, offset, data, modeNormal, c.config.Soak, opts)
}

func (c *Controller[W]) program(ctx context.Context, op string, region Region, offset uint32, data []W,
	mode programMode, soak SoakConfig, opts []CallOption) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	length, err := transferLength(op, region, offset, len(data))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.activeSession(op)
	if err != nil {
		return nil, err
	}
	if err := s.protector(c.config.Logger).checkWritable(op, region, offset); err != nil {
		return nil, err
	}
	rng, err := s.regions.resolve(op, region, offset, length)
	if err != nil {
		return nil, err
	}
	info, _ := s.regions.Lookup(region)
	if info.AttemptLimited && (!c.caps.tracking || s.tracker == nil) {
		return nil, addrError(Unsupported, op, region, offset, fmt.Errorf("write tracking not wired"))
	}
	if mode == modeSoakOnly && !info.SoakCapable {
		return nil, addrError(Unsupported, op, region, offset, fmt.Errorf("%s does not support soak programming", region))
	}

	targets := make([]uint64, len(data))
	for i, v := range data {
		targets[i] = uint64(v)
	}
	cc := c.config.callConfig(opts)
	e := &engine{
		op:       op,
		hw:       s.hw,
		tracker:  s.tracker,
		soak:     soak,
		useSoak:  c.caps.soak,
		mode:     mode,
		policy:   cc.policy,
		progress: c.config.ProgressCallback,
		logger:   c.config.Logger,
	}
	c.logDebug("programming",
		"op", op,
		"region", region,
		"offset", offset,
		"words", len(data),
		"policy", cc.policy,
	)
	out, err := e.run(ctx, rng, info, targets)
	if err != nil {
		c.logError("programming failed",
			"op", op,
			"region", region,
			"offset", offset,
			"status", out.Status(),
			"error", err,
		)
	} else {
		c.logInfo("programming complete",
			"op", op,
			"region", region,
			"words", len(data),
			"pulses", out.Pulses(),
			"elapsed", out.Elapsed,
		)
	}
	return out, err
}

// Verify compares expected against the array without issuing pulses. Words
// pass when every expected bit is set; strap cells must match exactly.
func (c *Controller[W]) Verify(region Region, offset uint32, expected []W) error {
	const op = "verify"
	length, err := transferLength(op, region, offset, len(expected))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hw, regions, prot, err := c.readAccess(op, region, offset)
	if err != nil {
		return err
	}
	rng, err := regions.resolve(op, region, offset, length)
	if err != nil {
		return err
	}
	info, _ := regions.Lookup(region)
	if info.Secret && prot.Region(region) {
		return addrError(RegionProtected, op, region, offset, fmt.Errorf("secret region is read-protected"))
	}
	for i, want := range expected {
		addr := rng.Address(i)
		if info.AttemptLimited {
			v, err := readCell(hw, info, addr)
			if err != nil {
				return err
			}
			if v != boolWord(want != 0) {
				return addrError(VerificationFailed, op, region, offset+uint32(i),
					&VerificationError{Address: addr, Target: boolWord(want != 0), Readback: v})
			}
			continue
		}
		v, err := hw.readWord(addr, c.config.Soak.VerifyMargin)
		if err != nil {
			return err
		}
		if !covers(v, uint64(want)) {
			return addrError(VerificationFailed, op, region, offset+uint32(i),
				&VerificationError{Address: addr, Target: uint64(want), Readback: v})
		}
	}
	return nil
}

// Lock burns the device-wide lock. Every later write-class call fails with
// MemoryLocked without touching hardware.
func (c *Controller[W]) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.activeSession("lock")
	if err != nil {
		return err
	}
	return s.protector(c.config.Logger).enableGlobal()
}

// IsLocked reports whether the device-wide lock is burned.
func (c *Controller[W]) IsLocked() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.activeSession("is locked")
	if err != nil {
		return false, err
	}
	return s.protection.GloballyLocked(), nil
}

// IsRegionProtected reports the cached protection flag of region.
func (c *Controller[W]) IsRegionProtected(region Region) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.caps.protection {
		return false, unsupported("is region protected", "protection")
	}
	s, err := c.activeSession("is region protected")
	if err != nil {
		return false, err
	}
	return s.protection.Region(region), nil
}

// EnableRegionProtection burns the protection bit of region. There is no
// way back. Regions that are not protectable are rejected.
func (c *Controller[W]) EnableRegionProtection(region Region) error {
	const op = "enable region protection"
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.caps.protection {
		return unsupported(op, "protection")
	}
	s, err := c.activeSession(op)
	if err != nil {
		return err
	}
	info, ok := s.regions.Lookup(region)
	if !ok {
		return addrError(InvalidAddress, op, region, 0, fmt.Errorf("variant %s has no %s region", s.info.Variant, region))
	}
	return s.protector(c.config.Logger).enableRegion(info)
}

// IsGloballyLocked reports the cached global lock flag.
func (c *Controller[W]) IsGloballyLocked() (bool, error) {
	if !c.caps.protection {
		return false, unsupported("is globally locked", "protection")
	}
	return c.IsLocked()
}

// EnableGlobalLock is Lock for callers holding a Protector.
func (c *Controller[W]) EnableGlobalLock() error {
	if !c.caps.protection {
		return unsupported("enable global lock", "protection")
	}
	return c.Lock()
}

// Regions returns the layout of the active session or of the pinned variant.
func (c *Controller[W]) Regions() ([]RegionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.layout(nil)
	if err != nil {
		return nil, err
	}
	return m.Regions(), nil
}

// RegionInfo describes one region of the active or pinned variant.
func (c *Controller[W]) RegionInfo(region Region) (RegionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.layout(nil)
	if err != nil {
		return RegionInfo{}, err
	}
	info, ok := m.Lookup(region)
	if !ok {
		return RegionInfo{}, addrError(InvalidAddress, "region info", region, 0,
			fmt.Errorf("variant %s has no %s region", m.Variant(), region))
	}
	return info, nil
}

func unsupported(op, capability string) error {
	return newError(Unsupported, op, fmt.Errorf("%s capability not wired", capability))
}

// logDebug logs a debug message if a logger is configured.
func (c *Controller[W]) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Controller[W]) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Controller[W]) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
