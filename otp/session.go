package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes an active session.
type SessionInfo struct {
	ID          uuid.UUID
	Variant     Variant
	ChipID      uint32
	VersionName string
	Protection  ProtectionState
	StartedAt   time.Time
}

// Session is the exclusive owner of the hardware handle between
// BeginSession and EndSession. The protection snapshot and strap tracker
// live here and are rebuilt at every session start.
type Session struct {
	info       SessionInfo
	hw         *hardware
	regions    *RegionMap
	protection ProtectionState
	tracker    *Tracker
}

func (s *Session) protector(logger Logger) protector {
	log := func(string, ...interface{}) {}
	if logger != nil {
		log = logger.Info
	}
	return protector{hw: s.hw, state: &s.protection, logger: log}
}

// refreshCell reloads a stale strap cell from hardware.
func (s *Session) refreshCell(cell uint32) error {
	if s.tracker == nil || !s.tracker.Stale(cell) {
		return nil
	}
	info, ok := s.regions.Lookup(Strap)
	if !ok {
		return nil
	}
	return reloadCell(s.hw, s.tracker, info, cell)
}

// Info returns the session description with the current protection state.
func (s *Session) Info() SessionInfo {
	info := s.info
	info.Protection = s.protection
	return info
}

// BeginSession unlocks the hardware, detects the chip variant and
// snapshots protection and strap slot state. It fails with AlreadyActive
// while another session is active. On any failure the hardware is locked
// again before returning.
func (c *Controller[W]) BeginSession(ctx context.Context) (SessionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return SessionInfo{}, newError(AlreadyActive, "begin session", nil)
	}
	if err := ctx.Err(); err != nil {
		return SessionInfo{}, err
	}

	hw := newHardware(c.bus, c.config.ReadyTimeout, wordBits[W]())
	s, err := c.openSession(hw)
	if err != nil {
		if lerr := hw.lock(); lerr != nil {
			c.logError("relock after failed session start", "error", lerr)
		}
		c.logError("begin session failed", "error", err)
		return SessionInfo{}, err
	}
	c.session = s
	c.logInfo("session started",
		"id", s.info.ID,
		"variant", s.info.Variant,
		"chip_id", fmt.Sprintf("0x%08X", s.info.ChipID),
		"protection", s.protection,
	)
	return s.Info(), nil
}

func (c *Controller[W]) openSession(hw *hardware) (*Session, error) {
	const op = "begin session"
	if err := hw.unlock(); err != nil {
		return nil, err
	}
	id, err := hw.chipID()
	if err != nil {
		return nil, err
	}
	v := VariantFromChipID(id)
	if c.config.Variant != VariantUnknown && v != c.config.Variant {
		return nil, newError(UnknownChip, op, &DeviceMismatchError{Expected: c.config.Variant, ChipID: id})
	}
	if v == VariantUnknown {
		return nil, newError(UnknownChip, op, fmt.Errorf("chip ID 0x%08X", id))
	}
	regions, err := NewRegionMap(v, hw.wordBits)
	if err != nil {
		return nil, err
	}
	bits, err := hw.protectionStatus()
	if err != nil {
		return nil, err
	}
	s := &Session{
		info: SessionInfo{
			ID:          uuid.New(),
			Variant:     v,
			ChipID:      id,
			VersionName: v.VersionName(),
			StartedAt:   time.Now(),
		},
		hw:         hw,
		regions:    regions,
		protection: protectionFromRegister(bits),
	}
	if info, ok := regions.Lookup(Strap); ok && c.caps.tracking {
		if s.tracker, err = loadTracker(hw, info); err != nil {
			return nil, err
		}
		c.logDebug("strap slots loaded", "cells", info.Capacity, "slots", info.Slots)
	}
	return s, nil
}

// loadTracker reads every slot of every cell of an attempt-limited region.
func loadTracker(hw *hardware, info RegionInfo) (*Tracker, error) {
	t := NewTracker(int(info.Capacity), info.Slots, 0)
	for cell := uint32(0); cell < info.Capacity; cell++ {
		if err := reloadCell(hw, t, info, cell); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// reloadCell re-reads every slot of one cell into t. The cell stays stale
// when any read fails.
func reloadCell(hw *hardware, t *Tracker, info RegionInfo, cell uint32) error {
	for slot := SlotIndex(0); int(slot) < info.Slots; slot++ {
		committed, remaining, err := hw.readSlot(info.Base+cell, slot)
		if err == nil {
			err = t.Load(cell, slot, committed, remaining)
		}
		if err != nil {
			t.MarkStale(cell)
			return err
		}
	}
	return nil
}

// EndSession locks the hardware and returns to Idle. The controller is Idle
// afterwards even when the lock write fails; that error is still returned.
func (c *Controller[W]) EndSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return newError(NoSession, "end session", nil)
	}
	c.session = nil
	if err := s.hw.lock(); err != nil {
		c.logError("session lock failed", "id", s.info.ID, "error", err)
		return err
	}
	c.logInfo("session ended", "id", s.info.ID, "duration", time.Since(s.info.StartedAt))
	return nil
}

// ActiveSession returns the active session, if any.
func (c *Controller[W]) ActiveSession() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return SessionInfo{}, false
	}
	return c.session.Info(), true
}

// HealthCheck opens a session, takes the protection snapshot and closes
// the session again.
func (c *Controller[W]) HealthCheck(ctx context.Context) (SessionInfo, error) {
	info, err := c.BeginSession(ctx)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("health check: %w", err)
	}
	if err := c.EndSession(); err != nil {
		return info, fmt.Errorf("health check: %w", err)
	}
	return info, nil
}

// activeSession returns the session or a NoSession error. Callers hold c.mu.
func (c *Controller[W]) activeSession(op string) (*Session, error) {
	if c.session == nil {
		return nil, newError(NoSession, op, nil)
	}
	return c.session, nil
}
