package otp

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-otp/register"
)

// ProtectionState is the cached protection snapshot of a session. Flags
// only ever go from false to true.
type ProtectionState struct {
	regions [regionCount]bool
	global  bool
}

func protectionFromRegister(v uint32) ProtectionState {
	var p ProtectionState
	for _, r := range Regions {
		p.regions[r] = v&(1<<uint(r)) != 0
	}
	p.global = v&register.ProtectionGlobalLock != 0
	return p
}

// Region reports whether r is protected.
func (p ProtectionState) Region(r Region) bool {
	return r.valid() && p.regions[r]
}

// GloballyLocked reports whether the device-wide lock is burned.
func (p ProtectionState) GloballyLocked() bool {
	return p.global
}

// Bits encodes the state in the RegProtection layout.
func (p ProtectionState) Bits() uint32 {
	var v uint32
	for _, r := range Regions {
		if p.regions[r] {
			v |= 1 << uint(r)
		}
	}
	if p.global {
		v |= register.ProtectionGlobalLock
	}
	return v
}

func (p ProtectionState) String() string {
	var parts []string
	for _, r := range Regions {
		if p.regions[r] {
			parts = append(parts, r.String())
		}
	}
	if p.global {
		parts = append(parts, "global-lock")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// merge folds a fresh hardware reading into the snapshot without ever
// clearing a flag.
func (p *ProtectionState) merge(o ProtectionState) {
	for i := range p.regions {
		p.regions[i] = p.regions[i] || o.regions[i]
	}
	p.global = p.global || o.global
}

// protector enables protection on behalf of an active session.
type protector struct {
	hw     *hardware
	state  *ProtectionState
	logger func(msg string, kv ...interface{})
}

// checkWritable rejects writes to r from the cached snapshot alone.
func (p protector) checkWritable(op string, r Region, offset uint32) error {
	if p.state.global {
		return addrError(MemoryLocked, op, r, offset, nil)
	}
	if p.state.Region(r) {
		return addrError(RegionProtected, op, r, offset, nil)
	}
	return nil
}

func (p protector) enableRegion(info RegionInfo) error {
	const op = "enable region protection"
	if !info.Protectable {
		return newError(Unsupported, op, fmt.Errorf("%s cannot be protected", info.Region))
	}
	if p.state.global {
		return newError(MemoryLocked, op, nil)
	}
	if p.state.regions[info.Region] {
		return nil
	}
	if err := p.hw.protect(info.Region); err != nil {
		return err
	}
	if err := p.refresh(); err != nil {
		return err
	}
	if !p.state.regions[info.Region] {
		return newError(HardwareFault, op, fmt.Errorf("%s protection bit did not burn", info.Region))
	}
	p.logger("region protected", "region", info.Region)
	return nil
}

func (p protector) enableGlobal() error {
	if p.state.global {
		return nil
	}
	const op = "enable global lock"
	if err := p.hw.globalLock(); err != nil {
		return err
	}
	if err := p.refresh(); err != nil {
		return err
	}
	if !p.state.global {
		return newError(HardwareFault, op, fmt.Errorf("global lock bit did not burn"))
	}
	p.logger("device globally locked")
	return nil
}

// refresh reads the protection register back into the snapshot.
func (p protector) refresh() error {
	v, err := p.hw.protectionStatus()
	if err != nil {
		return err
	}
	p.state.merge(protectionFromRegister(v))
	return nil
}
