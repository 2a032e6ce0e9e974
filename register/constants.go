package register

// Register offsets of the OTP controller window, in bytes.
const (
	// RegProtectKey unlocks the controller when written with Password.
	// Writing any other value locks it again.
	RegProtectKey = 0x00

	// RegCommand starts the command written to it
	RegCommand = 0x04

	// RegTiming holds the programming pulse duration in microseconds.
	// Zero selects the normal factory timing.
	RegTiming = 0x08

	// RegMargin holds the read margin applied by Read and ReadSlot
	RegMargin = 0x0C

	// RegAddress holds the physical word address for Read and Program
	RegAddress = 0x10

	// RegStatus reports Ready, Fault and Unlocked bits
	RegStatus = 0x14

	// RegChipID identifies the silicon
	RegChipID = 0x18

	// RegProtection mirrors the protection bits burned into the array
	RegProtection = 0x1C

	// RegDataLo carries the low 32 bits of a word
	RegDataLo = 0x20

	// RegDataHi carries the high 32 bits of a 64-bit word
	RegDataHi = 0x24

	// RegSlot selects a strap slot for ReadSlot and ProgramSlot (cell<<8 | slot)
	RegSlot = 0x28

	// WindowSize is the size of the register window in bytes
	WindowSize = 0x30
)

// Password is the protection key that unlocks write access.
const Password uint32 = 0x349FE38A

// Command codes written to RegCommand.
const (
	// CmdRead reads the word at RegAddress into RegDataLo/RegDataHi
	CmdRead = 0x01

	// CmdProgram pulses the bits in RegDataLo/RegDataHi at RegAddress
	CmdProgram = 0x02

	// CmdReadSlot reads the strap slot selected by RegSlot into RegDataLo
	CmdReadSlot = 0x03

	// CmdProgramSlot pulses the strap slot selected by RegSlot
	CmdProgramSlot = 0x04

	// CmdProtectRegion burns the protection bit whose index is in RegAddress
	CmdProtectRegion = 0x05

	// CmdGlobalLock burns the device-wide lock bit
	CmdGlobalLock = 0x06
)

// Status bits of RegStatus.
const (
	StatusReady    = 1 << 0
	StatusFault    = 1 << 1
	StatusUnlocked = 1 << 2
)

// ProtectionGlobalLock is the global lock bit of RegProtection.
const ProtectionGlobalLock = 1 << 31

// Slot status layout returned by CmdReadSlot.
const (
	SlotCommitted       = 1 << 0
	SlotRemainingShift  = 8
	SlotRemainingMask   = 0xFF
	SlotSelectCellShift = 8
)

// Chip identifiers reported by RegChipID.
const (
	ChipRevA0 uint32 = 0x05000303
	ChipRevA1 uint32 = 0x05010303
	ChipRevA2 uint32 = 0x05020303
	ChipLite  uint32 = 0x06000103
)

// SlotSelect encodes a strap cell and slot for RegSlot.
func SlotSelect(cell uint32, slot int) uint32 {
	return cell<<SlotSelectCellShift | uint32(slot)&0xFF
}

// DecodeSlot splits a RegSlot value into cell and slot.
func DecodeSlot(v uint32) (cell uint32, slot int) {
	return v >> SlotSelectCellShift, int(v & 0xFF)
}
