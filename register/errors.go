package register

import (
	"fmt"
	"strings"
)

// HardwareError represents a command the controller finished with a
// fault or an unexpected status.
type HardwareError struct {
	// Operation is the command that failed
	Operation string

	// Status is the value of RegStatus after the command
	Status uint32
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%08X)", e.Operation, StatusName(e.Status), e.Status)
}

// IsHardwareError returns true if the error is a HardwareError.
func IsHardwareError(err error) bool {
	_, ok := err.(*HardwareError)
	return ok
}

// StatusName returns a human-readable rendering of a status word.
func StatusName(status uint32) string {
	var parts []string
	if status&StatusReady != 0 {
		parts = append(parts, "ready")
	} else {
		parts = append(parts, "busy")
	}
	if status&StatusFault != 0 {
		parts = append(parts, "fault")
	}
	if status&StatusUnlocked != 0 {
		parts = append(parts, "unlocked")
	} else {
		parts = append(parts, "locked")
	}
	if unknown := status &^ (StatusReady | StatusFault | StatusUnlocked); unknown != 0 {
		parts = append(parts, fmt.Sprintf("unknown bits 0x%X", unknown))
	}
	return strings.Join(parts, ",")
}

// CommandName returns the name of a command code.
func CommandName(cmd uint32) string {
	switch cmd {
	case CmdRead:
		return "read"
	case CmdProgram:
		return "program"
	case CmdReadSlot:
		return "read slot"
	case CmdProgramSlot:
		return "program slot"
	case CmdProtectRegion:
		return "protect region"
	case CmdGlobalLock:
		return "global lock"
	default:
		return fmt.Sprintf("unknown command 0x%02X", cmd)
	}
}
