package otp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies OTP errors so callers can act on them without
// inspecting messages.
type ErrorKind int

const (
	// KindUnknown is returned by KindOf for errors not produced by this package
	KindUnknown ErrorKind = iota

	// InvalidAddress is an offset outside the region, or a region the
	// chip variant does not have
	InvalidAddress

	// AlignmentError is an offset that violates the region alignment
	AlignmentError

	// BoundaryError is a transfer that runs past the end of the region
	BoundaryError

	// RegionProtected is a write to a region whose protection bit is burned
	RegionProtected

	// MemoryLocked is a write after the global lock was burned
	MemoryLocked

	// NoSession is an operation that needs an active session
	NoSession

	// AlreadyActive is BeginSession while a session is active
	AlreadyActive

	// WriteExhausted means programming attempts ran out with bits still unset
	WriteExhausted

	// VerificationFailed means the normal pulse failed and soak was unavailable
	VerificationFailed

	// Timeout means the controller never reported ready
	Timeout

	// HardwareFault means the controller reported a fault or the bus failed
	HardwareFault

	// Unsupported is a capability the controller was not built with
	Unsupported

	// UnknownChip is a chip identifier that matches no known variant, or
	// not the one the controller was built for
	UnknownChip
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidAddress:
		return "invalid address"
	case AlignmentError:
		return "alignment error"
	case BoundaryError:
		return "boundary error"
	case RegionProtected:
		return "region protected"
	case MemoryLocked:
		return "memory locked"
	case NoSession:
		return "no session"
	case AlreadyActive:
		return "session already active"
	case WriteExhausted:
		return "write attempts exhausted"
	case VerificationFailed:
		return "verification failed"
	case Timeout:
		return "timeout"
	case HardwareFault:
		return "hardware fault"
	case Unsupported:
		return "unsupported"
	case UnknownChip:
		return "unknown chip"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by this package.
type Error struct {
	// Kind classifies the error
	Kind ErrorKind

	// Op is the operation that failed, e.g. "write"
	Op string

	// Region and Offset locate the failure when HasAddress is set
	Region     Region
	Offset     uint32
	HasAddress bool

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := "otp: "
	if e.Op != "" {
		msg += e.Op
		if e.HasAddress {
			msg += fmt.Sprintf(" %s[0x%X]", e.Region, e.Offset)
		}
		msg += ": "
	}
	msg += e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrMemoryLocked)
// works regardless of operation and address.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && !t.HasAddress && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrInvalidAddress     = &Error{Kind: InvalidAddress}
	ErrAlignment          = &Error{Kind: AlignmentError}
	ErrBoundary           = &Error{Kind: BoundaryError}
	ErrRegionProtected    = &Error{Kind: RegionProtected}
	ErrMemoryLocked       = &Error{Kind: MemoryLocked}
	ErrNoSession          = &Error{Kind: NoSession}
	ErrAlreadyActive      = &Error{Kind: AlreadyActive}
	ErrWriteExhausted     = &Error{Kind: WriteExhausted}
	ErrVerificationFailed = &Error{Kind: VerificationFailed}
	ErrTimeout            = &Error{Kind: Timeout}
	ErrHardwareFault      = &Error{Kind: HardwareFault}
	ErrUnsupported        = &Error{Kind: Unsupported}
	ErrUnknownChip        = &Error{Kind: UnknownChip}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func addrError(kind ErrorKind, op string, region Region, offset uint32, err error) *Error {
	return &Error{Kind: kind, Op: op, Region: region, Offset: offset, HasAddress: true, Err: err}
}

// VerificationError describes a word whose target bits did not all read
// back set.
type VerificationError struct {
	Address  uint32
	Target   uint64
	Readback uint64
}

// Missing returns the target bits that are still unset.
func (e *VerificationError) Missing() uint64 {
	return e.Target &^ e.Readback
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("word 0x%X: wanted bits 0x%X set, read 0x%X (missing 0x%X)",
		e.Address, e.Target, e.Readback, e.Missing())
}

// DeviceMismatchError indicates that the detected chip is not the variant
// the controller was built for.
type DeviceMismatchError struct {
	Expected Variant
	ChipID   uint32
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("device mismatch: controller built for %s, device reports chip ID 0x%08X (%s)",
		e.Expected, e.ChipID, VariantFromChipID(e.ChipID))
}
