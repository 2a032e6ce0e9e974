package register

import (
	"fmt"
	"time"
)

// Bus is synchronous access to the OTP controller registers.
//
// Implementations are not required to be safe for concurrent use; the otp
// package only touches a Bus from the goroutine owning the active session.
type Bus interface {
	// ReadWord reads the 32-bit register at the given byte offset
	ReadWord(offset uint32) (uint32, error)

	// WriteWord writes the 32-bit register at the given byte offset
	WriteWord(offset uint32, value uint32) error

	// WaitUntilReady blocks until the controller reports Ready or the
	// timeout elapses, and reports which happened.
	WaitUntilReady(timeout time.Duration) (bool, error)
}

// DefaultPollInterval is the status polling interval used by Poll
// when none is given.
const DefaultPollInterval = 10 * time.Microsecond

// Poll reads RegStatus until StatusReady is set or the timeout elapses.
// Backends without a hardware wait primitive implement WaitUntilReady
// with it.
func Poll(b Bus, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := b.ReadWord(RegStatus)
		if err != nil {
			return false, fmt.Errorf("read status: %w", err)
		}
		if st&StatusReady != 0 {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(interval)
	}
}
