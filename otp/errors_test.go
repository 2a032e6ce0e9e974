package otp

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/moffa90/go-otp/register"
)

func TestDeviceMismatchError(t *testing.T) {
	err := &DeviceMismatchError{
		Expected: VariantLite,
		ChipID:   register.ChipRevA1,
	}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "device mismatch") {
		t.Errorf("error message should contain 'device mismatch', got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "Lite") {
		t.Errorf("error message should contain expected variant, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "0x05010303") {
		t.Errorf("error message should contain chip ID, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "RevA1") {
		t.Errorf("error message should contain detected variant, got: %s", errMsg)
	}
}

func TestVerificationError(t *testing.T) {
	err := &VerificationError{
		Address:  0x42,
		Target:   0xFF,
		Readback: 0x0F,
	}

	if err.Missing() != 0xF0 {
		t.Errorf("Missing() = 0x%X, want 0xF0", err.Missing())
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "word 0x42") {
		t.Errorf("error message should contain address, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, "missing 0xF0") {
		t.Errorf("error message should contain missing bits, got: %s", errMsg)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: NoSession},
			want: "otp: no session",
		},
		{
			name: "with op",
			err:  newError(MemoryLocked, "write", nil),
			want: "otp: write: memory locked",
		},
		{
			name: "with address and cause",
			err:  addrError(BoundaryError, "write region", BulkData, 0x7F8, fmt.Errorf("too long")),
			want: "otp: write region BulkData[0x7F8]: boundary error: too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("provision: %w", addrError(RegionProtected, "write", Configuration, 0, nil))

	if !errors.Is(err, ErrRegionProtected) {
		t.Error("errors.Is should match the sentinel of the same kind")
	}
	if errors.Is(err, ErrMemoryLocked) {
		t.Error("errors.Is should not match a different kind")
	}
	if KindOf(err) != RegionProtected {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), RegionProtected)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf() of a foreign error should be KindUnknown")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := &register.HardwareError{Operation: "program", Status: register.StatusReady | register.StatusFault}
	err := newError(HardwareFault, "write", cause)

	var hwErr *register.HardwareError
	if !errors.As(err, &hwErr) {
		t.Fatal("errors.As should find the HardwareError")
	}
	if !strings.Contains(err.Error(), "fault") {
		t.Errorf("error message should contain the status, got: %s", err.Error())
	}
}

func TestErrorKindString(t *testing.T) {
	kinds := []ErrorKind{
		InvalidAddress, AlignmentError, BoundaryError, RegionProtected, MemoryLocked,
		NoSession, AlreadyActive, WriteExhausted, VerificationFailed, Timeout,
		HardwareFault, Unsupported, UnknownChip,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "unknown error" {
			t.Errorf("kind %d has no name", int(k))
		}
		if seen[s] {
			t.Errorf("duplicate kind name %q", s)
		}
		seen[s] = true
	}
}
