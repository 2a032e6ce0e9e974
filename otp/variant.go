package otp

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-otp/register"
)

// Variant identifies a chip revision. The set is closed; every switch over
// it is exhaustive.
type Variant int

const (
	// VariantUnknown makes the controller detect the variant at session start
	VariantUnknown Variant = iota
	VariantRevA0
	VariantRevA1
	VariantRevA2
	VariantLite
)

// Variants lists every supported chip variant.
var Variants = []Variant{VariantRevA0, VariantRevA1, VariantRevA2, VariantLite}

func (v Variant) String() string {
	switch v {
	case VariantRevA0:
		return "RevA0"
	case VariantRevA1:
		return "RevA1"
	case VariantRevA2:
		return "RevA2"
	case VariantLite:
		return "Lite"
	case VariantUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// ChipID returns the identifier the variant reports in RegChipID.
func (v Variant) ChipID() uint32 {
	switch v {
	case VariantRevA0:
		return register.ChipRevA0
	case VariantRevA1:
		return register.ChipRevA1
	case VariantRevA2:
		return register.ChipRevA2
	case VariantLite:
		return register.ChipLite
	case VariantUnknown:
	}
	return 0
}

// VariantFromChipID maps a chip identifier to its variant.
func VariantFromChipID(id uint32) Variant {
	for _, v := range Variants {
		if v.ChipID() == id {
			return v
		}
	}
	return VariantUnknown
}

// ParseVariant accepts variant names case-insensitively.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return VariantUnknown, fmt.Errorf("unknown chip variant %q", s)
}

// regionLayout describes a region in bytes, independent of word width.
// Attempt-limited regions count cells instead of bytes.
type regionLayout struct {
	region      Region
	base        uint32
	size        uint32
	align       uint32
	protectable bool
	soak        bool
	secret      bool
	slots       int
	budget      int
}

const (
	strapCells = 64
	strapSlots = 7
)

func (v Variant) layout() []regionLayout {
	switch v {
	case VariantRevA0:
		return []regionLayout{
			{region: BulkData, base: 0x0000, size: 0x2000, align: 4, soak: true},
			{region: Configuration, base: 0x2000, size: 0x80, align: 4, protectable: true, soak: true},
			{region: Strap, size: strapCells, align: 1, protectable: true, slots: strapSlots, budget: 1},
		}
	case VariantRevA1:
		return []regionLayout{
			{region: BulkData, base: 0x0000, size: 0x2000, align: 4, soak: true},
			{region: Configuration, base: 0x2000, size: 0x80, align: 4, protectable: true, soak: true},
			{region: Strap, size: strapCells, align: 1, protectable: true, slots: strapSlots, budget: 1},
			{region: Security, base: 0x2080, size: 0x800, align: 32, protectable: true, secret: true},
		}
	case VariantRevA2:
		return []regionLayout{
			{region: BulkData, base: 0x0000, size: 0x2000, align: 4, soak: true},
			{region: Configuration, base: 0x2000, size: 0x80, align: 4, protectable: true, soak: true},
			{region: Strap, size: strapCells, align: 1, protectable: true, soak: true, slots: strapSlots, budget: 3},
			{region: Security, base: 0x2080, size: 0x800, align: 32, protectable: true, secret: true, soak: true},
		}
	case VariantLite:
		return []regionLayout{
			{region: BulkData, base: 0x0000, size: 0x1000, align: 4},
			{region: Configuration, base: 0x1000, size: 0x40, align: 4, protectable: true},
		}
	case VariantUnknown:
	}
	return nil
}

// VersionName is the silicon revision name printed on the package.
func (v Variant) VersionName() string {
	switch v {
	case VariantRevA0:
		return "A0"
	case VariantRevA1:
		return "A1"
	case VariantRevA2:
		return "A2"
	case VariantLite:
		return "L0"
	case VariantUnknown:
	}
	return ""
}
