package otp

import (
	"fmt"
	"math"
	"strings"
)

// Region is a named subrange of the OTP array.
type Region int

const (
	BulkData Region = iota
	Configuration
	Strap
	Security

	regionCount
)

// Regions lists every region kind in protection-bit order.
var Regions = []Region{BulkData, Configuration, Strap, Security}

func (r Region) String() string {
	switch r {
	case BulkData:
		return "BulkData"
	case Configuration:
		return "Configuration"
	case Strap:
		return "Strap"
	case Security:
		return "Security"
	}
	return fmt.Sprintf("Region(%d)", int(r))
}

func (r Region) valid() bool {
	return r >= 0 && r < regionCount
}

// ParseRegion accepts region names and common abbreviations.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(s) {
	case "bulkdata", "bulk", "data":
		return BulkData, nil
	case "configuration", "config", "conf":
		return Configuration, nil
	case "strap", "straps":
		return Strap, nil
	case "security", "secure", "key", "keys":
		return Security, nil
	}
	return 0, fmt.Errorf("unknown region %q", s)
}

// RegionInfo describes a region of a chip variant in storage words.
type RegionInfo struct {
	Region Region

	// Base is the physical word address of offset zero. For
	// attempt-limited regions it is the first cell index.
	Base uint32

	// Capacity is the size in words, or in cells for attempt-limited regions
	Capacity uint32

	// Alignment is the required offset alignment in words
	Alignment uint32

	Protectable bool
	SoakCapable bool

	// Secret regions are never readable without a session and become
	// unreadable once protected.
	Secret bool

	// AttemptLimited regions are backed by redundant write slots
	AttemptLimited bool
	Slots          int
	SlotBudget     int
}

// PhysicalRange is the result of resolving a region transfer.
type PhysicalRange struct {
	Region Region
	Offset uint32
	Start  uint32
	Length uint32
}

// Address returns the physical address of the i-th word of the range.
func (p PhysicalRange) Address(i int) uint32 {
	return p.Start + uint32(i)
}

// RegionMap is the static layout of one chip variant at one word width.
type RegionMap struct {
	variant  Variant
	wordBits int
	regions  [regionCount]*RegionInfo
}

// NewRegionMap builds the layout of variant v for words of wordBits bits.
func NewRegionMap(v Variant, wordBits int) (*RegionMap, error) {
	layout := v.layout()
	if layout == nil {
		return nil, newError(UnknownChip, "region map", fmt.Errorf("no layout for variant %s", v))
	}
	switch wordBits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("unsupported word width %d", wordBits)
	}
	wordBytes := uint32(wordBits / 8)
	m := &RegionMap{variant: v, wordBits: wordBits}
	for _, l := range layout {
		info := &RegionInfo{
			Region:      l.region,
			Protectable: l.protectable,
			SoakCapable: l.soak,
			Secret:      l.secret,
		}
		if l.slots > 0 {
			info.AttemptLimited = true
			info.Base = l.base
			info.Capacity = l.size
			info.Alignment = 1
			info.Slots = l.slots
			info.SlotBudget = l.budget
		} else {
			info.Base = l.base / wordBytes
			info.Capacity = l.size / wordBytes
			info.Alignment = max(1, l.align/wordBytes)
		}
		m.regions[l.region] = info
	}
	return m, nil
}

// Variant returns the chip variant the map describes.
func (m *RegionMap) Variant() Variant {
	return m.variant
}

// WordBits returns the storage word width.
func (m *RegionMap) WordBits() int {
	return m.wordBits
}

// Lookup returns the region description, if the variant has the region.
func (m *RegionMap) Lookup(r Region) (RegionInfo, bool) {
	if !r.valid() || m.regions[r] == nil {
		return RegionInfo{}, false
	}
	return *m.regions[r], true
}

// Regions returns the regions present on the variant.
func (m *RegionMap) Regions() []RegionInfo {
	var out []RegionInfo
	for _, info := range m.regions {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// TotalCapacity returns the size of the word-addressed regions in bytes.
func (m *RegionMap) TotalCapacity() int {
	total := 0
	for _, info := range m.regions {
		if info != nil && !info.AttemptLimited {
			total += int(info.Capacity) * m.wordBits / 8
		}
	}
	return total
}

// Resolve validates a transfer of length words at offset and maps it to
// physical addresses. It never touches hardware.
func (m *RegionMap) Resolve(r Region, offset, length uint32) (PhysicalRange, error) {
	return m.resolve("resolve", r, offset, length)
}

func (m *RegionMap) resolve(op string, r Region, offset, length uint32) (PhysicalRange, error) {
	info, ok := m.Lookup(r)
	if !ok {
		return PhysicalRange{}, addrError(InvalidAddress, op, r, offset,
			fmt.Errorf("variant %s has no %s region", m.variant, r))
	}
	if offset >= info.Capacity {
		return PhysicalRange{}, addrError(InvalidAddress, op, r, offset,
			fmt.Errorf("capacity is %d", info.Capacity))
	}
	if offset%info.Alignment != 0 {
		return PhysicalRange{}, addrError(AlignmentError, op, r, offset,
			fmt.Errorf("offset must be a multiple of %d", info.Alignment))
	}
	if uint64(offset)+uint64(length) > uint64(info.Capacity) {
		return PhysicalRange{}, addrError(BoundaryError, op, r, offset,
			fmt.Errorf("%d words at offset %d exceed capacity %d", length, offset, info.Capacity))
	}
	return PhysicalRange{Region: r, Offset: offset, Start: info.Base + offset, Length: length}, nil
}

// transferLength converts a caller-supplied word count to the width resolve
// takes, rejecting counts no region can hold.
func transferLength(op string, region Region, offset uint32, n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, addrError(BoundaryError, op, region, offset, fmt.Errorf("length %d out of range", n))
	}
	return uint32(n), nil
}
