package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionMapLayout(t *testing.T) {
	m, err := NewRegionMap(VariantRevA1, 32)
	require.NoError(t, err)

	bulk, ok := m.Lookup(BulkData)
	require.True(t, ok)
	assert.Equal(t, uint32(0), bulk.Base)
	assert.Equal(t, uint32(2048), bulk.Capacity)
	assert.Equal(t, uint32(1), bulk.Alignment)
	assert.True(t, bulk.SoakCapable)
	assert.False(t, bulk.Protectable)

	conf, ok := m.Lookup(Configuration)
	require.True(t, ok)
	assert.Equal(t, uint32(0x800), conf.Base)
	assert.Equal(t, uint32(32), conf.Capacity)
	assert.True(t, conf.Protectable)

	sec, ok := m.Lookup(Security)
	require.True(t, ok)
	assert.Equal(t, uint32(0x820), sec.Base)
	assert.Equal(t, uint32(512), sec.Capacity)
	assert.Equal(t, uint32(8), sec.Alignment)
	assert.True(t, sec.Secret)

	strap, ok := m.Lookup(Strap)
	require.True(t, ok)
	assert.True(t, strap.AttemptLimited)
	assert.Equal(t, uint32(64), strap.Capacity)
	assert.Equal(t, MaxSlots, strap.Slots)
	assert.Equal(t, 1, strap.SlotBudget)

	assert.Len(t, m.Regions(), 4)
	assert.Equal(t, 8192+128+2048, m.TotalCapacity())
}

func TestRegionMapWordWidths(t *testing.T) {
	tests := []struct {
		bits      int
		capacity  uint32
		alignment uint32
		secAlign  uint32
	}{
		{8, 8192, 4, 32},
		{16, 4096, 2, 16},
		{32, 2048, 1, 8},
		{64, 1024, 1, 4},
	}

	for _, tt := range tests {
		m, err := NewRegionMap(VariantRevA2, tt.bits)
		require.NoError(t, err, "width %d", tt.bits)

		bulk, _ := m.Lookup(BulkData)
		assert.Equal(t, tt.capacity, bulk.Capacity, "width %d", tt.bits)
		assert.Equal(t, tt.alignment, bulk.Alignment, "width %d", tt.bits)

		sec, _ := m.Lookup(Security)
		assert.Equal(t, tt.secAlign, sec.Alignment, "width %d", tt.bits)
	}

	_, err := NewRegionMap(VariantRevA0, 24)
	assert.Error(t, err)
}

func TestRegionMapLite(t *testing.T) {
	m, err := NewRegionMap(VariantLite, 32)
	require.NoError(t, err)

	_, ok := m.Lookup(Strap)
	assert.False(t, ok)
	_, ok = m.Lookup(Security)
	assert.False(t, ok)

	bulk, _ := m.Lookup(BulkData)
	assert.Equal(t, uint32(1024), bulk.Capacity)
	assert.False(t, bulk.SoakCapable)
}

func TestResolve(t *testing.T) {
	m, err := NewRegionMap(VariantRevA1, 32)
	require.NoError(t, err)

	tests := []struct {
		name   string
		region Region
		offset uint32
		length uint32
		kind   ErrorKind
		start  uint32
	}{
		{"last bulk word", BulkData, 2047, 1, KindUnknown, 2047},
		{"past bulk end", BulkData, 2048, 1, InvalidAddress, 0},
		{"region overrun", BulkData, 2040, 16, BoundaryError, 0},
		{"exact fit", BulkData, 2040, 8, KindUnknown, 2040},
		{"configuration base", Configuration, 4, 2, KindUnknown, 0x804},
		{"misaligned security", Security, 3, 1, AlignmentError, 0},
		{"aligned security", Security, 16, 8, KindUnknown, 0x830},
		{"strap cell", Strap, 63, 1, KindUnknown, 63},
		{"strap overrun", Strap, 60, 8, BoundaryError, 0},
		{"empty transfer", BulkData, 10, 0, KindUnknown, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := m.Resolve(tt.region, tt.offset, tt.length)
			if tt.kind == KindUnknown {
				require.NoError(t, err)
				assert.Equal(t, tt.start, rng.Start)
				assert.Equal(t, tt.length, rng.Length)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestResolveMissingRegion(t *testing.T) {
	m, err := NewRegionMap(VariantRevA0, 32)
	require.NoError(t, err)

	_, err = m.Resolve(Security, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseRegion(t *testing.T) {
	tests := map[string]Region{
		"bulk":          BulkData,
		"BulkData":      BulkData,
		"config":        Configuration,
		"Configuration": Configuration,
		"strap":         Strap,
		"SECURITY":      Security,
	}
	for in, want := range tests {
		got, err := ParseRegion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRegion("flash")
	assert.Error(t, err)
}

func TestVariantFromChipID(t *testing.T) {
	for _, v := range Variants {
		assert.Equal(t, v, VariantFromChipID(v.ChipID()))
		p, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, p)
	}
	assert.Equal(t, VariantUnknown, VariantFromChipID(0xDEADBEEF))
}
