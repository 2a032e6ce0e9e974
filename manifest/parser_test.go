package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moffa90/go-otp/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textManifest = `# board bring-up
V RevA1
W configuration 0x0 0xA5A50001 0xFF
W bulk 0x100 0x1 0x2 0x3
S 3 1
S 4 0   # explicitly cleared
P config
L
`

const yamlManifestDoc = `variant: RevA1
words:
  - region: configuration
    offset: 0x0
    values: [0xA5A50001, 0xFF]
  - region: bulk
    offset: 0x100
    values: [1, 2, 3]
straps:
  - cell: 3
    value: true
  - cell: 4
    value: 0
protect: [config]
lock: true
`

func TestParseText(t *testing.T) {
	m, err := ParseReader(strings.NewReader(textManifest), FormatText)
	require.NoError(t, err)

	assert.Equal(t, otp.VariantRevA1, m.Variant)
	require.Len(t, m.Words, 2)
	assert.Equal(t, WordEntry{Region: otp.Configuration, Offset: 0, Values: []uint64{0xA5A50001, 0xFF}}, m.Words[0])
	assert.Equal(t, otp.BulkData, m.Words[1].Region)
	assert.Equal(t, uint32(0x100), m.Words[1].Offset)
	assert.Equal(t, []StrapEntry{{Cell: 3, Value: true}, {Cell: 4, Value: false}}, m.Straps)
	assert.Equal(t, []otp.Region{otp.Configuration}, m.Protect)
	assert.True(t, m.Lock)
	assert.Equal(t, 5, m.WordCount())
}

func TestParseYAMLMatchesText(t *testing.T) {
	text, err := ParseReader(strings.NewReader(textManifest), FormatText)
	require.NoError(t, err)
	doc, err := ParseReader(strings.NewReader(yamlManifestDoc), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, text, doc)
	assert.Equal(t, text.Digest(), doc.Digest())
}

func TestDigestChangesWithContent(t *testing.T) {
	m, err := ParseReader(strings.NewReader(textManifest), FormatText)
	require.NoError(t, err)
	before := m.Digest()

	m.Lock = false
	assert.NotEqual(t, before, m.Digest())
	assert.Len(t, before.String(), 64)
}

func TestMarshalTextRoundTrip(t *testing.T) {
	m, err := ParseReader(strings.NewReader(yamlManifestDoc), FormatYAML)
	require.NoError(t, err)

	text, err := m.MarshalText()
	require.NoError(t, err)
	again, err := ParseReader(strings.NewReader(string(text)), FormatText)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestParseTextErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown record", "X 1 2", "line 1: unknown record type"},
		{"bad region", "W flash 0 1", "unknown region"},
		{"missing values", "W bulk 0", "at least one value"},
		{"bad number", "\nW bulk 0 0xZZ", "line 2: value"},
		{"bad strap", "S 1 2", "must be 0 or 1"},
		{"bad variant", "V RevB0", "unknown chip variant"},
		{"lock args", "L now", "no arguments"},
		{"duplicate strap", "S 1 1\nS 1 0", "listed twice"},
		{"strap as words", "W strap 0 1", "S entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReader(strings.NewReader(tt.input), FormatText)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseYAMLErrors(t *testing.T) {
	_, err := ParseReader(strings.NewReader("words:\n  - region: bulk\n    offset: 0\n    values: [1]\n    extra: 1\n"), FormatYAML)
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseReader(strings.NewReader("straps:\n  - cell: 1\n    value: 7\n"), FormatYAML)
	assert.ErrorContains(t, err, "strap value")

	_, err = ParseReader(strings.NewReader("protect: [flash]\n"), FormatYAML)
	assert.ErrorContains(t, err, "protect[0]")
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "board.yaml")
	textPath := filepath.Join(dir, "board.otp")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlManifestDoc), 0o644))
	require.NoError(t, os.WriteFile(textPath, []byte(textManifest), 0o644))

	a, err := Parse(yamlPath)
	require.NoError(t, err)
	b, err := Parse(textPath)
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())

	_, err = Parse(filepath.Join(dir, "missing.otp"))
	assert.Error(t, err)
}

func TestCheckWidth(t *testing.T) {
	m := &Manifest{Words: []WordEntry{{Region: otp.BulkData, Values: []uint64{0xFF, 0x1FF}}}}

	assert.NoError(t, m.CheckWidth(16))
	assert.ErrorContains(t, m.CheckWidth(8), "does not fit in 8 bits")
}
