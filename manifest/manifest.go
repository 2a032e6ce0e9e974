package manifest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/moffa90/go-otp/otp"
	"golang.org/x/crypto/blake2b"
)

// WordEntry programs consecutive words of a region.
type WordEntry struct {
	Region otp.Region
	Offset uint32
	Values []uint64
}

// StrapEntry drives one strap cell to a logical value.
type StrapEntry struct {
	Cell  uint32
	Value bool
}

// Manifest is a declarative provisioning plan. Entries are applied in
// order: words, straps, region protection, then the global lock.
type Manifest struct {
	// Variant is the chip the plan was written for. VariantUnknown
	// applies to any chip.
	Variant otp.Variant

	Words   []WordEntry
	Straps  []StrapEntry
	Protect []otp.Region
	Lock    bool
}

// Digest is the BLAKE2b-256 hash of the canonical text encoding.
type Digest [blake2b.Size256]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Digest identifies the plan independently of its source format, so the
// same plan in YAML and text hashes the same.
func (m *Manifest) Digest() Digest {
	return blake2b.Sum256(m.canonical())
}

// MarshalText encodes the manifest in the line-oriented text format.
func (m *Manifest) MarshalText() ([]byte, error) {
	return m.canonical(), nil
}

func (m *Manifest) canonical() []byte {
	var b bytes.Buffer
	if m.Variant != otp.VariantUnknown {
		fmt.Fprintf(&b, "V %s\n", m.Variant)
	}
	for _, w := range m.Words {
		fmt.Fprintf(&b, "W %s 0x%X", w.Region, w.Offset)
		for _, v := range w.Values {
			fmt.Fprintf(&b, " 0x%X", v)
		}
		b.WriteByte('\n')
	}
	for _, s := range m.Straps {
		v := 0
		if s.Value {
			v = 1
		}
		fmt.Fprintf(&b, "S %d %d\n", s.Cell, v)
	}
	for _, r := range m.Protect {
		fmt.Fprintf(&b, "P %s\n", r)
	}
	if m.Lock {
		b.WriteString("L\n")
	}
	return b.Bytes()
}

// WordCount returns the number of words the plan programs.
func (m *Manifest) WordCount() int {
	n := 0
	for _, w := range m.Words {
		n += len(w.Values)
	}
	return n
}

// Validate checks the plan for contradictions that need no hardware to
// detect.
func (m *Manifest) Validate() error {
	for i, w := range m.Words {
		if w.Region == otp.Strap {
			return fmt.Errorf("word entry %d: strap cells take S entries", i)
		}
		if len(w.Values) == 0 {
			return fmt.Errorf("word entry %d: no values", i)
		}
	}
	seen := make(map[uint32]bool)
	for _, s := range m.Straps {
		if seen[s.Cell] {
			return fmt.Errorf("strap cell %d listed twice", s.Cell)
		}
		seen[s.Cell] = true
	}
	return nil
}

// CheckWidth rejects values that do not fit in words of the given width.
func (m *Manifest) CheckWidth(wordBits int) error {
	for i, w := range m.Words {
		for j, v := range w.Values {
			if bits.Len64(v) > wordBits {
				return fmt.Errorf("word entry %d value %d: 0x%X does not fit in %d bits", i, j, v, wordBits)
			}
		}
	}
	return nil
}
