package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moffa90/go-otp/otp"
	"gopkg.in/yaml.v3"
)

// Format selects a manifest encoding.
type Format int

const (
	// FormatAuto picks YAML for .yaml and .yml files and text otherwise
	FormatAuto Format = iota
	FormatText
	FormatYAML
)

// Parse loads a manifest from the given file path.
//
// Example:
//
//	m, err := manifest.Parse("board.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d words, digest %s\n", m.WordCount(), m.Digest())
func Parse(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	format := FormatText
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return ParseReader(f, format)
}

// ParseReader decodes a manifest from any io.Reader. FormatAuto is treated
// as text.
func ParseReader(r io.Reader, format Format) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)
	if format == FormatYAML {
		m, err = parseYAML(r)
	} else {
		m, err = parseText(r)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseText reads the line format:
//
//	V <variant>
//	W <region> <offset> <value>...
//	S <cell> <0|1>
//	P <region>
//	L
//
// '#' starts a comment. Numbers accept 0x, 0o and 0b prefixes.
func parseText(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := m.parseLine(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return m, nil
}

func (m *Manifest) parseLine(fields []string) error {
	args := fields[1:]
	switch strings.ToUpper(fields[0]) {
	case "V":
		if len(args) != 1 {
			return fmt.Errorf("V takes one variant, got %d fields", len(args))
		}
		v, err := otp.ParseVariant(args[0])
		if err != nil {
			return err
		}
		m.Variant = v

	case "W":
		if len(args) < 3 {
			return fmt.Errorf("W needs a region, an offset and at least one value")
		}
		region, err := otp.ParseRegion(args[0])
		if err != nil {
			return err
		}
		offset, err := parseUint(args[1], 32)
		if err != nil {
			return fmt.Errorf("offset: %w", err)
		}
		entry := WordEntry{Region: region, Offset: uint32(offset), Values: make([]uint64, 0, len(args)-2)}
		for _, s := range args[2:] {
			v, err := parseUint(s, 64)
			if err != nil {
				return fmt.Errorf("value: %w", err)
			}
			entry.Values = append(entry.Values, v)
		}
		m.Words = append(m.Words, entry)

	case "S":
		if len(args) != 2 {
			return fmt.Errorf("S takes a cell and a value, got %d fields", len(args))
		}
		cell, err := parseUint(args[0], 32)
		if err != nil {
			return fmt.Errorf("cell: %w", err)
		}
		var value bool
		switch args[1] {
		case "0":
		case "1":
			value = true
		default:
			return fmt.Errorf("strap value must be 0 or 1, got %q", args[1])
		}
		m.Straps = append(m.Straps, StrapEntry{Cell: uint32(cell), Value: value})

	case "P":
		if len(args) != 1 {
			return fmt.Errorf("P takes one region, got %d fields", len(args))
		}
		region, err := otp.ParseRegion(args[0])
		if err != nil {
			return err
		}
		m.Protect = append(m.Protect, region)

	case "L":
		if len(args) != 0 {
			return fmt.Errorf("L takes no arguments")
		}
		m.Lock = true

	default:
		return fmt.Errorf("unknown record type %q", fields[0])
	}
	return nil
}

func parseUint(s string, bitSize int) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, bitSize)
}

type yamlManifest struct {
	Variant string      `yaml:"variant"`
	Words   []yamlWords `yaml:"words"`
	Straps  []yamlStrap `yaml:"straps"`
	Protect []string    `yaml:"protect"`
	Lock    bool        `yaml:"lock"`
}

type yamlWords struct {
	Region string   `yaml:"region"`
	Offset uint32   `yaml:"offset"`
	Values []uint64 `yaml:"values"`
}

type yamlStrap struct {
	Cell  uint32    `yaml:"cell"`
	Value strapBool `yaml:"value"`
}

// strapBool accepts true/false as well as 0/1.
type strapBool bool

func (b *strapBool) UnmarshalYAML(value *yaml.Node) error {
	var v bool
	if err := value.Decode(&v); err == nil {
		*b = strapBool(v)
		return nil
	}
	var n int
	if err := value.Decode(&n); err != nil || (n != 0 && n != 1) {
		return fmt.Errorf("line %d: strap value must be a bool, 0 or 1, got %q", value.Line, value.Value)
	}
	*b = n == 1
	return nil
}

func parseYAML(r io.Reader) (*Manifest, error) {
	var doc yamlManifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	m := &Manifest{Lock: doc.Lock}
	if doc.Variant != "" {
		v, err := otp.ParseVariant(doc.Variant)
		if err != nil {
			return nil, err
		}
		m.Variant = v
	}
	for i, w := range doc.Words {
		region, err := otp.ParseRegion(w.Region)
		if err != nil {
			return nil, fmt.Errorf("words[%d]: %w", i, err)
		}
		m.Words = append(m.Words, WordEntry{Region: region, Offset: w.Offset, Values: w.Values})
	}
	for _, s := range doc.Straps {
		m.Straps = append(m.Straps, StrapEntry{Cell: s.Cell, Value: bool(s.Value)})
	}
	for i, p := range doc.Protect {
		region, err := otp.ParseRegion(p)
		if err != nil {
			return nil, fmt.Errorf("protect[%d]: %w", i, err)
		}
		m.Protect = append(m.Protect, region)
	}
	return m, nil
}
