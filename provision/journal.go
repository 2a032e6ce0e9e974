package provision

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/moffa90/go-otp/otp"
)

// EntryKind classifies journal entries.
type EntryKind uint8

const (
	EntryWord EntryKind = iota
	EntryStrap
	EntryProtect
	EntryLock
)

func (k EntryKind) String() string {
	switch k {
	case EntryWord:
		return "word"
	case EntryStrap:
		return "strap"
	case EntryProtect:
		return "protect"
	case EntryLock:
		return "lock"
	}
	return fmt.Sprintf("EntryKind(%d)", uint8(k))
}

// Entry is one journal record. CBOR encoding uses integer keys.
type Entry struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID is the session the entry was written in
	SessionID string `cbor:"2,keyasint"`

	// Digest identifies the manifest being applied
	Digest []byte `cbor:"3,keyasint,omitempty"`

	Kind   EntryKind  `cbor:"4,keyasint"`
	Region otp.Region `cbor:"5,keyasint"`
	Offset uint32     `cbor:"6,keyasint"`

	Address  uint32 `cbor:"7,keyasint,omitempty"`
	Target   uint64 `cbor:"8,keyasint,omitempty"`
	Readback uint64 `cbor:"9,keyasint,omitempty"`
	Result   string `cbor:"10,keyasint,omitempty"`
	Pulses   int    `cbor:"11,keyasint,omitempty"`
	Error    string `cbor:"12,keyasint,omitempty"`
}

// Journal records what a provisioning run did to the array.
type Journal interface {
	Record(e Entry) error
}

var (
	journalEncMode cbor.EncMode
	journalDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	journalEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	journalDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR decoder mode: %v", err))
	}
}

// ErrJournalClosed is returned by Record after Close.
var ErrJournalClosed = errors.New("provision: journal closed")

// FileJournal appends CBOR-encoded entries to a file. It is safe for
// concurrent use.
type FileJournal struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// OpenFileJournal opens path for appending, creating it with permissions
// 0644 if needed.
func OpenFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{
		file:    f,
		encoder: journalEncMode.NewEncoder(f),
	}, nil
}

// Record appends one entry.
func (j *FileJournal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}
	return j.encoder.Encode(e)
}

// Close closes the file. Calling it more than once is harmless.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

var _ Journal = (*FileJournal)(nil)

// ReadJournal decodes every entry of a journal file in write order.
func ReadJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dec := journalDecMode.NewDecoder(f)
	var entries []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return entries, fmt.Errorf("journal entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}
