package register

import (
	"fmt"
	"os"
	"time"

	"periph.io/x/host/v3/pmem"
)

// MMIO accesses a memory-mapped controller window through /dev/mem.
type MMIO struct {
	view *pmem.View
	regs []uint32
	base uint64
	Poll time.Duration
}

// OpenMMIO maps the register window starting at the physical address base.
// The caller needs permission to map physical memory.
func OpenMMIO(base uint64) (*MMIO, error) {
	page := uint64(os.Getpagesize())
	aligned := base &^ (page - 1)
	delta := base - aligned
	view, err := pmem.Map(aligned, int(delta)+WindowSize)
	if err != nil {
		return nil, fmt.Errorf("map registers at 0x%X: %w", base, err)
	}
	words := view.Uint32()
	return &MMIO{
		view: view,
		regs: words[delta/4 : delta/4+WindowSize/4],
		base: base,
	}, nil
}

func (m *MMIO) ReadWord(offset uint32) (uint32, error) {
	if err := m.check(offset); err != nil {
		return 0, err
	}
	return m.regs[offset/4], nil
}

func (m *MMIO) WriteWord(offset uint32, value uint32) error {
	if err := m.check(offset); err != nil {
		return err
	}
	m.regs[offset/4] = value
	return nil
}

func (m *MMIO) WaitUntilReady(timeout time.Duration) (bool, error) {
	return Poll(m, timeout, m.Poll)
}

// Close unmaps the register window.
func (m *MMIO) Close() error {
	m.regs = nil
	return m.view.Close()
}

func (m *MMIO) String() string {
	return fmt.Sprintf("mmio@0x%X", m.base)
}

func (m *MMIO) check(offset uint32) error {
	if m.regs == nil {
		return fmt.Errorf("mmio: window closed")
	}
	if offset%4 != 0 || offset >= WindowSize {
		return fmt.Errorf("mmio: invalid register offset 0x%02X", offset)
	}
	return nil
}

var _ Bus = (*MMIO)(nil)
