package register

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// I2C reaches the controller registers through an I2C register bridge.
// Each transfer starts with the register offset byte; values are
// little-endian.
type I2C struct {
	dev  *i2c.Dev
	Poll time.Duration
}

// NewI2C returns a Bus talking to the bridge at addr on bus.
func NewI2C(bus i2c.Bus, addr uint16) *I2C {
	return &I2C{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (b *I2C) ReadWord(offset uint32) (uint32, error) {
	if offset >= WindowSize {
		return 0, fmt.Errorf("i2c: invalid register offset 0x%02X", offset)
	}
	var r [4]byte
	if err := b.dev.Tx([]byte{byte(offset)}, r[:]); err != nil {
		return 0, fmt.Errorf("i2c: read 0x%02X: %w", offset, err)
	}
	return binary.LittleEndian.Uint32(r[:]), nil
}

func (b *I2C) WriteWord(offset uint32, value uint32) error {
	if offset >= WindowSize {
		return fmt.Errorf("i2c: invalid register offset 0x%02X", offset)
	}
	var w [5]byte
	w[0] = byte(offset)
	binary.LittleEndian.PutUint32(w[1:], value)
	if err := b.dev.Tx(w[:], nil); err != nil {
		return fmt.Errorf("i2c: write 0x%02X: %w", offset, err)
	}
	return nil
}

func (b *I2C) WaitUntilReady(timeout time.Duration) (bool, error) {
	return Poll(b, timeout, b.Poll)
}

func (b *I2C) String() string {
	return fmt.Sprintf("i2c@0x%02X", b.dev.Addr)
}

var _ Bus = (*I2C)(nil)
