//go:build linux

package iohub

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	i2cSlaveIoctl = 0x0703 // I2C_SLAVE from linux/i2c-dev.h
	i2cDevPath    = "/dev/i2c-1"
)

// linuxI2C is the shared I2C-1 bus singleton (BCM header's SDA1/SCL1 pins).
// Every Tx re-targets the slave address via I2C_SLAVE before the
// read/write, since the bus is shared across devices with different
// addresses (e.g. the BME280 at 0x76).
type linuxI2C struct {
	mu sync.Mutex
	fd int
}

func newLinuxI2C() (*linuxI2C, error) {
	fd, err := unix.Open(i2cDevPath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", i2cDevPath, err)
	}
	return &linuxI2C{fd: fd}, nil
}

func (b *linuxI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := unix.IoctlSetInt(b.fd, i2cSlaveIoctl, int(addr)); err != nil {
		return fmt.Errorf("I2C_SLAVE 0x%02x: %w", addr, err)
	}
	if len(w) > 0 {
		if _, err := unix.Write(b.fd, w); err != nil {
			return fmt.Errorf("i2c write: %w", err)
		}
	}
	if len(r) > 0 {
		if _, err := unix.Read(b.fd, r); err != nil {
			return fmt.Errorf("i2c read: %w", err)
		}
	}
	return nil
}
