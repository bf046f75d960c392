//go:build linux

package iohub

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const spiIOCMagic = 'k' // SPI_IOC_MAGIC from linux/spi/spidev.h

// spiIOCTransfer mirrors struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	wordDelay   uint8
	pad         uint8
}

// linuxSPI is a single /dev/spidevB.C chip-select, opened on first claim.
type linuxSPI struct {
	mu sync.Mutex
	fd int
}

func newLinuxSPI(bus int) (*linuxSPI, error) {
	path := fmt.Sprintf("/dev/spidev%d.0", bus)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &linuxSPI{fd: fd}, nil
}

func (s *linuxSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	xfer := spiIOCTransfer{
		len:         uint32(n),
		speedHz:     500000,
		bitsPerWord: 8,
	}
	if len(w) > 0 {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if len(r) > 0 {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}

	nr := iow(spiIOCMagic, 0, unsafe.Sizeof(xfer))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), nr, uintptr(unsafe.Pointer(&xfer))); errno != 0 {
		return fmt.Errorf("SPI_IOC_MESSAGE: %w", errno)
	}
	return nil
}
