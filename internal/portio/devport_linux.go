//go:build linux

package portio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DevPort is a ByteIO backed by the kernel's /dev/port device, giving
// access to the physical I/O port space. Requires CAP_SYS_RAWIO.
type DevPort struct {
	fd int
}

// OpenDevPort opens /dev/port for raw port access.
func OpenDevPort() (*DevPort, error) {
	fd, err := unix.Open("/dev/port", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("portio: open /dev/port: %w", err)
	}
	return &DevPort{fd: fd}, nil
}

// Inb reads one byte from a physical port.
func (p *DevPort) Inb(port uint16) byte {
	var data [1]byte
	if n, err := unix.Pread(p.fd, data[:], int64(port)); err != nil || n != 1 {
		return 0xff
	}
	return data[0]
}

// Outb writes one byte to a physical port.
func (p *DevPort) Outb(port uint16, value byte) {
	data := [1]byte{value}
	_, _ = unix.Pwrite(p.fd, data[:], int64(port))
}

// Close releases the /dev/port file descriptor.
func (p *DevPort) Close() error {
	return unix.Close(p.fd)
}

var _ ByteIO = (*DevPort)(nil)
