// Package portio models the legacy x86 I/O port space at byte
// granularity. Devices claim individual ports on a Bus and serve reads
// and writes to them; consumers that only need the inb/outb primitives
// talk to a ByteIO.
package portio

import (
	"fmt"
	"sync"
)

// Handler serves reads and writes for a set of I/O ports.
type Handler interface {
	ReadIOPort(port uint16, data []byte) error
	WriteIOPort(port uint16, data []byte) error
}

// ByteIO is the inb/outb view of a port space. Unclaimed ports behave
// like a floating ISA bus: reads return 0xff, writes are dropped.
type ByteIO interface {
	Inb(port uint16) byte
	Outb(port uint16, value byte)
}

// Bus dispatches port accesses to the device that registered each port.
type Bus struct {
	mu       sync.Mutex
	handlers map[uint16]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint16]Handler)}
}

// RegisterPorts claims ports for a handler. Claiming a port twice is an
// error.
func (b *Bus) RegisterPorts(handler Handler, ports ...uint16) error {
	if handler == nil {
		return fmt.Errorf("portio: handler is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, port := range ports {
		if _, exists := b.handlers[port]; exists {
			return fmt.Errorf("portio: port 0x%04x already registered", port)
		}
		b.handlers[port] = handler
	}
	return nil
}

// HandlePIO dispatches a raw port access to the registered handler.
func (b *Bus) HandlePIO(port uint16, data []byte, isWrite bool) error {
	b.mu.Lock()
	handler, ok := b.handlers[port]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("portio: no handler for port 0x%04x", port)
	}
	if isWrite {
		return handler.WriteIOPort(port, data)
	}
	return handler.ReadIOPort(port, data)
}

// Inb reads one byte from a port. Unclaimed ports float high.
func (b *Bus) Inb(port uint16) byte {
	var data [1]byte
	if err := b.HandlePIO(port, data[:], false); err != nil {
		return 0xff
	}
	return data[0]
}

// Outb writes one byte to a port. Writes to unclaimed ports are dropped.
func (b *Bus) Outb(port uint16, value byte) {
	data := [1]byte{value}
	_ = b.HandlePIO(port, data[:], true)
}

var _ ByteIO = (*Bus)(nil)
