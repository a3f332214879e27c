// Package pic8259 assembles the legacy PC interrupt stack: an emulated
// cascaded 8259A controller pair on an I/O port bus, driven by the
// platform interrupt subsystem that a kernel would run on top of it.
// A Machine plays the CPU's part, acknowledging pending interrupts and
// feeding the resulting vectors into the platform dispatcher.
package pic8259

import (
	"context"
	"runtime"
	"sync"

	"github.com/tinyrange/pic8259/internal/devices/i8259"
	"github.com/tinyrange/pic8259/internal/platform"
	"github.com/tinyrange/pic8259/internal/portio"
)

// Machine wires the emulated controller pair to the platform interrupt
// subsystem and owns the delivery loop between them.
type Machine struct {
	bus  *portio.Bus
	pic  *i8259.DualPIC
	intc *platform.Controller
	gate cpuGate

	// pending wakes the delivery loop on a rising INT edge.
	pending chan struct{}
}

// cpuGate models the CPU's local interrupt-enable flag. Holding it
// shuts out the delivery loop, which acquires it around every
// acknowledge/dispatch cycle.
type cpuGate struct {
	mu sync.Mutex
}

func (g *cpuGate) SaveAndDisable() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// NewMachine builds a machine with the controller pair registered on
// the port bus and the platform subsystem initialized (all lines
// masked).
func NewMachine() (*Machine, error) {
	m := &Machine{
		bus:     portio.NewBus(),
		pic:     i8259.New(),
		pending: make(chan struct{}, 1),
	}
	if err := m.bus.RegisterPorts(m.pic, m.pic.Ports()...); err != nil {
		return nil, err
	}
	m.pic.SetIntOutput(func(high bool) {
		if high {
			select {
			case m.pending <- struct{}{}:
			default:
			}
		}
	})

	m.intc = platform.New(m.bus, &m.gate)
	m.intc.Init()
	return m, nil
}

// Interrupts returns the platform interrupt controller for handler
// registration and masking.
func (m *Machine) Interrupts() *platform.Controller {
	return m.intc
}

// Bus returns the machine's I/O port bus, for attaching further
// devices.
func (m *Machine) Bus() *portio.Bus {
	return m.bus
}

// RaiseIRQ pulses hardware line 0-15, latching one interrupt request.
func (m *Machine) RaiseIRQ(line uint8) {
	m.pic.SetIRQ(line, true)
	m.pic.SetIRQ(line, false)
}

// Service delivers every pending interrupt: acknowledge, dispatch, EOI.
// Each delivery runs with the interrupt gate held, as a CPU interrupt
// gate would clear IF. It returns the number of interrupts delivered
// and whether any handler requested a reschedule.
func (m *Machine) Service() (delivered int, resched bool) {
	for {
		m.gate.mu.Lock()
		vec, ok := m.pic.Acknowledge()
		if !ok {
			m.gate.mu.Unlock()
			return delivered, resched
		}
		if m.intc.Dispatch(uint(vec)) == platform.Reschedule {
			resched = true
		}
		m.gate.mu.Unlock()
		delivered++
	}
}

// Run services interrupts until ctx is done, yielding the processor
// whenever a handler asks for a reschedule.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.pending:
			if _, resched := m.Service(); resched {
				runtime.Gosched()
			}
		}
	}
}
