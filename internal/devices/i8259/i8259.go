// Package i8259 emulates the classic pair of cascaded 8259A interrupt
// controllers found on PC-compatible chipsets. The pair is programmed
// through I/O ports 0x20/0x21 and 0xa0/0xa1 and drives a single INT
// output toward the CPU; the secondary controller's output is wired to
// line 2 of the primary.
package i8259

import (
	"fmt"
	"math/bits"
	"sync"
)

const (
	PrimaryCommandPort   uint16 = 0x20
	PrimaryDataPort      uint16 = 0x21
	SecondaryCommandPort uint16 = 0xa0
	SecondaryDataPort    uint16 = 0xa1

	cascadeLine  = 2
	spuriousLine = 7
	lineMask     = 0x07
)

// IntOutputFunc receives level changes on the INT output toward the CPU.
// It is invoked with the device lock held and must not call back into
// the device.
type IntOutputFunc func(high bool)

// DualPIC is the cascaded controller pair.
type DualPIC struct {
	mu       sync.Mutex
	intOut   IntOutputFunc
	outLevel bool

	units [2]*unit
}

// New returns a powered-on, unprogrammed controller pair.
func New() *DualPIC {
	return &DualPIC{
		units: [2]*unit{
			newUnit(true),
			newUnit(false),
		},
	}
}

// SetIntOutput installs the INT output callback.
func (d *DualPIC) SetIntOutput(fn IntOutputFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intOut = fn
	d.syncLocked()
}

// Ports lists the I/O ports the pair responds to.
func (d *DualPIC) Ports() []uint16 {
	return []uint16{
		PrimaryCommandPort,
		PrimaryDataPort,
		SecondaryCommandPort,
		SecondaryDataPort,
	}
}

// SetIRQ drives hardware line 0-15. Requests latch on the rising edge
// and stay pending until acknowledged.
func (d *DualPIC) SetIRQ(line uint8, high bool) {
	if line >= 16 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if line >= 8 {
		d.units[1].setLine(line-8, high)
	} else {
		d.units[0].setLine(line, high)
	}
	d.syncLocked()
}

// Acknowledge performs the CPU's interrupt-acknowledge cycle. It
// returns the vector to deliver and whether a real request was pending;
// with nothing pending the spurious vector (line 7) is returned.
func (d *DualPIC) Acknowledge() (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	vec, ok := d.units[0].acknowledge()
	if ok && vec&lineMask == cascadeLine {
		vec, ok = d.units[1].acknowledge()
	}
	d.syncLocked()
	return vec, ok
}

func (d *DualPIC) ReadIOPort(port uint16, data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("i8259: invalid read size %d", len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch port {
	case PrimaryCommandPort:
		data[0] = d.units[0].readCommand()
	case PrimaryDataPort:
		data[0] = d.units[0].readData()
	case SecondaryCommandPort:
		data[0] = d.units[1].readCommand()
	case SecondaryDataPort:
		data[0] = d.units[1].readData()
	default:
		return fmt.Errorf("i8259: invalid read port 0x%04x", port)
	}
	return nil
}

func (d *DualPIC) WriteIOPort(port uint16, data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("i8259: invalid write size %d", len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch port {
	case PrimaryCommandPort:
		d.units[0].writeCommand(data[0])
	case PrimaryDataPort:
		d.units[0].writeData(data[0])
	case SecondaryCommandPort:
		d.units[1].writeCommand(data[0])
	case SecondaryDataPort:
		d.units[1].writeData(data[0])
	default:
		return fmt.Errorf("i8259: invalid write port 0x%04x", port)
	}
	d.syncLocked()
	return nil
}

// syncLocked propagates the secondary's output onto the primary's
// cascade line and updates the INT output level.
func (d *DualPIC) syncLocked() {
	d.units[0].setLine(cascadeLine, d.units[1].interruptPending())

	level := d.units[0].interruptPending()
	if level != d.outLevel {
		d.outLevel = level
		if d.intOut != nil {
			d.intOut(level)
		}
	}
}

type initStage int

const (
	stageUnprogrammed initStage = iota
	stageExpectVectorBase
	stageExpectCascade
	stageExpectMode
	stageReady
)

// unit models a single 8259A.
type unit struct {
	primary bool

	stage      initStage
	vectorBase byte
	mode       byte

	imr     byte // interrupt mask register; bit set = line disabled
	irr     byte // latched requests awaiting acknowledge
	isr     byte // lines currently in service
	levels  byte // raw input line levels, for edge detection
	readISR bool // OCW3 register selection for command-port reads
}

func newUnit(primary bool) *unit {
	base := byte(0)
	if !primary {
		base = 8
	}
	return &unit{primary: primary, vectorBase: base}
}

func (u *unit) setLine(line uint8, high bool) {
	bit := byte(1) << line
	rising := high && u.levels&bit == 0
	if high {
		u.levels |= bit
	} else {
		u.levels &^= bit
	}
	if rising {
		u.irr |= bit
	}
}

// pendingRequests returns the latched, unmasked requests of higher
// priority than anything currently in service. Priority is fixed: line
// 0 highest.
func (u *unit) pendingRequests() byte {
	higherThanInService := lowestSetBit(u.isr) - 1 // 0xff when idle
	return u.irr &^ u.imr & higherThanInService
}

func (u *unit) interruptPending() bool {
	return u.pendingRequests() != 0
}

func (u *unit) acknowledge() (uint8, bool) {
	pending := u.pendingRequests()
	if pending == 0 {
		return u.vectorBase | spuriousLine, false
	}
	line := byte(bits.TrailingZeros8(pending))
	bit := byte(1) << line
	u.irr &^= bit
	u.isr |= bit
	return u.vectorBase | line, true
}

func (u *unit) writeCommand(value byte) {
	const (
		icw1Bit = 0x10
		ocw3Bit = 0x08
	)

	if value&icw1Bit != 0 {
		// ICW1 restarts the init sequence and clears request state.
		u.imr = 0
		u.irr = 0
		u.isr = 0
		u.readISR = false
		u.stage = stageExpectVectorBase
		return
	}

	if u.stage != stageReady {
		// OCWs before initialization completes are ignored.
		return
	}

	if value&ocw3Bit == 0 {
		u.writeOCW2(value)
		return
	}

	// OCW3: select which register command-port reads return.
	if value&0x02 != 0 {
		u.readISR = value&0x04 != 0
	}
}

func (u *unit) writeOCW2(value byte) {
	const (
		eoiBit      = 0x20
		specificBit = 0x40
	)
	switch {
	case value&eoiBit == 0:
		// Priority rotation commands are not modelled.
	case value&specificBit != 0:
		u.isr &^= 1 << (value & lineMask)
	default:
		// Non-specific EOI retires the highest-priority in-service line.
		u.isr &^= lowestSetBit(u.isr)
	}
}

func (u *unit) writeData(value byte) {
	switch u.stage {
	case stageExpectVectorBase:
		u.vectorBase = value &^ lineMask
		u.stage = stageExpectCascade
	case stageExpectCascade:
		// ICW3: the primary is told which line the secondary hangs off;
		// the secondary is told its own cascade identity.
		if u.primary {
			if value != 1<<cascadeLine {
				return
			}
		} else if value != cascadeLine {
			return
		}
		u.stage = stageExpectMode
	case stageExpectMode:
		u.mode = value
		u.stage = stageReady
	default:
		u.imr = value
	}
}

func (u *unit) readData() byte {
	return u.imr
}

func (u *unit) readCommand() byte {
	if u.readISR {
		return u.isr
	}
	return u.irr
}

func lowestSetBit(b byte) byte {
	return b & byte(-int8(b))
}
