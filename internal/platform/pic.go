package platform

import "github.com/tinyrange/pic8259/internal/portio"

// Port assignments and command bytes for the cascaded 8259A pair.
const (
	primaryPort   uint16 = 0x20
	secondaryPort uint16 = 0xa0

	cmdInit byte = 0x11 // ICW1: edge-triggered, cascade, ICW4 follows
	cmdEOI  byte = 0x20 // OCW2: non-specific end of interrupt

	icw3Primary   byte = 1 << cascadeIRQ // secondary attached at line 2
	icw3Secondary byte = cascadeIRQ      // secondary's cascade identity
	icw4Primary   byte = 0x05
	icw4Secondary byte = 0x01

	cascadeIRQ = 2
)

// picDriver issues the raw hardware protocol to both controllers. It
// holds no state of its own; callers are trusted to pass valid
// controller indexes and vectors.
type picDriver struct {
	io portio.ByteIO
}

func commandPort(controller int) uint16 {
	if controller == 0 {
		return primaryPort
	}
	return secondaryPort
}

func dataPort(controller int) uint16 {
	return commandPort(controller) + 1
}

// remap reinitializes both controllers so hardware lines 0-7 raise
// vectors primaryBase..primaryBase+7 and lines 8-15 raise
// secondaryBase..secondaryBase+7, then disables every line.
func (p picDriver) remap(primaryBase, secondaryBase uint8) {
	// ICW1: begin the init sequence on both controllers.
	p.io.Outb(primaryPort, cmdInit)
	p.io.Outb(secondaryPort, cmdInit)

	// ICW2: vector bases.
	p.io.Outb(primaryPort+1, primaryBase)
	p.io.Outb(secondaryPort+1, secondaryBase)

	// ICW3: cascade wiring.
	p.io.Outb(primaryPort+1, icw3Primary)
	p.io.Outb(secondaryPort+1, icw3Secondary)

	// ICW4: mode.
	p.io.Outb(primaryPort+1, icw4Primary)
	p.io.Outb(secondaryPort+1, icw4Secondary)

	// Start with every line disabled.
	p.io.Outb(primaryPort+1, 0xff)
	p.io.Outb(secondaryPort+1, 0xff)
}

func (p picDriver) readMask(controller int) uint8 {
	return p.io.Inb(dataPort(controller))
}

func (p picDriver) writeMask(controller int, bits uint8) {
	p.io.Outb(dataPort(controller), bits)
}

// issueEOI acknowledges a serviced interrupt. Vectors in the secondary
// range need the secondary acknowledged first and then the primary,
// whose cascade line carried the interrupt.
func (p picDriver) issueEOI(vector uint) {
	switch {
	case vector >= PrimaryVectorBase && vector < PrimaryVectorBase+8:
		p.io.Outb(primaryPort, cmdEOI)
	case vector >= SecondaryVectorBase && vector < SecondaryVectorBase+8:
		p.io.Outb(secondaryPort, cmdEOI)
		p.io.Outb(primaryPort, cmdEOI)
	}
}
