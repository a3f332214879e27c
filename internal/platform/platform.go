// Package platform implements the interrupt subsystem of a PC-class
// platform built on the legacy cascaded 8259A controller pair: vector
// remapping, per-line masking with cascade bookkeeping, a vector
// dispatch table and end-of-interrupt acknowledgment.
package platform

import (
	"errors"
	"fmt"

	"github.com/tinyrange/pic8259/internal/portio"
)

// Vector layout. CPU exceptions own vectors below 0x20, so hardware
// lines are remapped on top of them at init.
const (
	// PrimaryVectorBase is the vector raised by hardware line 0.
	PrimaryVectorBase = 0x20
	// SecondaryVectorBase is the vector raised by hardware line 8.
	SecondaryVectorBase = 0x28
	// CascadeVector is the primary-controller vector carrying the
	// secondary's cascaded output (line 2).
	CascadeVector = 0x22
	// NumVectors bounds the dispatch table. Vectors past the hardware
	// ranges are valid software dispatch targets.
	NumVectors = 0x31
)

// ErrInvalidVector reports a vector outside [0, NumVectors).
var ErrInvalidVector = errors.New("platform: interrupt vector out of range")

// Disposition is a handler's scheduling verdict, returned to the trap
// layer which owns the actual context switch.
type Disposition int

const (
	// NoReschedule resumes the interrupted context.
	NoReschedule Disposition = iota
	// Reschedule asks the trap layer to run the scheduler on return.
	Reschedule
)

// HandlerFunc services one interrupt vector. Handlers run in interrupt
// context with delivery disabled; they must not block and must not call
// back into Mask or Unmask.
type HandlerFunc func(arg any) Disposition

type handlerEntry struct {
	handler HandlerFunc
	arg     any
}

// Controller owns the dispatch table and the cached mask state of both
// 8259A controllers. All mutation goes through its interrupt-disabling
// lock; the caches always mirror the hardware mask registers.
type Controller struct {
	lock irqLock
	pic  picDriver

	// mask caches the controllers' mask registers; bit set = line
	// disabled. Guarded by lock together with handlers.
	mask [2]uint8

	handlers [NumVectors]handlerEntry
}

// New returns a Controller driving the pair through io. The gate is
// used to shut out interrupt delivery during critical sections; pass
// NopGate if no delivery path exists.
func New(io portio.ByteIO, gate InterruptGate) *Controller {
	if gate == nil {
		gate = NopGate()
	}
	c := &Controller{pic: picDriver{io: io}}
	c.lock.gate = gate
	return c
}

// Init remaps both controllers out of the exception range and leaves
// every hardware line masked. Must run once, before any other call.
func (c *Controller) Init() {
	c.pic.remap(PrimaryVectorBase, SecondaryVectorBase)
	c.mask[0] = 0xff
	c.mask[1] = 0xff
}

// RegisterHandler installs handler for vector, replacing any previous
// entry. A nil handler clears the slot. Registration must happen
// before the vector is unmasked; an out-of-range vector is a kernel
// defect and panics.
func (c *Controller) RegisterHandler(vector uint, handler HandlerFunc, arg any) {
	if vector >= NumVectors {
		panic(fmt.Sprintf("platform: RegisterHandler: vector out of range %d", vector))
	}

	defer c.lock.lockSave()()

	c.handlers[vector] = handlerEntry{handler: handler, arg: arg}
}

// Mask disables delivery of vector's hardware line. Vectors without
// hardware backing are accepted as no-ops.
func (c *Controller) Mask(vector uint) error {
	if vector >= NumVectors {
		return ErrInvalidVector
	}

	defer c.lock.lockSave()()

	c.setLineEnabled(vector, false)
	return nil
}

// Unmask enables delivery of vector's hardware line. Vectors without
// hardware backing are accepted as no-ops.
func (c *Controller) Unmask(vector uint) error {
	if vector >= NumVectors {
		return ErrInvalidVector
	}

	defer c.lock.lockSave()()

	c.setLineEnabled(vector, true)
	return nil
}

// MaskAll disables every hardware line on both controllers and
// refreshes the caches, for suspend-style quiesce paths.
func (c *Controller) MaskAll() {
	defer c.lock.lockSave()()

	for controller := range c.mask {
		c.pic.writeMask(controller, 0xff)
		c.mask[controller] = c.pic.readMask(controller)
	}
}

// Dispatch is the interrupt-service entry point, called by the trap
// layer with the vector from the hardware-saved frame. It invokes the
// registered handler, if any, and acknowledges the interrupt either
// way. The table read is deliberately outside the lock; registration
// racing a live dispatch is excluded by the register-before-unmask
// contract.
func (c *Controller) Dispatch(vector uint) Disposition {
	if vector < PrimaryVectorBase {
		panic(fmt.Sprintf("platform: Dispatch: exception vector %d", vector))
	}

	ret := NoReschedule
	if entry := c.handlers[vector]; entry.handler != nil {
		ret = entry.handler(entry.arg)
	}

	c.pic.issueEOI(vector)

	return ret
}

// setLineEnabled flips one hardware line's mask bit, keeping the
// primary's cascade bit consistent when the secondary changes. Called
// with the lock held; vectors outside both hardware ranges are no-ops.
func (c *Controller) setLineEnabled(vector uint, enable bool) {
	switch {
	case vector >= PrimaryVectorBase && vector < PrimaryVectorBase+8:
		c.updateLine(0, 1<<(vector-PrimaryVectorBase), enable)
	case vector >= SecondaryVectorBase && vector < SecondaryVectorBase+8:
		c.updateLine(1, 1<<(vector-SecondaryVectorBase), enable)
		// The cascade line stays enabled exactly while any secondary
		// line is.
		c.updateLine(0, 1<<(CascadeVector-PrimaryVectorBase), c.mask[1] != 0xff)
	}
}

// updateLine performs the read-modify-write for one mask bit. The
// cached bit short-circuits writes that would not change hardware
// state, and the cache is refreshed from the register after every
// write.
func (c *Controller) updateLine(controller int, bit uint8, enable bool) {
	enabled := c.mask[controller]&bit == 0
	if enabled == enable {
		return
	}

	bits := c.pic.readMask(controller)
	if enable {
		bits &^= bit
	} else {
		bits |= bit
	}
	c.pic.writeMask(controller, bits)
	c.mask[controller] = c.pic.readMask(controller)
}
