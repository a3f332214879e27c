package platform

import "sync"

// InterruptGate disables local interrupt delivery for the duration of a
// critical section. SaveAndDisable records the current delivery state,
// disables delivery and returns a func restoring the saved state.
type InterruptGate interface {
	SaveAndDisable() (restore func())
}

type nopGate struct{}

func (nopGate) SaveAndDisable() func() { return func() {} }

// NopGate returns a gate that does nothing, for callers with no
// asynchronous delivery path (e.g. driving real hardware from user
// space with interrupts handled elsewhere).
func NopGate() InterruptGate {
	return nopGate{}
}

// irqLock pairs a mutex with an InterruptGate. Interrupt delivery is
// disabled before the mutex is taken so the delivery path can never
// observe the guarded state mid-update.
type irqLock struct {
	gate InterruptGate
	mu   sync.Mutex
}

// lockSave acquires the lock with interrupts disabled and returns the
// combined release func:
//
//	defer c.lock.lockSave()()
func (l *irqLock) lockSave() func() {
	restore := l.gate.SaveAndDisable()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		restore()
	}
}
