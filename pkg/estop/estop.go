// Package estop holds the process-wide emergency stop latch.  The button
// poller sets it; every motion loop polls it once per control tick; only
// an explicit operator Reset clears it between missions.
package estop

import "sync/atomic"

type state int32

const (
	stateDisarmed state = iota
	stateArmed
	stateTriggered
)

type Latch struct {
	v atomic.Int32
}

func New() *Latch {
	return &Latch{}
}

// Arm makes the latch live for a mission.  Arming a triggered latch does
// nothing; the operator must Reset first.
func (l *Latch) Arm() {
	l.v.CompareAndSwap(int32(stateDisarmed), int32(stateArmed))
}

// Trigger latches the stop.  Has no effect unless armed.
func (l *Latch) Trigger() {
	l.v.CompareAndSwap(int32(stateArmed), int32(stateTriggered))
}

func (l *Latch) Triggered() bool {
	return state(l.v.Load()) == stateTriggered
}

func (l *Latch) Armed() bool {
	return state(l.v.Load()) != stateDisarmed
}

// Reset disarms the latch entirely.  Deliberately the only way to clear
// a triggered stop.
func (l *Latch) Reset() {
	l.v.Store(int32(stateDisarmed))
}
