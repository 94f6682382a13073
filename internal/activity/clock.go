package activity

import "time"

// Timer is a fire-once timer that can be cancelled before it fires.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Clock schedules fire-once callbacks.
//
// The poller only needs AfterFunc, which keeps fake clocks in tests small.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock schedules callbacks with the runtime timer.
type realClock struct{}

// RealClock returns a [Clock] backed by [time.AfterFunc].
func RealClock() Clock {
	return realClock{}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
