// Package clock abstracts time so that the gesture timers and the poll loop
// can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), whose time only moves when
// Advance is called; WaitForTimers blocks until goroutines under test have
// registered their timers, which removes the sleep-and-hope race.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a stoppable one-shot timer delivering on C.
	NewTimer(d time.Duration) *Timer

	// AfterFunc calls f once d has elapsed. The returned Timer has a nil C.
	AfterFunc(d time.Duration, f func()) *Timer

	Sleep(d time.Duration)
}

// Timer is a scheduled one-shot event.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the timer from firing. It reports whether the call stopped
// the timer, false if it had already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
