// Package gesture turns raw press/release timing from a single touch contact
// into response codes: tap, double tap, 2 s hold and 5 s hold.
//
// Holds are classified as soon as the press ends. Taps feed a tap-chain: the
// first tap arms a deferred single-tap check, and a second tap whose press
// began within DoubleTapWindow of the first one's turns the chain into a
// double tap. Each chain carries a generation number; a deferred check only
// acts when its generation is still current, so a check belonging to a
// cancelled or superseded chain is inert.
//
// Both the second-tap path and the deferred check run under the classifier's
// mutex. If the second tap is processed before the check executes, the
// double tap wins; if the check runs first, the single tap is emitted and
// the later tap starts a new chain. Exactly one code is emitted per chain.
package gesture

import (
	"sync"
	"time"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
)

const (
	HelpHold        = 5000 * time.Millisecond
	RepeatHold      = 2000 * time.Millisecond
	DoubleTapWindow = 400 * time.Millisecond
	SingleTapDelay  = 350 * time.Millisecond
	SingleTapSettle = 300 * time.Millisecond
)

// EmitFunc receives every classified code. It is called without the
// classifier's lock held, from the goroutine that delivered the input or,
// for single taps, from the clock's timer goroutine.
type EmitFunc func(model.ResponseCode)

// ClassifyDuration classifies a press by length alone. ok is false for a tap,
// whose meaning depends on what follows.
func ClassifyDuration(d time.Duration) (code model.ResponseCode, ok bool) {
	switch {
	case d >= HelpHold:
		return model.ResponseHelp, true
	case d >= RepeatHold:
		return model.ResponseRepeat, true
	default:
		return "", false
	}
}

// State is a snapshot of the tap-chain and contact slot.
type State struct {
	PendingTaps   int       `json:"pending_taps"`
	FirstTap      time.Time `json:"first_tap,omitempty"`
	LastTap       time.Time `json:"last_tap,omitempty"`
	Generation    uint64    `json:"generation"`
	ContactActive bool      `json:"contact_active"`
	ContactID     ContactID `json:"contact_id,omitempty"`
}

type Classifier struct {
	clock  clock.Clock
	emit   EmitFunc
	logger *logging.Logger

	mu          sync.Mutex
	pendingTaps int
	firstTap    time.Time
	lastTap     time.Time
	generation  uint64
	timer       *clock.Timer

	contact contactSlot
}

func New(c clock.Clock, emit EmitFunc, logger *logging.Logger) *Classifier {
	return &Classifier{clock: c, emit: emit, logger: logger}
}

// PressCycle classifies one completed press.
func (c *Classifier) PressCycle(down, up time.Time) {
	duration := up.Sub(down)
	if code, ok := ClassifyDuration(duration); ok {
		c.mu.Lock()
		c.resetChainLocked()
		c.mu.Unlock()
		c.logger.Debug("hold duration=%s code=%s", duration, code)
		c.emit(code)
		return
	}

	c.mu.Lock()
	now := c.clock.Now()
	if c.pendingTaps == 1 && down.Sub(c.firstTap) <= DoubleTapWindow {
		c.resetChainLocked()
		c.mu.Unlock()
		c.logger.Debug("double tap")
		c.emit(model.ResponseNo)
		return
	}
	c.startChainLocked(down, now)
	c.mu.Unlock()
}

// startChainLocked opens a fresh chain with this tap as its first tap,
// superseding any chain already pending.
func (c *Classifier) startChainLocked(down, now time.Time) {
	c.resetChainLocked()
	c.pendingTaps = 1
	c.firstTap = down
	c.lastTap = now
	gen := c.generation
	c.timer = c.clock.AfterFunc(SingleTapDelay, func() { c.confirmSingle(gen) })
}

// resetChainLocked returns the chain to idle and invalidates its deferred check.
func (c *Classifier) resetChainLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingTaps = 0
	c.firstTap = time.Time{}
	c.lastTap = time.Time{}
}

func (c *Classifier) confirmSingle(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.pendingTaps != 1 {
		c.mu.Unlock()
		return
	}
	if elapsed := c.clock.Now().Sub(c.lastTap); elapsed < SingleTapSettle {
		c.timer = c.clock.AfterFunc(SingleTapSettle-elapsed, func() { c.confirmSingle(gen) })
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.resetChainLocked()
	c.mu.Unlock()

	c.logger.Debug("single tap")
	c.emit(model.ResponseYes)
}

// Reset drops any pending chain and any tracked contact without emitting.
func (c *Classifier) Reset() {
	c.mu.Lock()
	c.resetChainLocked()
	c.contact = contactSlot{}
	c.mu.Unlock()
}

func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		PendingTaps:   c.pendingTaps,
		FirstTap:      c.firstTap,
		LastTap:       c.lastTap,
		Generation:    c.generation,
		ContactActive: c.contact.active,
		ContactID:     c.contact.id,
	}
}
