package haptic

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/notify"
)

// Player drives a vibration device. Play must return without waiting for
// playback: callers invoke it from the poll loop and the gesture path.
// A new Play supersedes whatever is still playing.
type Player interface {
	Play(name string, p Pattern)
}

// LogPlayer records each waveform in the log. It is the default device for
// headless terminals.
type LogPlayer struct {
	Logger *logging.Logger
}

func (lp LogPlayer) Play(name string, p Pattern) {
	lp.Logger.Info("vibrate %s pattern=%s", name, formatPattern(p))
}

func formatPattern(p Pattern) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// BellPlayer renders buzz segments as terminal bells, timed by the clock on
// its own goroutine.
type BellPlayer struct {
	w     io.Writer
	clock clock.Clock
	mu    sync.Mutex
	gen   atomic.Uint64
}

func NewBellPlayer(w io.Writer, c clock.Clock) *BellPlayer {
	return &BellPlayer{w: w, clock: c}
}

func (bp *BellPlayer) Play(_ string, p Pattern) {
	gen := bp.gen.Add(1)
	go func() {
		for i, ms := range p {
			if bp.gen.Load() != gen {
				return
			}
			if i%2 == 1 {
				bp.mu.Lock()
				_, _ = io.WriteString(bp.w, "\a")
				bp.mu.Unlock()
			}
			bp.clock.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}()
}

// NotifyPlayer raises a desktop notification for coordinator events.
// Confirmation buzzes are not worth a notification and are skipped.
type NotifyPlayer struct {
	Send   func(title, message string) error
	Logger *logging.Logger
}

// NewNotifyPlayer returns a NotifyPlayer backed by the notify package.
func NewNotifyPlayer(logger *logging.Logger) *NotifyPlayer {
	return &NotifyPlayer{Send: notify.Send, Logger: logger}
}

func (np *NotifyPlayer) Play(name string, p Pattern) {
	if name == ConfirmationName {
		return
	}
	msg := fmt.Sprintf("%d buzz(es), %s", p.Buzzes(), p.Total())
	go func() {
		if err := np.Send("URI: "+name, msg); err != nil {
			np.Logger.Warn("notify %s: %v", name, err)
		}
	}()
}

// ConfirmationName is the Play name used for the dispatcher's confirmation buzz.
const ConfirmationName = "CONFIRM"

// Multi plays every waveform on all of its players.
type Multi []Player

func (m Multi) Play(name string, p Pattern) {
	for _, pl := range m {
		pl.Play(name, p)
	}
}

// Played is one recorded Play call.
type Played struct {
	Name    string
	Pattern Pattern
}

// Recorder is a Player that remembers every call, for tests and for the
// daemon's snapshot of the last waveform.
type Recorder struct {
	mu    sync.Mutex
	calls []Played
}

func (r *Recorder) Play(name string, p Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Played{Name: name, Pattern: append(Pattern(nil), p...)})
}

func (r *Recorder) Calls() []Played {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Played(nil), r.calls...)
}

// Last returns the most recent call.
func (r *Recorder) Last() (Played, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Played{}, false
	}
	return r.calls[len(r.calls)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
