package gesture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/model"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	clock *clock.FakeClock
	c     *Classifier

	mu    sync.Mutex
	codes []model.ResponseCode
}

func newHarness() *harness {
	h := &harness{clock: clock.Fake(epoch)}
	h.c = New(h.clock, func(code model.ResponseCode) {
		h.mu.Lock()
		h.codes = append(h.codes, code)
		h.mu.Unlock()
	}, nil)
	return h
}

func (h *harness) emitted() []model.ResponseCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ResponseCode(nil), h.codes...)
}

// at returns the fake time offset ms from the epoch.
func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

// advanceTo moves the fake clock to epoch+ms.
func (h *harness) advanceTo(ms int) {
	h.clock.Advance(at(ms).Sub(h.clock.Now()))
}

// press performs a press ending now (at epoch+upMs) after downMs.
func (h *harness) press(downMs, upMs int) {
	h.advanceTo(upMs)
	h.c.PressCycle(at(downMs), at(upMs))
}

func TestClassifyDuration(t *testing.T) {
	tests := []struct {
		d      time.Duration
		code   model.ResponseCode
		isHold bool
	}{
		{0, "", false},
		{1999 * time.Millisecond, "", false},
		{2000 * time.Millisecond, model.ResponseRepeat, true},
		{4999 * time.Millisecond, model.ResponseRepeat, true},
		{5000 * time.Millisecond, model.ResponseHelp, true},
		{30 * time.Second, model.ResponseHelp, true},
	}
	for _, tt := range tests {
		code, ok := ClassifyDuration(tt.d)
		assert.Equal(t, tt.isHold, ok, tt.d)
		assert.Equal(t, tt.code, code, tt.d)
	}
}

func TestHoldFiveSecondsEmitsHelpOnce(t *testing.T) {
	for _, ms := range []int{5000, 5001, 9000} {
		h := newHarness()
		h.press(0, ms)
		h.clock.Advance(5 * time.Second)
		assert.Equal(t, []model.ResponseCode{model.ResponseHelp}, h.emitted(), "duration %dms", ms)
	}
}

func TestHoldTwoSecondsEmitsRepeatOnce(t *testing.T) {
	for _, ms := range []int{2000, 3500, 4999} {
		h := newHarness()
		h.press(0, ms)
		h.clock.Advance(5 * time.Second)
		assert.Equal(t, []model.ResponseCode{model.ResponseRepeat}, h.emitted(), "duration %dms", ms)
	}
}

func TestHoldDiscardsPendingTap(t *testing.T) {
	h := newHarness()
	h.press(0, 100)
	require.Equal(t, 1, h.c.State().PendingTaps)

	// The hold is delivered before the tap's deferred check is due.
	h.c.PressCycle(at(120), at(2300))
	assert.Equal(t, 0, h.c.State().PendingTaps)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, []model.ResponseCode{model.ResponseRepeat}, h.emitted())
	assert.Equal(t, 0, h.clock.PendingCount())
}

func TestSingleTapEmitsAfterWindow(t *testing.T) {
	h := newHarness()
	h.press(0, 120)
	assert.Empty(t, h.emitted(), "nothing while the chain is undecided")

	h.clock.Advance(349 * time.Millisecond)
	assert.Empty(t, h.emitted(), "not before the deferred window closes")

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, []model.ResponseCode{model.ResponseYes}, h.emitted())

	h.clock.Advance(5 * time.Second)
	assert.Len(t, h.emitted(), 1)
	assert.Equal(t, 0, h.c.State().PendingTaps)
}

func TestDoubleTapEmitsNoOnly(t *testing.T) {
	h := newHarness()
	h.press(0, 80)
	h.press(220, 300)

	assert.Equal(t, []model.ResponseCode{model.ResponseNo}, h.emitted())

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, []model.ResponseCode{model.ResponseNo}, h.emitted(), "deferred check must be inert")
}

func TestDoubleTapWindowBoundary(t *testing.T) {
	h := newHarness()
	h.press(0, 100)   // check due at 450
	h.press(400, 440) // began exactly 400ms after the first press
	assert.Equal(t, []model.ResponseCode{model.ResponseNo}, h.emitted())
}

func TestSecondTapArrivingJustBeforeCheckWins(t *testing.T) {
	h := newHarness()
	h.press(0, 50) // deferred check due at 400
	h.press(330, 399)

	h.clock.Advance(time.Second)
	assert.Equal(t, []model.ResponseCode{model.ResponseNo}, h.emitted())
}

func TestCheckExecutingFirstWins(t *testing.T) {
	h := newHarness()
	h.press(0, 10) // check due at 360
	h.advanceTo(360)
	require.Equal(t, []model.ResponseCode{model.ResponseYes}, h.emitted())

	// Began within 400ms of the first press, but the chain is already
	// closed: this tap opens a new chain.
	h.press(370, 380)
	assert.Equal(t, 1, h.c.State().PendingTaps)

	h.advanceTo(730)
	assert.Equal(t, []model.ResponseCode{model.ResponseYes, model.ResponseYes}, h.emitted())
}

func TestLateSecondTapStartsNewChain(t *testing.T) {
	h := newHarness()
	h.press(0, 150) // check due at 500
	before := h.c.State().Generation

	h.press(420, 480) // 420ms after the first press: too late for a double tap
	st := h.c.State()
	assert.Equal(t, 1, st.PendingTaps)
	assert.Equal(t, at(420), st.FirstTap)
	assert.Greater(t, st.Generation, before)

	h.advanceTo(500)
	assert.Empty(t, h.emitted(), "superseded chain's check is inert")

	h.advanceTo(829)
	assert.Empty(t, h.emitted())
	h.advanceTo(830)
	assert.Equal(t, []model.ResponseCode{model.ResponseYes}, h.emitted())
}

func TestThreeQuickTaps(t *testing.T) {
	h := newHarness()
	h.press(0, 60)
	h.press(150, 200) // double tap
	h.press(300, 350) // new chain
	assert.Equal(t, []model.ResponseCode{model.ResponseNo}, h.emitted())

	h.advanceTo(700)
	assert.Equal(t, []model.ResponseCode{model.ResponseNo, model.ResponseYes}, h.emitted())
}

func TestReset(t *testing.T) {
	h := newHarness()
	h.press(0, 100)
	h.c.Down(1, at(200))
	h.c.Reset()

	st := h.c.State()
	assert.Equal(t, 0, st.PendingTaps)
	assert.False(t, st.ContactActive)

	h.clock.Advance(time.Second)
	assert.Empty(t, h.emitted())
}

func TestConcurrentTapsEmitOnePerChain(t *testing.T) {
	h := newHarness()
	h.press(0, 50)

	// Second tap and the deferred check race from different goroutines.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.c.PressCycle(at(300), at(400))
	}()
	go func() {
		defer wg.Done()
		h.advanceTo(400)
	}()
	wg.Wait()
	h.clock.Advance(2 * time.Second)

	codes := h.emitted()
	require.NotEmpty(t, codes)
	switch codes[0] {
	case model.ResponseNo:
		assert.Len(t, codes, 1)
	case model.ResponseYes:
		// The check ran first; the tap opened a chain that then settled.
		assert.Equal(t, []model.ResponseCode{model.ResponseYes, model.ResponseYes}, codes)
	}
}
