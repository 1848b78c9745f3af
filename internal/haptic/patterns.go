// Package haptic maps coordinator events onto vibration waveforms and plays
// them through pluggable output devices.
package haptic

import (
	"time"

	"github.com/msageha/uri/internal/model"
)

// Pattern is a waveform: alternating silent and buzz durations in
// milliseconds, starting with a silent gap.
type Pattern []int64

var (
	NameCalled   = Pattern{0, 200, 120, 200}
	TaskAssigned = Pattern{0, 180, 100, 180, 100, 180}
	Urgent       = repeatBuzz(12, 120, 80)
	Default      = Pattern{0, 250}

	// Confirmation acknowledges a sent response; only the dispatcher uses it.
	Confirmation = Pattern{0, 60}
)

func repeatBuzz(n int, buzz, gap int64) Pattern {
	p := Pattern{0}
	for i := 0; i < n; i++ {
		if i > 0 {
			p = append(p, gap)
		}
		p = append(p, buzz)
	}
	return p
}

// PatternFor returns the waveform for an event code. Unknown codes, including
// the empty string, get Default. The returned slice is a copy.
func PatternFor(event string) Pattern {
	var p Pattern
	switch event {
	case model.EventNameCalled:
		p = NameCalled
	case model.EventTaskAssigned:
		p = TaskAssigned
	case model.EventUrgent:
		p = Urgent
	default:
		p = Default
	}
	return append(Pattern(nil), p...)
}

// Total returns the playback length of the waveform.
func (p Pattern) Total() time.Duration {
	var ms int64
	for _, v := range p {
		ms += v
	}
	return time.Duration(ms) * time.Millisecond
}

// Buzzes returns the number of buzz segments.
func (p Pattern) Buzzes() int {
	return len(p) / 2
}
