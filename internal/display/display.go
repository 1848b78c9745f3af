// Package display owns the terminal's user-visible text state: poll status,
// last event, last sent response and current role. The external UI reads it
// with Snapshot or follows it through the event bus.
package display

import (
	"fmt"
	"sync"

	"github.com/msageha/uri/internal/events"
	"github.com/msageha/uri/internal/model"
)

const (
	noLastEvent = "Last event: None"
	noLastSent  = "Last response: None"
)

// Snapshot is a point-in-time copy of the display.
type Snapshot struct {
	Role      model.Role `json:"role"`
	Status    string     `json:"status"`
	LastEvent string     `json:"last_event"`
	LastSent  string     `json:"last_sent"`
}

// State serializes every write; setters publish the new value after it is
// stored.
type State struct {
	mu   sync.Mutex
	snap Snapshot
	bus  *events.Bus
}

// New returns a display showing the server address until the first poll.
func New(serverBase string, role model.Role, bus *events.Bus) *State {
	return &State{
		snap: Snapshot{
			Role:      role,
			Status:    "Server: " + serverBase,
			LastEvent: noLastEvent,
			LastSent:  noLastSent,
		},
		bus: bus,
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *State) Bus() *events.Bus { return s.bus }

func (s *State) set(field *string, value string, t events.EventType) {
	s.mu.Lock()
	changed := *field != value
	*field = value
	s.mu.Unlock()
	if changed {
		s.bus.Publish(t, value)
	}
}

// SetPollStatus shows the outcome of a loop iteration.
func (s *State) SetPollStatus(debug string, role model.Role) {
	s.set(&s.snap.Status, FormatStatus(debug, role), events.StatusChanged)
}

// SetLastEvent shows a received event.
func (s *State) SetLastEvent(ev model.RemoteEvent) {
	s.set(&s.snap.LastEvent, FormatLastEvent(ev), events.LastEventChanged)
}

// SetLastSent shows the label of the latest dispatched response.
func (s *State) SetLastSent(label string) {
	s.set(&s.snap.LastSent, "Last response: "+label, events.LastSentChanged)
}

func (s *State) SetRole(role model.Role) {
	s.mu.Lock()
	changed := s.snap.Role != role
	s.snap.Role = role
	s.mu.Unlock()
	if changed {
		s.bus.Publish(events.RoleChanged, string(role))
	}
}

func FormatStatus(debug string, role model.Role) string {
	return fmt.Sprintf("Status: %s | Role: %s", debug, role)
}

func FormatLastEvent(ev model.RemoteEvent) string {
	if ev.TaskText != "" {
		return fmt.Sprintf("Last event: %s | Task: %s", ev.Event, ev.TaskText)
	}
	return "Last event: " + ev.Event
}
