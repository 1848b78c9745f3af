package model

import "strings"

// Event codes published by the coordinator.
const (
	EventNameCalled        = "NAME_CALLED"
	EventTaskAssigned      = "TASK_ASSIGNED"
	EventUrgent            = "URGENT"
	EventDirectionalSignal = "DIRECTIONAL_SIGNAL"
)

// RemoteEvent is the normalized outcome of one poll. Empty strings mean "no
// value". Status always describes the poll outcome ("HTTP 200",
// "ERROR: Timeout", ...).
type RemoteEvent struct {
	Event    string `json:"event,omitempty"`
	TaskText string `json:"task_text,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	Status   string `json:"status"`
}

// HasEvent reports whether the poll delivered an event code.
func (e RemoteEvent) HasEvent() bool { return e.Event != "" }

// IsTaskAssignment reports whether the event should create a task item.
func (e RemoteEvent) IsTaskAssignment() bool {
	return e.Event == EventTaskAssigned && e.TaskText != ""
}

// CleanWireValue folds the loosely typed wire representations of "nothing"
// (absent, empty, blank, the literal string "null") into "".
func CleanWireValue(s string) string {
	if s == "null" || strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
