// Package tasks holds the terminal's in-memory task list.
package tasks

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/msageha/uri/internal/events"
	"github.com/msageha/uri/internal/model"
)

var ErrNotFound = errors.New("task not found")

// FallbackID builds the local id used when the coordinator omits task_id.
// ms is the monotonic time in milliseconds since the poller was created, so
// the id is not stable across restarts.
func FallbackID(ms int64) string {
	return "task-" + strconv.FormatInt(ms, 10)
}

// Registry is an insertion-ordered task list holding at most one item per
// id. Every method is safe for concurrent use; the exists-check and the
// insert happen under one lock.
type Registry struct {
	mu    sync.Mutex
	items []model.TaskItem
	ids   map[string]struct{}
	bus   *events.Bus
}

// NewRegistry returns an empty registry. bus may be nil.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{ids: make(map[string]struct{}), bus: bus}
}

// Add appends item unless an item with the same id already exists. It
// reports whether the item was inserted.
func (r *Registry) Add(item model.TaskItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(item)
}

func (r *Registry) addLocked(item model.TaskItem) bool {
	if _, ok := r.ids[item.ID]; ok {
		return false
	}
	r.ids[item.ID] = struct{}{}
	r.items = append(r.items, item)
	r.bus.Publish(events.TaskAdded, item)
	return true
}

// Assign records a task assignment delivered by a poll. With a server id the
// call is idempotent: repeated delivery of the same id inserts nothing.
// Without one, FallbackID(fallbackMs) is used and, should that id already be
// taken by an earlier assignment from the same millisecond, a "-N" suffix is
// appended so the second task is not lost.
func (r *Registry) Assign(serverID, text string, fallbackMs int64) (model.TaskItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := serverID
	if id == "" {
		base := FallbackID(fallbackMs)
		id = base
		for n := 2; r.hasLocked(id); n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
	}
	item := model.TaskItem{ID: id, Text: text}
	if !r.addLocked(item) {
		return r.getLocked(id), false
	}
	return item, true
}

func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasLocked(id)
}

func (r *Registry) hasLocked(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *Registry) getLocked(id string) model.TaskItem {
	for _, it := range r.items {
		if it.ID == id {
			return it
		}
	}
	return model.TaskItem{}
}

// SetCompleted sets the completed flag of one item.
func (r *Registry) SetCompleted(id string, completed bool) (model.TaskItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID != id {
			continue
		}
		if r.items[i].Completed != completed {
			r.items[i].Completed = completed
			r.bus.Publish(events.TaskUpdated, r.items[i])
		}
		return r.items[i], nil
	}
	return model.TaskItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Toggle flips the completed flag of one item.
func (r *Registry) Toggle(id string) (model.TaskItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Completed = !r.items[i].Completed
			r.bus.Publish(events.TaskUpdated, r.items[i])
			return r.items[i], nil
		}
	}
	return model.TaskItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ClearCompleted removes every completed item and returns how many went.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.items[:0]
	removed := 0
	for _, it := range r.items {
		if it.Completed {
			delete(r.ids, it.ID)
			removed++
			continue
		}
		kept = append(kept, it)
	}
	r.items = kept
	if removed > 0 {
		r.bus.Publish(events.TasksCleared, removed)
	}
	return removed
}

// HasCompleted reports whether ClearCompleted would remove anything.
func (r *Registry) HasCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.Completed {
			return true
		}
	}
	return false
}

// List returns a copy of the items in insertion order.
func (r *Registry) List() []model.TaskItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TaskItem, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
